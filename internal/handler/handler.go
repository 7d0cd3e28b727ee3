package handler

import (
	"errors"
	"strconv"

	"recsys/internal/service"
	"recsys/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Handler struct {
	accountService    *service.AccountService
	itemService       *service.ItemService
	predictionService *service.PredictionService
	log               *zap.SugaredLogger
}

func NewHandler(accounts *service.AccountService, items *service.ItemService, predictions *service.PredictionService) *Handler {
	return &Handler{
		accountService:    accounts,
		itemService:       items,
		predictionService: predictions,
		log:               zap.S().Named("handler"),
	}
}

// writeError maps service failures onto HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrInsufficientFunds):
		response.InsufficientFunds(c, err.Error())
	case errors.Is(err, service.ErrForbidden):
		response.Forbidden(c, err.Error())
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrBusy):
		response.Busy(c, err.Error())
	default:
		h.log.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		response.ServerError(c, "internal server error")
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "invalid id")
		return 0, false
	}
	return id, true
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

// GET /api/v1/account/balance
func (h *Handler) GetBalance(c *gin.Context) {
	account, err := h.accountService.GetAccount(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id": account.UserID,
		"balance": account.Balance,
	})
}

type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// POST /api/v1/account/deposit
func (h *Handler) Deposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	account, err := h.accountService.Deposit(c.Request.Context(), currentUserID(c), req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id": account.UserID,
		"balance": account.Balance,
	})
}

// GET /api/v1/account/transactions?page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	page, pageSize := pagination(c)

	transactions, total, err := h.accountService.ListTransactions(c.Request.Context(), currentUserID(c), page, pageSize)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      transactions,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

type CreateItemRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Style       string          `json:"style"`
	Size        string          `json:"size"`
	Color       string          `json:"color"`
	Material    string          `json:"material"`
	Price       decimal.Decimal `json:"price"`
}

// POST /api/v1/items
func (h *Handler) CreateItem(c *gin.Context) {
	var req CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	item, err := h.itemService.Create(c.Request.Context(), &service.CreateItemRequest{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Style:       req.Style,
		Size:        req.Size,
		Color:       req.Color,
		Material:    req.Material,
		Price:       req.Price,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, item)
}

// GET /api/v1/items?skip=0&limit=100
func (h *Handler) ListItems(c *gin.Context) {
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	items, err := h.itemService.List(c.Request.Context(), skip, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, items)
}

// GET /api/v1/items/:id
func (h *Handler) GetItem(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	item, err := h.itemService.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, item)
}

type SubmitPredictionRequest struct {
	ItemID    int64  `json:"item_id" binding:"required,gt=0"`
	RequestID string `json:"request_id" binding:"max=64"`
}

// POST /api/v1/predictions
//
// The prediction is charged immediately and computed asynchronously; poll
// GET /api/v1/predictions/:id for the result.
func (h *Handler) SubmitPrediction(c *gin.Context) {
	var req SubmitPredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.predictionService.Submit(c.Request.Context(), &service.SubmitRequest{
		UserID:    currentUserID(c),
		ItemID:    req.ItemID,
		RequestID: req.RequestID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Accepted(c, result)
}

// GET /api/v1/predictions/:id
func (h *Handler) GetPrediction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	prediction, err := h.predictionService.Get(c.Request.Context(), id, currentUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, prediction)
}

// GET /api/v1/predictions?page=1&page_size=20
func (h *Handler) ListPredictions(c *gin.Context) {
	page, pageSize := pagination(c)

	predictions, total, err := h.predictionService.List(c.Request.Context(), currentUserID(c), page, pageSize)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      predictions,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
