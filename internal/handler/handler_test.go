package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"recsys/internal/config"
	"recsys/internal/model"
	"recsys/internal/service"
	"recsys/internal/testutil"
	"recsys/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := config.NewDefault()
	accounts := service.NewAccountService(db)
	h := NewHandler(accounts, service.NewItemService(db), service.NewPredictionService(db, nil, cfg, accounts))
	return SetupRouter(h), db
}

func doRequest(r http.Handler, method, path string, userID int64, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID > 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp struct {
		Code int                    `json:"code"`
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Data
}

func TestRouter_RequiresUser(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(r, http.MethodGet, "/api/v1/account/balance", 0, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(r, http.MethodGet, "/health", 0, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_Deposit(t *testing.T) {
	r, db := newTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v1/account/deposit", 1, `{"amount": "25.50"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, testutil.Balance(t, db, 1).Equal(decimal.RequireFromString("25.5")))

	w = doRequest(r, http.MethodPost, "/api/v1/account/deposit", 1, `{"amount": -5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPost, "/api/v1/account/deposit", 1, `{"amount": 0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, testutil.Balance(t, db, 1).Equal(decimal.RequireFromString("25.5")))

	w = doRequest(r, http.MethodGet, "/api/v1/account/transactions", 1, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"])
}

func TestRouter_SubmitPrediction(t *testing.T) {
	r, db := newTestRouter(t)
	testutil.SeedAccount(t, db, 1, "20")
	testutil.SeedAccount(t, db, 2, "5")
	item := testutil.SeedItem(t, db, model.Item{Name: "Sneakers", Category: "Sneakers"})
	body := `{"item_id": ` + strconv.FormatInt(item.ID, 10) + `}`

	w := doRequest(r, http.MethodPost, "/api/v1/predictions", 1, body)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	data := decode(t, w)
	assert.Equal(t, model.PredictionStatusPending, data["status"])
	predictionID := int64(data["prediction_id"].(float64))

	w = doRequest(r, http.MethodPost, "/api/v1/predictions", 2, body)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	var failure response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &failure))
	assert.Equal(t, response.CodeInsufficientFunds, failure.Code)

	w = doRequest(r, http.MethodPost, "/api/v1/predictions", 1, `{"item_id": 999}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(r, http.MethodPost, "/api/v1/predictions", 1, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	path := "/api/v1/predictions/" + strconv.FormatInt(predictionID, 10)
	w = doRequest(r, http.MethodGet, path, 1, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.PredictionStatusPending, decode(t, w)["status"])

	w = doRequest(r, http.MethodGet, path, 2, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(r, http.MethodGet, "/api/v1/predictions/424242", 1, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(r, http.MethodGet, "/api/v1/predictions", 1, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"])
}

func TestRouter_Items(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v1/items", 1, `{"name":"Wool suit","category":"Suit","material":"Wool","price":"199.00"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	id := int64(decode(t, w)["item_id"].(float64))

	w = doRequest(r, http.MethodGet, "/api/v1/items/"+strconv.FormatInt(id, 10), 1, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodGet, "/api/v1/items/abc", 1, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPost, "/api/v1/items", 1, `{"name":"Hat","category":"Hat"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
