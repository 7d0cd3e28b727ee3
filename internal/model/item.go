package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Catalogue attribute values accepted for items.
var (
	Categories = []string{"T-shirt", "Jeans", "Dress", "Suit", "Skirt", "Trousers", "Boots", "Sneakers", "Shoes"}
	Styles     = []string{"Sporty", "Casual", "Classic", "Streetwear", "Punk"}
	Sizes      = []string{"XS", "S", "M", "L", "XL", "XXL"}
	Colors     = []string{"Red", "Green", "Blue", "Yellow", "Cyan", "Magenta", "Black", "White", "Gray", "Orange", "Purple", "Brown", "Pink"}
	Materials  = []string{"Cotton", "Linen", "Wool", "Silk", "Polyester", "Nylon", "Leather", "Suede", "Denim"}
)

type Item struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"item_id"`
	Name        string          `gorm:"type:varchar(128);not null" json:"name"`
	Description string          `gorm:"type:varchar(512);not null" json:"description"`
	Category    string          `gorm:"type:varchar(32);index" json:"category"`
	Style       string          `gorm:"type:varchar(32)" json:"style"`
	Size        string          `gorm:"type:varchar(8)" json:"size"`
	Color       string          `gorm:"type:varchar(16)" json:"color"`
	Material    string          `gorm:"type:varchar(16)" json:"material"`
	Price       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (Item) TableName() string {
	return "item"
}
