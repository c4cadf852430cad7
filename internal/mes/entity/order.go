package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemCategory item category, its name drives order derivation
type ItemCategory struct {
	ID   string `json:"id" gorm:"primaryKey;size:36"`
	Name string `json:"name" gorm:"size:100;not null;uniqueIndex"`
}

func (ItemCategory) TableName() string {
	return "mes_item_categories"
}

// Item master data item
type Item struct {
	ID         string        `json:"id" gorm:"primaryKey;size:36"`
	Code       string        `json:"code" gorm:"size:64;uniqueIndex"`
	Name       string        `json:"name" gorm:"size:200;not null"`
	Unit       string        `json:"unit" gorm:"size:20;default:pcs"`
	CategoryID string        `json:"category_id" gorm:"size:36;index"`
	Category   *ItemCategory `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

func (Item) TableName() string {
	return "mes_items"
}

// Order production or procurement order
type Order struct {
	ID                     string          `json:"id" gorm:"primaryKey;size:36"`
	OrderType              OrderType       `json:"order_type" gorm:"size:20;not null;index"`
	Status                 OrderStatus     `json:"status" gorm:"size:20;not null;default:DRAFT;index"`
	Priority               string          `json:"priority" gorm:"size:20;default:normal"`
	Quantity               int             `json:"quantity" gorm:"not null"`
	Remarks                string          `json:"remarks" gorm:"type:text"`
	RequiredDate           *time.Time      `json:"required_date"`
	ItemID                 string          `json:"item_id" gorm:"size:36;not null;index"`
	WarehouseRequestItemID *string         `json:"warehouse_request_item_id" gorm:"size:36;index"`
	VendorName             string          `json:"vendor_name" gorm:"size:200"`
	Price                  decimal.Decimal `json:"price" gorm:"type:decimal(14,2);default:0"`
	CreatedByID            string          `json:"created_by_id" gorm:"size:64;not null"`
	Version                int             `json:"version" gorm:"not null;default:0"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

func (Order) TableName() string {
	return "mes_orders"
}

// WarehouseRequest request for items from the warehouse, or a change addendum to one
type WarehouseRequest struct {
	ID                string                 `json:"id" gorm:"primaryKey;size:36"`
	ProjectName       string                 `json:"project_name" gorm:"size:200;not null"`
	Description       string                 `json:"description" gorm:"type:text"`
	Priority          string                 `json:"priority" gorm:"size:20;default:normal"`
	Status            WarehouseRequestStatus `json:"status" gorm:"size:32;not null;default:DRAFT"`
	RequestType       WarehouseRequestType   `json:"request_type" gorm:"size:32;not null;default:STANDARD"`
	OriginalRequestID *string                `json:"original_request_id" gorm:"size:36;index"`
	CreatedByID       string                 `json:"created_by_id" gorm:"size:64;not null"`
	Version           int                    `json:"version" gorm:"not null;default:0"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

func (WarehouseRequest) TableName() string {
	return "mes_warehouse_requests"
}

// WarehouseRequestItem one line of a warehouse request
type WarehouseRequestItem struct {
	ID                string                     `json:"id" gorm:"primaryKey;size:36"`
	RequestID         string                     `json:"request_id" gorm:"size:36;not null;index"`
	ItemID            string                     `json:"item_id" gorm:"size:36;not null"`
	QuantityRequested int                        `json:"quantity_requested" gorm:"not null"`
	QuantityFulfilled int                        `json:"quantity_fulfilled" gorm:"default:0"`
	Status            WarehouseRequestItemStatus `json:"status" gorm:"size:20;not null;default:PENDING"`
	Remarks           string                     `json:"remarks" gorm:"type:text"`
	Version           int                        `json:"version" gorm:"not null;default:0"`
	CreatedAt         time.Time                  `json:"created_at"`
	UpdatedAt         time.Time                  `json:"updated_at"`
}

func (WarehouseRequestItem) TableName() string {
	return "mes_warehouse_request_items"
}
