package workflow

import (
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/shopspring/decimal"
)

// Ids taken from the URL path are tagged json:"-"; the handler fills them in.

type CreateRouteCardRequest struct {
	OrderID       string               `json:"order_id" binding:"required"`
	Materials     []entity.Material    `json:"materials" binding:"dive"`
	Workstations  []entity.Workstation `json:"workstations" binding:"required,min=1,dive"`
	EstimatedTime float64              `json:"estimated_time" binding:"gte=0"`
}

type ConfirmRouteCardRequest struct {
	RouteCardID string `json:"-"`
	Notes       string `json:"notes"`
}

type CancelRouteCardRequest struct {
	RouteCardID string `json:"-"`
	Reason      string `json:"reason" binding:"required"`
}

// TaskActionRequest completes a task that needs nothing but notes.
type TaskActionRequest struct {
	TaskID string `json:"-"`
	Notes  string `json:"notes"`
}

type MaterialPickupRequest struct {
	TaskID     string     `json:"-"`
	PickupDate *time.Time `json:"pickup_date"`
	Notes      string     `json:"notes"`
}

type MaterialDeliveryRequest struct {
	TaskID                  string     `json:"-"`
	EstimatedCompletionDate *time.Time `json:"estimated_completion_date"`
	Notes                   string     `json:"notes"`
}

type FollowupRequest struct {
	TaskID                string                `json:"-"`
	Status                entity.FollowUpStatus `json:"status" binding:"required,followup_status"`
	RevisedCompletionDate *time.Time            `json:"revised_completion_date"`
	Notes                 string                `json:"notes"`
}

type PartPickupRequest struct {
	TaskID           string           `json:"-"`
	QuantityReceived *decimal.Decimal `json:"quantity_received"`
	InvoiceURL       string           `json:"subcontractor_invoice"`
	Notes            string           `json:"notes"`
}

type QCDecisionRequest struct {
	TaskID   string            `json:"-"`
	Decision entity.QCDecision `json:"decision" binding:"required,qc_decision"`
	Notes    string            `json:"notes"`
}

type ReworkDeliveryRequest struct {
	TaskID                  string     `json:"-"`
	EstimatedCompletionDate *time.Time `json:"estimated_completion_date"`
	Notes                   string     `json:"notes"`
}

type ScrapReviewRequest struct {
	TaskID   string               `json:"-"`
	Decision entity.ScrapDecision `json:"decision" binding:"required,scrap_decision"`
	Notes    string               `json:"notes"`
}

type CreateChangeAddendumRequest struct {
	OriginalRequestID      string   `json:"original_request_id" binding:"required"`
	Description            string   `json:"description" binding:"required"`
	ImpactAnalysis         string   `json:"impact_analysis"`
	TechnicalJustification string   `json:"technical_justification"`
	Attachments            []string `json:"attachments"`
}

type UpdateApprovalLevelRequest struct {
	ApprovalID string                `json:"-"`
	Level      entity.ApprovalLevel  `json:"level" binding:"required,approval_level"`
	Status     entity.ApprovalStatus `json:"status" binding:"required,approval_status"`
	Comments   string                `json:"comments"`
}

type DeriveShortageRequest struct {
	ItemID                 string `json:"item_id" binding:"required"`
	Quantity               int    `json:"quantity" binding:"required"`
	WarehouseRequestItemID string `json:"warehouse_request_item_id" binding:"required"`
	Priority               string `json:"priority" binding:"omitempty,oneof=low normal high urgent"`
}

type UpdateOrderStatusRequest struct {
	OrderID string             `json:"-"`
	Status  entity.OrderStatus `json:"status" binding:"required,order_status"`
	Remarks string             `json:"remarks"`
}

type MarkOrderPurchasedRequest struct {
	OrderID    string          `json:"-"`
	VendorName string          `json:"vendor_name" binding:"required"`
	Price      decimal.Decimal `json:"price"`
	Notes      string          `json:"notes"`
}
