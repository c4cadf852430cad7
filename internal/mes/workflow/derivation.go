package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/google/uuid"
)

// DefaultShortageLeadTime the required date of a derived order, counted from now
const DefaultShortageLeadTime = 7 * 24 * time.Hour

// productionCategories item categories made in-house
var productionCategories = map[string]bool{
	"manufactured": true,
	"production":   true,
	"internal":     true,
}

// OrderTypeFor picks PRODUCTION for in-house categories, PROCUREMENT otherwise.
func OrderTypeFor(item *entity.Item) entity.OrderType {
	if item.Category != nil && productionCategories[strings.ToLower(strings.TrimSpace(item.Category.Name))] {
		return entity.OrderTypeProduction
	}
	return entity.OrderTypeProcurement
}

// OrderDerivation turns warehouse shortages into orders.
type OrderDerivation struct {
	now      func() time.Time
	leadTime time.Duration
}

func NewOrderDerivation(now func() time.Time, leadTime time.Duration) *OrderDerivation {
	if now == nil {
		now = time.Now
	}
	if leadTime <= 0 {
		leadTime = DefaultShortageLeadTime
	}
	return &OrderDerivation{now: now, leadTime: leadTime}
}

// DeriveFromShortage creates a DRAFT order for a shortage and backorders the
// request item.
func (d *OrderDerivation) DeriveFromShortage(ctx context.Context, repo Repository, req DeriveShortageRequest, actorID string) (*entity.Order, []Notice, error) {
	if req.Quantity <= 0 {
		return nil, nil, missingField("quantity")
	}
	item, err := repo.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, nil, err
	}
	wrItem, err := repo.GetWarehouseRequestItem(ctx, req.WarehouseRequestItemID)
	if err != nil {
		return nil, nil, err
	}

	now := d.now()
	required := now.Add(d.leadTime)
	priority := req.Priority
	if priority == "" {
		priority = "normal"
	}
	order := &entity.Order{
		ID:                     uuid.New().String(),
		OrderType:              OrderTypeFor(item),
		Status:                 entity.OrderStatusDraft,
		Priority:               priority,
		Quantity:               req.Quantity,
		Remarks:                fmt.Sprintf("Auto-generated due to shortage in warehouse request #%s", wrItem.RequestID),
		RequiredDate:           &required,
		ItemID:                 item.ID,
		WarehouseRequestItemID: &wrItem.ID,
		CreatedByID:            actorID,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := repo.CreateOrder(ctx, order); err != nil {
		return nil, nil, fmt.Errorf("create order: %w", err)
	}

	wrItem.Status = entity.WRItemBackordered
	if err := repo.SaveWarehouseRequestItem(ctx, wrItem); err != nil {
		return nil, nil, fmt.Errorf("save warehouse request item %s: %w", wrItem.ID, err)
	}

	role := entity.RoleProcurementLead
	if order.OrderType == entity.OrderTypeProduction {
		role = entity.RoleProductionPlanner
	}
	notices := []Notice{{
		To:      ToRole(role),
		Message: fmt.Sprintf("New %s order #%s for %d x %s", strings.ToLower(string(order.OrderType)), order.ID, order.Quantity, item.Name),
		Type:    NotifyOrderCreated,
		Link:    "/orders/" + order.ID,
	}}
	return order, notices, nil
}

// moveOrder moves the order forward to status. It reports false, without error,
// when the order is already at or past that point. Completion back-propagates to
// the originating warehouse request item.
func moveOrder(ctx context.Context, repo Repository, order *entity.Order, status entity.OrderStatus, remarks string, now time.Time) (bool, error) {
	if order.Status.IsTerminal() || status.Rank() <= order.Status.Rank() {
		return false, nil
	}
	order.Status = status
	if remarks != "" {
		order.Remarks = remarks
	}
	order.UpdatedAt = now
	if err := repo.SaveOrder(ctx, order); err != nil {
		return false, fmt.Errorf("save order %s: %w", order.ID, err)
	}
	if status == entity.OrderStatusCompleted {
		if err := fulfillRequestItem(ctx, repo, order); err != nil {
			return false, err
		}
	}
	return true, nil
}

func fulfillRequestItem(ctx context.Context, repo Repository, order *entity.Order) error {
	if order.WarehouseRequestItemID == nil {
		return nil
	}
	item, err := repo.GetWarehouseRequestItem(ctx, *order.WarehouseRequestItemID)
	if err != nil {
		return err
	}
	item.Status = entity.WRItemReady
	item.QuantityFulfilled = order.Quantity
	item.Remarks = fmt.Sprintf("Fulfilled by %s order #%s", strings.ToLower(string(order.OrderType)), order.ID)
	if err := repo.SaveWarehouseRequestItem(ctx, item); err != nil {
		return fmt.Errorf("save warehouse request item %s: %w", item.ID, err)
	}
	return nil
}
