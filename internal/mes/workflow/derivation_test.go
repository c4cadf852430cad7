package workflow_test

import (
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/workflow"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedShortage an item of category and a pending request line for it
func (f *fixture) seedShortage(itemID, category, requestItemID string) {
	f.t.Helper()
	f.seedRows(
		&entity.Item{
			ID:       itemID,
			Code:     itemID,
			Name:     "Item " + itemID,
			Category: &entity.ItemCategory{ID: "cat-" + itemID, Name: category},
		},
		&entity.WarehouseRequestItem{
			ID:                requestItemID,
			RequestID:         "wr-7",
			ItemID:            itemID,
			QuantityRequested: 10,
			Status:            entity.WRItemPending,
			Version:           1,
		},
	)
}

func TestDeriveProductionOrder(t *testing.T) {
	f := newFixture(t)
	f.seedShortage("bracket", "Manufactured", "wri-1")
	f.sink.reset()

	order, err := f.wf.DeriveShortageOrder(f.ctx, workflow.DeriveShortageRequest{
		ItemID: "bracket", Quantity: 10, WarehouseRequestItemID: "wri-1",
	}, "wh-1")
	require.NoError(t, err)
	assert.Equal(t, entity.OrderTypeProduction, order.OrderType)
	assert.Equal(t, entity.OrderStatusDraft, order.Status)
	assert.Equal(t, 10, order.Quantity)
	assert.Equal(t, "normal", order.Priority)
	assert.Equal(t, "Auto-generated due to shortage in warehouse request #wr-7", order.Remarks)
	require.NotNil(t, order.RequiredDate)
	assert.True(t, order.RequiredDate.Equal(t0.Add(7*24*time.Hour)))
	require.NotNil(t, order.WarehouseRequestItemID)
	assert.Equal(t, "wri-1", *order.WarehouseRequestItemID)

	assert.Equal(t, entity.WRItemBackordered, f.requestItem("wri-1").Status)

	created := f.sink.noticesOfType(workflow.NotifyOrderCreated)
	require.Len(t, created, 1)
	assert.Equal(t, workflow.ToRole(entity.RoleProductionPlanner), created[0].To)

	_, err = f.wf.DeriveShortageOrder(f.ctx, workflow.DeriveShortageRequest{
		ItemID: "bracket", Quantity: 10, WarehouseRequestItemID: "wri-1",
	}, "wh-1")
	assert.ErrorIs(t, err, workflow.ErrDuplicateSubmission)
}

func TestDeriveOrderTypeByCategory(t *testing.T) {
	tests := []struct {
		category string
		want     entity.OrderType
		notify   string
	}{
		{"Manufactured", entity.OrderTypeProduction, entity.RoleProductionPlanner},
		{"  PRODUCTION ", entity.OrderTypeProduction, entity.RoleProductionPlanner},
		{"internal", entity.OrderTypeProduction, entity.RoleProductionPlanner},
		{"Raw material", entity.OrderTypeProcurement, entity.RoleProcurementLead},
		{"Fasteners", entity.OrderTypeProcurement, entity.RoleProcurementLead},
	}
	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			f := newFixture(t)
			f.seedShortage("part", tt.category, "wri-1")

			order, err := f.wf.DeriveShortageOrder(f.ctx, workflow.DeriveShortageRequest{
				ItemID: "part", Quantity: 3, WarehouseRequestItemID: "wri-1", Priority: "urgent",
			}, "wh-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, order.OrderType)
			assert.Equal(t, "urgent", order.Priority)
			created := f.sink.noticesOfType(workflow.NotifyOrderCreated)
			require.Len(t, created, 1)
			assert.Equal(t, workflow.ToRole(tt.notify), created[0].To)
		})
	}

	assert.Equal(t, entity.OrderTypeProcurement, workflow.OrderTypeFor(&entity.Item{ID: "loose"}))
}

func TestDeriveShortageValidation(t *testing.T) {
	f := newFixture(t)
	f.seedShortage("bracket", "Manufactured", "wri-1")

	_, err := f.wf.DeriveShortageOrder(f.ctx, workflow.DeriveShortageRequest{
		ItemID: "bracket", Quantity: 0, WarehouseRequestItemID: "wri-1",
	}, "wh-1")
	assert.ErrorIs(t, err, workflow.ErrMissingRequiredField)

	_, err = f.wf.DeriveShortageOrder(f.ctx, workflow.DeriveShortageRequest{
		ItemID: "ghost", Quantity: 1, WarehouseRequestItemID: "wri-1",
	}, "wh-1")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
	assert.Equal(t, entity.WRItemPending, f.requestItem("wri-1").Status)

	_, err = f.wf.DeriveShortageOrder(f.ctx, workflow.DeriveShortageRequest{
		ItemID: "bracket", Quantity: 1, WarehouseRequestItemID: "wri-404",
	}, "wh-1")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestDeriveShortageCustomLeadTime(t *testing.T) {
	f := newFixture(t, workflow.WithShortageLeadTime(48*time.Hour))
	f.seedShortage("bolt", "Fasteners", "wri-1")

	order, err := f.wf.DeriveShortageOrder(f.ctx, workflow.DeriveShortageRequest{
		ItemID: "bolt", Quantity: 200, WarehouseRequestItemID: "wri-1",
	}, "wh-1")
	require.NoError(t, err)
	require.NotNil(t, order.RequiredDate)
	assert.True(t, order.RequiredDate.Equal(t0.Add(48*time.Hour)))
}

func TestProcurementPurchaseAndReceipt(t *testing.T) {
	f := newFixture(t)
	f.seedShortage("bolt", "Fasteners", "wri-1")
	order, err := f.wf.DeriveShortageOrder(f.ctx, workflow.DeriveShortageRequest{
		ItemID: "bolt", Quantity: 10, WarehouseRequestItemID: "wri-1",
	}, "wh-1")
	require.NoError(t, err)

	purchase := workflow.MarkOrderPurchasedRequest{OrderID: order.ID, VendorName: "Acme Fasteners", Price: decimal.RequireFromString("125.50")}
	purchased, task, err := f.wf.MarkOrderPurchased(f.ctx, purchase, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusInProgress, purchased.Status)
	assert.Equal(t, "Acme Fasteners", purchased.VendorName)
	assert.True(t, purchased.Price.Equal(decimal.RequireFromString("125.5")))
	assert.Equal(t, entity.TaskTypeReceiveProcurement, task.Type)
	assert.Equal(t, entity.RoleWarehouseManager, task.AssigneeRole)
	require.NotNil(t, task.OrderID)
	assert.Equal(t, order.ID, *task.OrderID)
	require.NotNil(t, task.DueDate)
	assert.True(t, task.DueDate.Equal(*order.RequiredDate))

	_, _, err = f.wf.MarkOrderPurchased(f.ctx, purchase, "buyer-1")
	assert.ErrorIs(t, err, workflow.ErrDuplicateSubmission)

	received, err := f.wf.ConfirmReceipt(f.ctx, workflow.TaskActionRequest{TaskID: task.ID, Notes: "2 boxes"}, "wh-1")
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusCompleted, received.Status)

	item := f.requestItem("wri-1")
	assert.Equal(t, entity.WRItemReady, item.Status)
	assert.Equal(t, 10, item.QuantityFulfilled)

	_, err = f.wf.ConfirmReceipt(f.ctx, workflow.TaskActionRequest{TaskID: task.ID}, "wh-1")
	assert.ErrorIs(t, err, workflow.ErrDuplicateSubmission)
}

func TestMarkOrderPurchasedValidation(t *testing.T) {
	f := newFixture(t)
	f.seedOrder("proc-1", entity.OrderTypeProcurement)
	f.seedOrder("prod-1", entity.OrderTypeProduction)

	tests := []struct {
		name string
		req  workflow.MarkOrderPurchasedRequest
		want error
	}{
		{"no vendor", workflow.MarkOrderPurchasedRequest{OrderID: "proc-1"}, workflow.ErrMissingRequiredField},
		{"negative price", workflow.MarkOrderPurchasedRequest{OrderID: "proc-1", VendorName: "Acme", Price: decimal.NewFromInt(-1)}, workflow.ErrInvalidTransition},
		{"production order", workflow.MarkOrderPurchasedRequest{OrderID: "prod-1", VendorName: "Acme"}, workflow.ErrInvalidTransition},
		{"unknown order", workflow.MarkOrderPurchasedRequest{OrderID: "nope", VendorName: "Acme"}, workflow.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.wf.MarkOrderPurchased(f.ctx, tt.req, "buyer-1")
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, entity.OrderStatusDraft, f.order("proc-1").Status)
}

func TestUpdateOrderStatus(t *testing.T) {
	f := newFixture(t)
	f.seedShortage("bracket", "Manufactured", "wri-1")
	order, err := f.wf.DeriveShortageOrder(f.ctx, workflow.DeriveShortageRequest{
		ItemID: "bracket", Quantity: 4, WarehouseRequestItemID: "wri-1",
	}, "wh-1")
	require.NoError(t, err)

	moved, err := f.wf.UpdateOrderStatus(f.ctx, workflow.UpdateOrderStatusRequest{
		OrderID: order.ID, Status: entity.OrderStatusSubmitted, Remarks: "approved by planning",
	}, "pm-1")
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusSubmitted, moved.Status)
	assert.Equal(t, "approved by planning", moved.Remarks)

	_, err = f.wf.UpdateOrderStatus(f.ctx, workflow.UpdateOrderStatusRequest{
		OrderID: order.ID, Status: entity.OrderStatusDraft,
	}, "pm-1")
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)

	_, err = f.wf.UpdateOrderStatus(f.ctx, workflow.UpdateOrderStatusRequest{
		OrderID: order.ID, Status: entity.OrderStatusCompleted,
	}, "pm-1")
	require.NoError(t, err)
	item := f.requestItem("wri-1")
	assert.Equal(t, entity.WRItemReady, item.Status)
	assert.Equal(t, 4, item.QuantityFulfilled)

	_, err = f.wf.UpdateOrderStatus(f.ctx, workflow.UpdateOrderStatusRequest{
		OrderID: order.ID, Status: entity.OrderStatusCancelled,
	}, "pm-1")
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestCancelOrderWithActiveRouteCard(t *testing.T) {
	f := newFixture(t)
	rc := f.newRouteCard("ord-1", workstations(false, "Milling")...)

	_, err := f.wf.UpdateOrderStatus(f.ctx, workflow.UpdateOrderStatusRequest{
		OrderID: "ord-1", Status: entity.OrderStatusCancelled,
	}, "pm-1")
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	assert.Equal(t, entity.OrderStatusSubmitted, f.order("ord-1").Status)

	_, err = f.wf.CancelRouteCard(f.ctx, workflow.CancelRouteCardRequest{RouteCardID: rc.ID, Reason: "no longer needed"}, "pm-1")
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusCancelled, f.order("ord-1").Status)
}

func TestStockingCompletesDerivedOrder(t *testing.T) {
	f := newFixture(t)
	f.seedShortage("bracket", "Manufactured", "wri-1")
	order, err := f.wf.DeriveShortageOrder(f.ctx, workflow.DeriveShortageRequest{
		ItemID: "bracket", Quantity: 6, WarehouseRequestItemID: "wri-1",
	}, "wh-1")
	require.NoError(t, err)

	rc, err := f.wf.CreateRouteCard(f.ctx, workflow.CreateRouteCardRequest{
		OrderID: order.ID, Workstations: workstations(false, "Bending"),
	}, "planner-1")
	require.NoError(t, err)
	f.toProduction(rc, t0.Add(48*time.Hour))
	f.toQC(rc)
	qc := f.openTask(rc.ID, entity.TaskTypeQCInspection)
	_, err = f.wf.MakeQCDecision(f.ctx, workflow.QCDecisionRequest{TaskID: qc.ID, Decision: entity.QCApprove}, "qc-1")
	require.NoError(t, err)
	stock := f.openTask(rc.ID, entity.TaskTypeStockFinishedPart)
	_, err = f.wf.StockFinishedPart(f.ctx, workflow.TaskActionRequest{TaskID: stock.ID}, "wh-1")
	require.NoError(t, err)

	assert.Equal(t, entity.OrderStatusCompleted, f.order(order.ID).Status)
	item := f.requestItem("wri-1")
	assert.Equal(t, entity.WRItemReady, item.Status)
	assert.Equal(t, 6, item.QuantityFulfilled)
}
