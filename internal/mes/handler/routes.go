package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/gin-gonic/gin"
)

// Handlers every handler of the API
type Handlers struct {
	Workflow   *WorkflowHandler
	Attachment *AttachmentHandler
	Event      *EventHandler
	Inbox      *InboxHandler
}

// RegisterRoutes mounts the API on an authenticated group.
func (h *Handlers) RegisterRoutes(api *gin.RouterGroup) {
	wf := h.Workflow

	routeCards := api.Group("/route-cards")
	{
		routeCards.POST("", middleware.RequireRole(entity.RoleProductionPlanner, entity.RoleProductionManager), wf.CreateRouteCard)
		routeCards.GET("/:id", wf.GetRouteCard)
		routeCards.POST("/:id/confirm", wf.ConfirmRouteCard)
		routeCards.POST("/:id/cancel", middleware.RequireRole(entity.RoleProductionManager), wf.CancelRouteCard)
	}

	tasks := api.Group("/tasks")
	{
		tasks.GET("", wf.ListTasks)
		tasks.POST("/:id/start", wf.StartTask)
		tasks.POST("/:id/materials-prepared", wf.MarkMaterialsPrepared)
		tasks.POST("/:id/material-pickup", wf.ConfirmMaterialPickup)
		tasks.POST("/:id/material-delivery", wf.ConfirmMaterialDelivery)
		tasks.POST("/:id/followup", wf.LogProductionFollowup)
		tasks.POST("/:id/part-pickup", wf.ConfirmPartPickup)
		tasks.POST("/:id/qc-decision", wf.MakeQCDecision)
		tasks.POST("/:id/rework-delivery", wf.ConfirmReworkDelivery)
		tasks.POST("/:id/scrap-review", wf.ReviewScrapRequest)
		tasks.POST("/:id/stock", wf.StockFinishedPart)
		tasks.POST("/:id/receipt", wf.ConfirmReceipt)
	}

	api.POST("/change-addenda", wf.CreateChangeAddendum)
	api.GET("/approvals/:id", wf.GetApproval)
	api.POST("/approvals/:id/levels", wf.UpdateApprovalLevel)

	api.POST("/shortages", middleware.RequireRole(entity.RoleWarehouseManager), wf.DeriveShortageOrder)
	orders := api.Group("/orders")
	{
		orders.GET("/:id", wf.GetOrder)
		orders.PUT("/:id/status", wf.UpdateOrderStatus)
		orders.POST("/:id/purchase", middleware.RequireRole(entity.RoleProcurementLead), wf.MarkOrderPurchased)
	}

	if h.Attachment != nil {
		api.POST("/attachments", h.Attachment.Upload)
		api.GET("/attachments/*key", h.Attachment.Download)
	}
	if h.Event != nil {
		api.GET("/events", h.Event.Stream)
	}
	if h.Inbox != nil {
		api.GET("/notifications", h.Inbox.ListNotifications)
		api.POST("/notifications/:id/read", h.Inbox.MarkNotificationRead)
		api.GET("/audit-logs", h.Inbox.ListAuditLogs)
	}
}
