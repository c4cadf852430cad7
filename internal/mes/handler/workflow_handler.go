package handler

import (
	"errors"
	"io"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/workflow"
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WorkflowHandler route cards, tasks, change approvals and orders
type WorkflowHandler struct {
	wf     *workflow.Orchestrator
	logger *zap.Logger
}

func NewWorkflowHandler(wf *workflow.Orchestrator, logger *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{wf: wf, logger: logger}
}

// ChainResponse what one workflow step changed
type ChainResponse struct {
	RouteCard      *entity.RouteCard `json:"route_card"`
	Order          *entity.Order     `json:"order,omitempty"`
	CompletedTask  *entity.Task      `json:"completed_task,omitempty"`
	CreatedTasks   []*entity.Task    `json:"created_tasks"`
	CancelledTasks []*entity.Task    `json:"cancelled_tasks"`
}

func toChainResponse(r *workflow.ChainResult) ChainResponse {
	resp := ChainResponse{
		RouteCard:      r.RouteCard,
		Order:          r.Order,
		CompletedTask:  r.Completed,
		CreatedTasks:   r.Created,
		CancelledTasks: r.Cancelled,
	}
	if resp.CreatedTasks == nil {
		resp.CreatedTasks = []*entity.Task{}
	}
	if resp.CancelledTasks == nil {
		resp.CancelledTasks = []*entity.Task{}
	}
	return resp
}

// ApprovalResponse approval state after a change
type ApprovalResponse struct {
	Approval       *entity.ChangeRequestApproval `json:"approval"`
	Request        *entity.WarehouseRequest      `json:"warehouse_request"`
	CreatedTasks   []*entity.Task                `json:"created_tasks"`
	CompletedTasks []*entity.Task                `json:"completed_tasks"`
	CancelledTasks []*entity.Task                `json:"cancelled_tasks"`
}

func toApprovalResponse(r *workflow.ApprovalResult) ApprovalResponse {
	nonNil := func(ts []*entity.Task) []*entity.Task {
		if ts == nil {
			return []*entity.Task{}
		}
		return ts
	}
	return ApprovalResponse{
		Approval:       r.Approval,
		Request:        r.Request,
		CreatedTasks:   nonNil(r.Created),
		CompletedTasks: nonNil(r.Completed),
		CancelledTasks: nonNil(r.Cancelled),
	}
}

// bindOptional accepts an empty body for actions whose fields are all optional.
// A chunked request carries no length, so an empty one shows up as io.EOF.
func bindOptional(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		BadRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func bindRequired(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// CreateRouteCard POST /route-cards
func (h *WorkflowHandler) CreateRouteCard(c *gin.Context) {
	var req workflow.CreateRouteCardRequest
	if !bindRequired(c, &req) {
		return
	}
	rc, err := h.wf.CreateRouteCard(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	Created(c, rc)
}

// GetRouteCard GET /route-cards/:id
func (h *WorkflowHandler) GetRouteCard(c *gin.Context) {
	rc, err := h.wf.GetRouteCard(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	Success(c, rc)
}

// ConfirmRouteCard POST /route-cards/:id/confirm
func (h *WorkflowHandler) ConfirmRouteCard(c *gin.Context) {
	var req workflow.ConfirmRouteCardRequest
	if !bindOptional(c, &req) {
		return
	}
	req.RouteCardID = c.Param("id")
	h.chain(c)(h.wf.ConfirmRouteCard(c.Request.Context(), req, GetUserID(c)))
}

// CancelRouteCard POST /route-cards/:id/cancel
func (h *WorkflowHandler) CancelRouteCard(c *gin.Context) {
	var req workflow.CancelRouteCardRequest
	if !bindRequired(c, &req) {
		return
	}
	req.RouteCardID = c.Param("id")
	h.chain(c)(h.wf.CancelRouteCard(c.Request.Context(), req, GetUserID(c)))
}

// chain writes the result of a task chain operation.
func (h *WorkflowHandler) chain(c *gin.Context) func(*workflow.ChainResult, error) {
	return func(res *workflow.ChainResult, err error) {
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		Success(c, toChainResponse(res))
	}
}

// ListTasks GET /tasks?route_card_id=&approval_id=&order_id=&type=&assignee_role=&open=true
func (h *WorkflowHandler) ListTasks(c *gin.Context) {
	page, pageSize := pageParams(c)
	filter := entity.TaskFilter{
		RouteCardID:  c.Query("route_card_id"),
		ApprovalID:   c.Query("approval_id"),
		OrderID:      c.Query("order_id"),
		AssigneeRole: c.Query("assignee_role"),
		OpenOnly:     c.Query("open") == "true",
		Page:         page,
		Size:         pageSize,
	}
	if t := c.Query("type"); t != "" {
		tt, err := entity.ParseTaskType(t)
		if err != nil {
			BadRequest(c, err.Error())
			return
		}
		filter.Type = tt
	}
	tasks, total, err := h.wf.ListTasks(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if tasks == nil {
		tasks = []entity.Task{}
	}
	Success(c, ListResponse{Items: tasks, Pagination: newPagination(page, pageSize, total)})
}

// StartTask POST /tasks/:id/start
func (h *WorkflowHandler) StartTask(c *gin.Context) {
	task, err := h.wf.StartTask(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	Success(c, task)
}

// MarkMaterialsPrepared POST /tasks/:id/materials-prepared
func (h *WorkflowHandler) MarkMaterialsPrepared(c *gin.Context) {
	var req workflow.TaskActionRequest
	if !bindOptional(c, &req) {
		return
	}
	req.TaskID = c.Param("id")
	h.chain(c)(h.wf.MarkMaterialsPrepared(c.Request.Context(), req, GetUserID(c)))
}

// ConfirmMaterialPickup POST /tasks/:id/material-pickup
func (h *WorkflowHandler) ConfirmMaterialPickup(c *gin.Context) {
	var req workflow.MaterialPickupRequest
	if !bindOptional(c, &req) {
		return
	}
	req.TaskID = c.Param("id")
	h.chain(c)(h.wf.ConfirmMaterialPickup(c.Request.Context(), req, GetUserID(c)))
}

// ConfirmMaterialDelivery POST /tasks/:id/material-delivery
func (h *WorkflowHandler) ConfirmMaterialDelivery(c *gin.Context) {
	var req workflow.MaterialDeliveryRequest
	if !bindOptional(c, &req) {
		return
	}
	req.TaskID = c.Param("id")
	h.chain(c)(h.wf.ConfirmMaterialDelivery(c.Request.Context(), req, GetUserID(c)))
}

// LogProductionFollowup POST /tasks/:id/followup
func (h *WorkflowHandler) LogProductionFollowup(c *gin.Context) {
	var req workflow.FollowupRequest
	if !bindRequired(c, &req) {
		return
	}
	req.TaskID = c.Param("id")
	h.chain(c)(h.wf.LogProductionFollowup(c.Request.Context(), req, GetUserID(c)))
}

// ConfirmPartPickup POST /tasks/:id/part-pickup
func (h *WorkflowHandler) ConfirmPartPickup(c *gin.Context) {
	var req workflow.PartPickupRequest
	if !bindOptional(c, &req) {
		return
	}
	req.TaskID = c.Param("id")
	h.chain(c)(h.wf.ConfirmPartPickup(c.Request.Context(), req, GetUserID(c)))
}

// MakeQCDecision POST /tasks/:id/qc-decision
func (h *WorkflowHandler) MakeQCDecision(c *gin.Context) {
	var req workflow.QCDecisionRequest
	if !bindRequired(c, &req) {
		return
	}
	req.TaskID = c.Param("id")
	h.chain(c)(h.wf.MakeQCDecision(c.Request.Context(), req, GetUserID(c)))
}

// ConfirmReworkDelivery POST /tasks/:id/rework-delivery
func (h *WorkflowHandler) ConfirmReworkDelivery(c *gin.Context) {
	var req workflow.ReworkDeliveryRequest
	if !bindOptional(c, &req) {
		return
	}
	req.TaskID = c.Param("id")
	h.chain(c)(h.wf.ConfirmReworkDelivery(c.Request.Context(), req, GetUserID(c)))
}

// ReviewScrapRequest POST /tasks/:id/scrap-review
func (h *WorkflowHandler) ReviewScrapRequest(c *gin.Context) {
	var req workflow.ScrapReviewRequest
	if !bindRequired(c, &req) {
		return
	}
	req.TaskID = c.Param("id")
	h.chain(c)(h.wf.ReviewScrapRequest(c.Request.Context(), req, GetUserID(c)))
}

// StockFinishedPart POST /tasks/:id/stock
func (h *WorkflowHandler) StockFinishedPart(c *gin.Context) {
	var req workflow.TaskActionRequest
	if !bindOptional(c, &req) {
		return
	}
	req.TaskID = c.Param("id")
	h.chain(c)(h.wf.StockFinishedPart(c.Request.Context(), req, GetUserID(c)))
}

// ConfirmReceipt POST /tasks/:id/receipt
func (h *WorkflowHandler) ConfirmReceipt(c *gin.Context) {
	var req workflow.TaskActionRequest
	if !bindOptional(c, &req) {
		return
	}
	req.TaskID = c.Param("id")
	order, err := h.wf.ConfirmReceipt(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	Success(c, order)
}

// CreateChangeAddendum POST /change-addenda
func (h *WorkflowHandler) CreateChangeAddendum(c *gin.Context) {
	var req workflow.CreateChangeAddendumRequest
	if !bindRequired(c, &req) {
		return
	}
	res, err := h.wf.CreateChangeAddendum(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	Created(c, toApprovalResponse(res))
}

// GetApproval GET /approvals/:id
func (h *WorkflowHandler) GetApproval(c *gin.Context) {
	a, err := h.wf.GetApproval(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	Success(c, a)
}

// UpdateApprovalLevel POST /approvals/:id/levels
// Only holders of the level's reviewer role (or admins) may decide it.
func (h *WorkflowHandler) UpdateApprovalLevel(c *gin.Context) {
	var req workflow.UpdateApprovalLevelRequest
	if !bindRequired(c, &req) {
		return
	}
	req.ApprovalID = c.Param("id")
	if !middleware.HasRole(c, req.Level.Role()) {
		Forbidden(c, "Role required: "+req.Level.Role())
		return
	}
	res, err := h.wf.UpdateApprovalLevel(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	Success(c, toApprovalResponse(res))
}

// DeriveShortageOrder POST /shortages
func (h *WorkflowHandler) DeriveShortageOrder(c *gin.Context) {
	var req workflow.DeriveShortageRequest
	if !bindRequired(c, &req) {
		return
	}
	order, err := h.wf.DeriveShortageOrder(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	Created(c, order)
}

// GetOrder GET /orders/:id
func (h *WorkflowHandler) GetOrder(c *gin.Context) {
	order, err := h.wf.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	Success(c, order)
}

// UpdateOrderStatus PUT /orders/:id/status
func (h *WorkflowHandler) UpdateOrderStatus(c *gin.Context) {
	var req workflow.UpdateOrderStatusRequest
	if !bindRequired(c, &req) {
		return
	}
	req.OrderID = c.Param("id")
	order, err := h.wf.UpdateOrderStatus(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	Success(c, order)
}

// MarkOrderPurchased POST /orders/:id/purchase
func (h *WorkflowHandler) MarkOrderPurchased(c *gin.Context) {
	var req workflow.MarkOrderPurchasedRequest
	if !bindRequired(c, &req) {
		return
	}
	req.OrderID = c.Param("id")
	order, task, err := h.wf.MarkOrderPurchased(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	Success(c, gin.H{"order": order, "receiving_task": task})
}
