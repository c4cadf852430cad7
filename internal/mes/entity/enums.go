package entity

import (
	"fmt"
	"strings"
)

// RouteStatus route card status
type RouteStatus string

const (
	RouteStatusDraft                 RouteStatus = "DRAFT"
	RouteStatusConfirmed             RouteStatus = "CONFIRMED"
	RouteStatusMaterialsPrepared     RouteStatus = "MATERIALS_PREPARED"
	RouteStatusMaterialsInTransit    RouteStatus = "MATERIALS_IN_TRANSIT"
	RouteStatusInProduction          RouteStatus = "IN_PRODUCTION"
	RouteStatusAwaitingQC            RouteStatus = "AWAITING_QC"
	RouteStatusNeedsRework           RouteStatus = "NEEDS_REWORK"
	RouteStatusAwaitingScrapApproval RouteStatus = "AWAITING_SCRAP_APPROVAL"
	RouteStatusCompleted             RouteStatus = "COMPLETED"
	RouteStatusCancelled             RouteStatus = "CANCELLED"
)

var routeStatuses = []RouteStatus{
	RouteStatusDraft, RouteStatusConfirmed, RouteStatusMaterialsPrepared,
	RouteStatusMaterialsInTransit, RouteStatusInProduction, RouteStatusAwaitingQC,
	RouteStatusNeedsRework, RouteStatusAwaitingScrapApproval, RouteStatusCompleted,
	RouteStatusCancelled,
}

// IsTerminal reports whether no further transition is allowed.
func (s RouteStatus) IsTerminal() bool {
	return s == RouteStatusCompleted || s == RouteStatusCancelled
}

func ParseRouteStatus(s string) (RouteStatus, error) {
	return parseEnum(s, routeStatuses, "route status")
}

// RouteLocation physical location of the parts on a route card
type RouteLocation string

const (
	LocationWarehouse       RouteLocation = "WAREHOUSE"
	LocationWithExpediter   RouteLocation = "WITH_EXPEDITER"
	LocationAtWorkstation   RouteLocation = "AT_WORKSTATION"
	LocationAtSubcontractor RouteLocation = "AT_SUBCONTRACTOR"
	LocationQCArea          RouteLocation = "QC_AREA"
)

var routeLocations = []RouteLocation{
	LocationWarehouse, LocationWithExpediter, LocationAtWorkstation,
	LocationAtSubcontractor, LocationQCArea,
}

func ParseRouteLocation(s string) (RouteLocation, error) {
	return parseEnum(s, routeLocations, "route location")
}

// TaskType one per workflow stage, plus the non-workflow types
type TaskType string

const (
	TaskTypeMaterialPreparation TaskType = "MATERIAL_PREPARATION"
	TaskTypeMaterialPickup      TaskType = "MATERIAL_PICKUP"
	TaskTypeMaterialDelivery    TaskType = "MATERIAL_DELIVERY"
	TaskTypeProductionFollowup  TaskType = "PRODUCTION_FOLLOWUP"
	TaskTypePartPickup          TaskType = "PART_PICKUP"
	TaskTypeQCInspection        TaskType = "QC_INSPECTION"
	TaskTypeDeliverForRework    TaskType = "DELIVER_FOR_REWORK"
	TaskTypeReviewScrapRequest  TaskType = "REVIEW_SCRAP_REQUEST"
	TaskTypeStockFinishedPart   TaskType = "STOCK_FINISHED_PART"

	TaskTypeReviewChangeRequest TaskType = "REVIEW_CHANGE_REQUEST"
	TaskTypeReceiveProcurement  TaskType = "RECEIVE_PROCUREMENT"
	TaskTypeOther               TaskType = "OTHER"
)

var taskTypes = []TaskType{
	TaskTypeMaterialPreparation, TaskTypeMaterialPickup, TaskTypeMaterialDelivery,
	TaskTypeProductionFollowup, TaskTypePartPickup, TaskTypeQCInspection,
	TaskTypeDeliverForRework, TaskTypeReviewScrapRequest, TaskTypeStockFinishedPart,
	TaskTypeReviewChangeRequest, TaskTypeReceiveProcurement, TaskTypeOther,
}

// IsWorkflow reports whether the task type belongs to the route card chain.
func (t TaskType) IsWorkflow() bool {
	switch t {
	case TaskTypeReviewChangeRequest, TaskTypeReceiveProcurement, TaskTypeOther:
		return false
	}
	return t != ""
}

func ParseTaskType(s string) (TaskType, error) {
	return parseEnum(s, taskTypes, "task type")
}

// TaskStatus task status
type TaskStatus string

const (
	TaskStatusNew        TaskStatus = "NEW"
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusCancelled  TaskStatus = "CANCELLED"
)

var taskStatuses = []TaskStatus{
	TaskStatusNew, TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusCancelled,
}

// IsOpen reports whether the task still awaits an actor.
func (s TaskStatus) IsOpen() bool {
	return s == TaskStatusNew || s == TaskStatusPending || s == TaskStatusInProgress
}

// OpenTaskStatuses for repository filters.
func OpenTaskStatuses() []TaskStatus {
	return []TaskStatus{TaskStatusNew, TaskStatusPending, TaskStatusInProgress}
}

func ParseTaskStatus(s string) (TaskStatus, error) {
	return parseEnum(s, taskStatuses, "task status")
}

// Task priorities, lower is more urgent.
const (
	PriorityUrgent = 1
	PriorityHigh   = 2
	PriorityMedium = 3
	PriorityLow    = 4
)

// OrderType production or procurement, fixed at creation
type OrderType string

const (
	OrderTypeProduction  OrderType = "PRODUCTION"
	OrderTypeProcurement OrderType = "PROCUREMENT"
)

func ParseOrderType(s string) (OrderType, error) {
	return parseEnum(s, []OrderType{OrderTypeProduction, OrderTypeProcurement}, "order type")
}

// OrderStatus order status
type OrderStatus string

const (
	OrderStatusDraft      OrderStatus = "DRAFT"
	OrderStatusSubmitted  OrderStatus = "SUBMITTED"
	OrderStatusInProgress OrderStatus = "IN_PROGRESS"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

var orderStatuses = []OrderStatus{
	OrderStatusDraft, OrderStatusSubmitted, OrderStatusInProgress, OrderStatusCompleted, OrderStatusCancelled,
}

// Rank orders the forward progression; terminal statuses share the top rank.
func (s OrderStatus) Rank() int {
	switch s {
	case OrderStatusDraft:
		return 0
	case OrderStatusSubmitted:
		return 1
	case OrderStatusInProgress:
		return 2
	case OrderStatusCompleted, OrderStatusCancelled:
		return 3
	}
	return -1
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	return parseEnum(s, orderStatuses, "order status")
}

// ApprovalLevel change request approval level
type ApprovalLevel string

const (
	LevelQCManager         ApprovalLevel = "QC_MANAGER"
	LevelProductionManager ApprovalLevel = "PRODUCTION_MANAGER"
	LevelTechnicalManager  ApprovalLevel = "TECHNICAL_MANAGER"
)

// ApprovalLevels in review cascade order.
var ApprovalLevels = []ApprovalLevel{LevelQCManager, LevelProductionManager, LevelTechnicalManager}

// Next returns the level reviewed after l in the cascade.
func (l ApprovalLevel) Next() (ApprovalLevel, bool) {
	switch l {
	case LevelQCManager:
		return LevelProductionManager, true
	case LevelProductionManager:
		return LevelTechnicalManager, true
	}
	return "", false
}

// Role the user role that reviews this level
func (l ApprovalLevel) Role() string {
	switch l {
	case LevelQCManager:
		return RoleQCManager
	case LevelProductionManager:
		return RoleProductionManager
	case LevelTechnicalManager:
		return RoleTechnicalManager
	}
	return ""
}

func ParseApprovalLevel(s string) (ApprovalLevel, error) {
	return parseEnum(s, ApprovalLevels, "approval level")
}

// ApprovalStatus status of one approval level
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

func ParseApprovalStatus(s string) (ApprovalStatus, error) {
	return parseEnum(s, []ApprovalStatus{ApprovalPending, ApprovalApproved, ApprovalRejected}, "approval status")
}

// WarehouseRequestStatus warehouse request status
type WarehouseRequestStatus string

const (
	WRStatusDraft            WarehouseRequestStatus = "DRAFT"
	WRStatusSubmitted        WarehouseRequestStatus = "SUBMITTED"
	WRStatusProcessing       WarehouseRequestStatus = "PROCESSING"
	WRStatusAwaitingApproval WarehouseRequestStatus = "AWAITING_APPROVAL"
	WRStatusChangesApproved  WarehouseRequestStatus = "CHANGES_APPROVED"
	WRStatusChangesRejected  WarehouseRequestStatus = "CHANGES_REJECTED"
	WRStatusCompleted        WarehouseRequestStatus = "COMPLETED"
	WRStatusCancelled        WarehouseRequestStatus = "CANCELLED"
)

// WarehouseRequestType warehouse request type
type WarehouseRequestType string

const (
	WRTypeStandard       WarehouseRequestType = "STANDARD"
	WRTypeChangeAddendum WarehouseRequestType = "CHANGE_ADDENDUM"
	WRTypeSpecialRequest WarehouseRequestType = "SPECIAL_REQUEST"
)

// WarehouseRequestItemStatus request line status
type WarehouseRequestItemStatus string

const (
	WRItemPending     WarehouseRequestItemStatus = "PENDING"
	WRItemReady       WarehouseRequestItemStatus = "READY"
	WRItemBackordered WarehouseRequestItemStatus = "BACKORDERED"
	WRItemFulfilled   WarehouseRequestItemStatus = "FULFILLED"
	WRItemCancelled   WarehouseRequestItemStatus = "CANCELLED"
)

// FollowUpStatus outcome of a production follow-up
type FollowUpStatus string

const (
	FollowUpOnSchedule     FollowUpStatus = "on_schedule"
	FollowUpDelayed        FollowUpStatus = "delayed"
	FollowUpReadyForPickup FollowUpStatus = "ready_for_pickup"
)

func ParseFollowUpStatus(s string) (FollowUpStatus, error) {
	return parseEnum(s, []FollowUpStatus{FollowUpOnSchedule, FollowUpDelayed, FollowUpReadyForPickup}, "follow-up status")
}

// QCDecision QC inspection outcome
type QCDecision string

const (
	QCApprove       QCDecision = "approve"
	QCRequestRework QCDecision = "request_rework"
	QCRequestScrap  QCDecision = "request_scrap"
)

func ParseQCDecision(s string) (QCDecision, error) {
	return parseEnum(s, []QCDecision{QCApprove, QCRequestRework, QCRequestScrap}, "QC decision")
}

// ScrapDecision outcome of a scrap request review
type ScrapDecision string

const (
	ScrapApprove ScrapDecision = "approve_scrap"
	ScrapDeny    ScrapDecision = "deny_scrap"
)

func ParseScrapDecision(s string) (ScrapDecision, error) {
	return parseEnum(s, []ScrapDecision{ScrapApprove, ScrapDeny}, "scrap decision")
}

// User roles that receive workflow tasks and notifications.
const (
	RoleWarehouseManager  = "warehouse_manager"
	RoleExpediter         = "expediter"
	RoleProductionPlanner = "production_planner"
	RoleProductionManager = "production_manager"
	RoleQCManager         = "qc_manager"
	RoleTechnicalManager  = "technical_manager"
	RoleProcurementLead   = "procurement_lead"
	RoleAdmin             = "mes_admin"
)

// parseEnum matches case-insensitively and rejects unknown values.
func parseEnum[T ~string](s string, allowed []T, what string) (T, error) {
	for _, v := range allowed {
		if strings.EqualFold(string(v), strings.TrimSpace(s)) {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("unknown %s %q", what, s)
}
