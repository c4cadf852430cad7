package workflow

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// Repository persistence of the workflow aggregates. Get methods return an error
// wrapping ErrNotFound for a missing row. Save methods compare-and-swap on Version
// and fail with ErrConcurrentModification when the row moved underneath.
type Repository interface {
	GetRouteCard(ctx context.Context, id string) (*entity.RouteCard, error)
	GetRouteCardByOrder(ctx context.Context, orderID string) (*entity.RouteCard, error)
	CreateRouteCard(ctx context.Context, rc *entity.RouteCard) error
	SaveRouteCard(ctx context.Context, rc *entity.RouteCard) error

	GetTask(ctx context.Context, id string) (*entity.Task, error)
	CreateTask(ctx context.Context, task *entity.Task) error
	SaveTask(ctx context.Context, task *entity.Task) error
	ListTasks(ctx context.Context, filter entity.TaskFilter) ([]entity.Task, int64, error)

	GetOrder(ctx context.Context, id string) (*entity.Order, error)
	CreateOrder(ctx context.Context, order *entity.Order) error
	SaveOrder(ctx context.Context, order *entity.Order) error

	// GetItem loads the item with its category.
	GetItem(ctx context.Context, id string) (*entity.Item, error)

	GetWarehouseRequest(ctx context.Context, id string) (*entity.WarehouseRequest, error)
	CreateWarehouseRequest(ctx context.Context, req *entity.WarehouseRequest) error
	SaveWarehouseRequest(ctx context.Context, req *entity.WarehouseRequest) error
	GetWarehouseRequestItem(ctx context.Context, id string) (*entity.WarehouseRequestItem, error)
	SaveWarehouseRequestItem(ctx context.Context, item *entity.WarehouseRequestItem) error

	GetApproval(ctx context.Context, id string) (*entity.ChangeRequestApproval, error)
	CreateApproval(ctx context.Context, approval *entity.ChangeRequestApproval) error
	SaveApproval(ctx context.Context, approval *entity.ChangeRequestApproval) error
}

// Store hands out repositories. Transaction commits everything fn wrote atomically,
// or nothing when fn returns an error; rows read inside it stay locked until commit.
// Query runs fn without a transaction, for reads.
type Store interface {
	Transaction(ctx context.Context, fn func(repo Repository) error) error
	Query(ctx context.Context, fn func(repo Repository) error) error
}

// Locker serializes work on one key across callers.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Recipient a notification target, a single user or every holder of a role
type Recipient struct {
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
}

func ToUser(id string) Recipient   { return Recipient{UserID: id} }
func ToRole(role string) Recipient { return Recipient{Role: role} }

func (r Recipient) String() string {
	if r.UserID != "" {
		return "user:" + r.UserID
	}
	return "role:" + r.Role
}

// NotificationSink delivers notifications. Failures never undo a transition.
type NotificationSink interface {
	Notify(ctx context.Context, to Recipient, message, notificationType, link string) error
}

// AuditSink records who did what. Same failure policy as NotificationSink.
type AuditSink interface {
	Record(ctx context.Context, actorID, action, entityType, entityID string, details map[string]interface{}) error
}

// Notification types
const (
	NotifyTaskAssigned     = "task_assigned"
	NotifyProductionDelay  = "production_delay"
	NotifyRouteCardUpdate  = "route_card_update"
	NotifyApprovalRequired = "approval_required"
	NotifyApprovalResult   = "approval_result"
	NotifyOrderCreated     = "order_created"
	NotifyOrderUpdate      = "order_update"
)

// Notice a notification queued during a transition and sent after commit
type Notice struct {
	To      Recipient
	Message string
	Type    string
	Link    string
}

type auditEntry struct {
	action     string
	entityType string
	entityID   string
	details    map[string]interface{}
}
