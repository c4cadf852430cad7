package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/workflow"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store workflow.Store backed by gorm
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Transaction runs fn in a database transaction; rows read through the repository
// are locked FOR UPDATE until commit.
func (s *Store) Transaction(ctx context.Context, fn func(repo workflow.Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&WorkflowRepository{db: tx, locking: true})
	})
}

func (s *Store) Query(ctx context.Context, fn func(repo workflow.Repository) error) error {
	return fn(&WorkflowRepository{db: s.db.WithContext(ctx)})
}

// WorkflowRepository workflow.Repository over one gorm session
type WorkflowRepository struct {
	db      *gorm.DB
	locking bool
}

func (r *WorkflowRepository) read(ctx context.Context) *gorm.DB {
	q := r.db.WithContext(ctx)
	if r.locking {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return workflow.NotFoundError(what, id)
	}
	return err
}

func first[T any](r *WorkflowRepository, ctx context.Context, what, query string, args ...interface{}) (*T, error) {
	var v T
	if err := r.read(ctx).Where(query, args...).First(&v).Error; err != nil {
		return nil, notFound(err, what, fmt.Sprint(args...))
	}
	return &v, nil
}

// saveVersioned writes every column of model if its row still carries version.
// The version is bumped on success.
func (r *WorkflowRepository) saveVersioned(ctx context.Context, model interface{}, what, id string, version *int) error {
	current := *version
	*version = current + 1
	res := r.db.WithContext(ctx).Model(model).
		Where("version = ?", current).
		Select("*").Omit("created_at").
		Updates(model)
	if res.Error != nil {
		*version = current
		return res.Error
	}
	if res.RowsAffected == 0 {
		*version = current
		return fmt.Errorf("%w: %s %s changed since it was read", workflow.ErrConcurrentModification, what, id)
	}
	return nil
}

func newID(id *string) {
	if *id == "" {
		*id = uuid.New().String()
	}
}

func (r *WorkflowRepository) GetRouteCard(ctx context.Context, id string) (*entity.RouteCard, error) {
	return first[entity.RouteCard](r, ctx, "route card", "id = ?", id)
}

func (r *WorkflowRepository) GetRouteCardByOrder(ctx context.Context, orderID string) (*entity.RouteCard, error) {
	return first[entity.RouteCard](r, ctx, "route card for order", "order_id = ?", orderID)
}

func (r *WorkflowRepository) CreateRouteCard(ctx context.Context, rc *entity.RouteCard) error {
	newID(&rc.ID)
	rc.Version = 1
	return r.db.WithContext(ctx).Create(rc).Error
}

func (r *WorkflowRepository) SaveRouteCard(ctx context.Context, rc *entity.RouteCard) error {
	return r.saveVersioned(ctx, rc, "route card", rc.ID, &rc.Version)
}

func (r *WorkflowRepository) GetTask(ctx context.Context, id string) (*entity.Task, error) {
	return first[entity.Task](r, ctx, "task", "id = ?", id)
}

func (r *WorkflowRepository) CreateTask(ctx context.Context, task *entity.Task) error {
	newID(&task.ID)
	task.Version = 1
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *WorkflowRepository) SaveTask(ctx context.Context, task *entity.Task) error {
	return r.saveVersioned(ctx, task, "task", task.ID, &task.Version)
}

func (r *WorkflowRepository) ListTasks(ctx context.Context, filter entity.TaskFilter) ([]entity.Task, int64, error) {
	var tasks []entity.Task
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Task{})
	if filter.RouteCardID != "" {
		query = query.Where("route_card_id = ?", filter.RouteCardID)
	}
	if filter.ApprovalID != "" {
		query = query.Where("approval_id = ?", filter.ApprovalID)
	}
	if filter.OrderID != "" {
		query = query.Where("order_id = ?", filter.OrderID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.AssigneeRole != "" {
		query = query.Where("assignee_role = ?", filter.AssigneeRole)
	}
	if filter.OpenOnly {
		query = query.Where("status IN ?", entity.OpenTaskStatuses())
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = query.Order("created_at ASC, id ASC")
	if filter.Size > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.Size).Limit(filter.Size)
	}
	if r.locking {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := query.Find(&tasks).Error
	return tasks, total, err
}

func (r *WorkflowRepository) GetOrder(ctx context.Context, id string) (*entity.Order, error) {
	return first[entity.Order](r, ctx, "order", "id = ?", id)
}

func (r *WorkflowRepository) CreateOrder(ctx context.Context, order *entity.Order) error {
	newID(&order.ID)
	order.Version = 1
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *WorkflowRepository) SaveOrder(ctx context.Context, order *entity.Order) error {
	return r.saveVersioned(ctx, order, "order", order.ID, &order.Version)
}

func (r *WorkflowRepository) GetItem(ctx context.Context, id string) (*entity.Item, error) {
	var item entity.Item
	if err := r.db.WithContext(ctx).Preload("Category").Where("id = ?", id).First(&item).Error; err != nil {
		return nil, notFound(err, "item", id)
	}
	return &item, nil
}

func (r *WorkflowRepository) GetWarehouseRequest(ctx context.Context, id string) (*entity.WarehouseRequest, error) {
	return first[entity.WarehouseRequest](r, ctx, "warehouse request", "id = ?", id)
}

func (r *WorkflowRepository) CreateWarehouseRequest(ctx context.Context, req *entity.WarehouseRequest) error {
	newID(&req.ID)
	req.Version = 1
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *WorkflowRepository) SaveWarehouseRequest(ctx context.Context, req *entity.WarehouseRequest) error {
	return r.saveVersioned(ctx, req, "warehouse request", req.ID, &req.Version)
}

func (r *WorkflowRepository) GetWarehouseRequestItem(ctx context.Context, id string) (*entity.WarehouseRequestItem, error) {
	return first[entity.WarehouseRequestItem](r, ctx, "warehouse request item", "id = ?", id)
}

func (r *WorkflowRepository) SaveWarehouseRequestItem(ctx context.Context, item *entity.WarehouseRequestItem) error {
	return r.saveVersioned(ctx, item, "warehouse request item", item.ID, &item.Version)
}

func (r *WorkflowRepository) GetApproval(ctx context.Context, id string) (*entity.ChangeRequestApproval, error) {
	return first[entity.ChangeRequestApproval](r, ctx, "approval", "id = ?", id)
}

func (r *WorkflowRepository) CreateApproval(ctx context.Context, a *entity.ChangeRequestApproval) error {
	newID(&a.ID)
	a.Version = 1
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *WorkflowRepository) SaveApproval(ctx context.Context, a *entity.ChangeRequestApproval) error {
	return r.saveVersioned(ctx, a, "approval", a.ID, &a.Version)
}
