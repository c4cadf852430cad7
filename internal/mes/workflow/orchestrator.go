package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Orchestrator is the entry point for every human action on the production workflow.
// Each operation takes the lock of the aggregate it changes, runs in one store
// transaction and, after commit, sends notifications and audit records. Side effect
// failures are logged and never undo the transition.
type Orchestrator struct {
	store      Store
	locker     Locker
	notifier   NotificationSink
	audit      AuditSink
	logger     *zap.Logger
	now        func() time.Time
	leadTime   time.Duration
	chain      *TaskChain
	approvals  *ApprovalMachine
	derivation *OrderDerivation
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithShortageLeadTime sets how far out derived orders are required.
func WithShortageLeadTime(d time.Duration) Option {
	return func(o *Orchestrator) { o.leadTime = d }
}

func NewOrchestrator(store Store, locker Locker, notifier NotificationSink, audit AuditSink, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		locker:   locker,
		notifier: notifier,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	o.chain = NewTaskChain(o.now)
	o.approvals = NewApprovalMachine(o.now)
	o.derivation = NewOrderDerivation(o.now, o.leadTime)
	return o
}

// effects collected inside a transaction, delivered after commit
type effects struct {
	notices []Notice
	audits  []auditEntry
}

func (fx *effects) record(action, entityType, entityID string, details map[string]interface{}) {
	fx.audits = append(fx.audits, auditEntry{action: action, entityType: entityType, entityID: entityID, details: details})
}

// execute runs fn under the lock for key inside one transaction.
func (o *Orchestrator) execute(ctx context.Context, key, actorID string, fn func(repo Repository, fx *effects) error) error {
	release, err := o.locker.Acquire(ctx, key)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s is busy: %v", ErrConcurrentModification, key, err)
	}
	var fx effects
	err = o.store.Transaction(ctx, func(repo Repository) error {
		return fn(repo, &fx)
	})
	release()
	if err != nil {
		return err
	}
	o.dispatch(context.WithoutCancel(ctx), actorID, &fx)
	return nil
}

func (o *Orchestrator) dispatch(ctx context.Context, actorID string, fx *effects) {
	if o.notifier != nil {
		for _, n := range fx.notices {
			if n.To.UserID == "" && n.To.Role == "" {
				continue
			}
			if err := o.notifier.Notify(ctx, n.To, n.Message, n.Type, n.Link); err != nil {
				o.logger.Warn("Failed to send notification",
					zap.String("recipient", n.To.String()),
					zap.String("type", n.Type),
					zap.Error(err),
				)
			}
		}
	}
	if o.audit != nil {
		for _, a := range fx.audits {
			if err := o.audit.Record(ctx, actorID, a.action, a.entityType, a.entityID, a.details); err != nil {
				o.logger.Warn("Failed to record audit log",
					zap.String("action", a.action),
					zap.String("entity_type", a.entityType),
					zap.String("entity_id", a.entityID),
					zap.Error(err),
				)
			}
		}
	}
}

func routeCardKey(id string) string { return "route_card:" + id }

// taskLockKey resolves the aggregate a task belongs to, so that completing it
// serializes with every other change to that aggregate.
func (o *Orchestrator) taskLockKey(ctx context.Context, taskID string) (string, error) {
	var key string
	err := o.store.Query(ctx, func(repo Repository) error {
		task, err := repo.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		switch {
		case task.RouteCardID != nil:
			key = routeCardKey(*task.RouteCardID)
		case task.ApprovalID != nil:
			key = "approval:" + *task.ApprovalID
		case task.OrderID != nil:
			key = "order:" + *task.OrderID
		default:
			key = "task:" + task.ID
		}
		return nil
	})
	return key, err
}

// advance completes a route card task and applies its transition.
func (o *Orchestrator) advance(ctx context.Context, action, taskID, actorID, notes string,
	expected entity.TaskType, apply Transition) (*ChainResult, error) {
	key, err := o.taskLockKey(ctx, taskID)
	if err != nil {
		return nil, err
	}
	var res *ChainResult
	err = o.execute(ctx, key, actorID, func(repo Repository, fx *effects) error {
		var from entity.RouteStatus
		r, err := o.chain.Advance(ctx, repo, taskID, actorID, notes, expected, func(rc *entity.RouteCard, task *entity.Task) (Step, error) {
			from = rc.Status
			return apply(rc, task)
		})
		if err != nil {
			return err
		}
		res = r
		fx.notices = r.Notices
		fx.record(action, "route_card", r.RouteCard.ID, chainDetails(r, from))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func chainDetails(r *ChainResult, from entity.RouteStatus) map[string]interface{} {
	details := map[string]interface{}{
		"from_status": from,
		"to_status":   r.RouteCard.Status,
		"location":    r.RouteCard.CurrentLocation,
	}
	if r.Completed != nil {
		details["task_id"] = r.Completed.ID
		details["task_type"] = r.Completed.Type
	}
	var created []string
	for _, t := range r.Created {
		created = append(created, t.ID)
	}
	if len(created) > 0 {
		details["created_tasks"] = created
	}
	if r.Order != nil {
		details["order_status"] = r.Order.Status
	}
	return details
}

// CreateRouteCard opens a DRAFT route card for a production order.
func (o *Orchestrator) CreateRouteCard(ctx context.Context, req CreateRouteCardRequest, actorID string) (*entity.RouteCard, error) {
	if len(req.Workstations) == 0 {
		return nil, missingField("workstations")
	}
	estimated := req.EstimatedTime
	for i, ws := range req.Workstations {
		if strings.TrimSpace(ws.Name) == "" {
			return nil, missingField(fmt.Sprintf("workstations[%d].name", i))
		}
		if req.EstimatedTime == 0 {
			estimated += ws.EstimatedHours
		}
	}
	for i, m := range req.Materials {
		if m.ItemID == "" {
			return nil, missingField(fmt.Sprintf("materials[%d].item_id", i))
		}
		if !m.Quantity.IsPositive() {
			return nil, missingField(fmt.Sprintf("materials[%d].quantity", i))
		}
	}

	var rc *entity.RouteCard
	err := o.execute(ctx, "order:"+req.OrderID, actorID, func(repo Repository, fx *effects) error {
		order, err := repo.GetOrder(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if order.OrderType != entity.OrderTypeProduction {
			return invalidTransition("order %s is a %s order, route cards need a production order", order.ID, order.OrderType)
		}
		if order.Status.IsTerminal() {
			return invalidTransition("order %s is %s", order.ID, order.Status)
		}
		if existing, err := repo.GetRouteCardByOrder(ctx, order.ID); err == nil {
			return invalidTransition("order %s already has route card %s", order.ID, existing.ID)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		now := o.now()
		rc = &entity.RouteCard{
			ID:              uuid.New().String(),
			OrderID:         order.ID,
			Status:          entity.RouteStatusDraft,
			CurrentLocation: entity.LocationWarehouse,
			Materials:       entity.JSONList[entity.Material](req.Materials),
			Workstations:    entity.JSONList[entity.Workstation](req.Workstations),
			EstimatedTime:   estimated,
			PickupDetails:   entity.NewEventLog[entity.PickupEvent](),
			FollowupLogs:    entity.NewEventLog[entity.FollowupEvent](),
			QCLogs:          entity.NewEventLog[entity.QCEvent](),
			CreatedByID:     actorID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := rc.CheckInvariants(); err != nil {
			return err
		}
		if err := repo.CreateRouteCard(ctx, rc); err != nil {
			return fmt.Errorf("create route card: %w", err)
		}
		if _, err := moveOrder(ctx, repo, order, entity.OrderStatusSubmitted, "", now); err != nil {
			return err
		}
		fx.record("create_route_card", "route_card", rc.ID, map[string]interface{}{
			"order_id":     order.ID,
			"workstations": len(rc.Workstations),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// ConfirmRouteCard DRAFT -> CONFIRMED plus the material preparation task.
func (o *Orchestrator) ConfirmRouteCard(ctx context.Context, req ConfirmRouteCardRequest, actorID string) (*ChainResult, error) {
	return o.transitionCard(ctx, "confirm_route_card", req.RouteCardID, actorID, func(rc *entity.RouteCard) (Step, error) {
		return ConfirmRouteCard(rc)
	})
}

// CancelRouteCard cancels the card, its open tasks and its order.
func (o *Orchestrator) CancelRouteCard(ctx context.Context, req CancelRouteCardRequest, actorID string) (*ChainResult, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, missingField("reason")
	}
	return o.transitionCard(ctx, "cancel_route_card", req.RouteCardID, actorID, func(rc *entity.RouteCard) (Step, error) {
		return CancelRouteCard(rc, req.Reason)
	})
}

// transitionCard applies a transition that is triggered on the card itself rather
// than by completing one of its tasks.
func (o *Orchestrator) transitionCard(ctx context.Context, action, routeCardID, actorID string,
	apply func(rc *entity.RouteCard) (Step, error)) (*ChainResult, error) {
	var res *ChainResult
	err := o.execute(ctx, routeCardKey(routeCardID), actorID, func(repo Repository, fx *effects) error {
		rc, err := repo.GetRouteCard(ctx, routeCardID)
		if err != nil {
			return err
		}
		from := rc.Status
		step, err := apply(rc)
		if err != nil {
			return err
		}
		rc.UpdatedAt = o.now()
		r, err := o.chain.Commit(ctx, repo, rc, step, actorID, "")
		if err != nil {
			return err
		}
		res = r
		fx.notices = r.Notices
		fx.record(action, "route_card", rc.ID, chainDetails(r, from))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (o *Orchestrator) MarkMaterialsPrepared(ctx context.Context, req TaskActionRequest, actorID string) (*ChainResult, error) {
	return o.advance(ctx, "materials_prepared", req.TaskID, actorID, req.Notes, entity.TaskTypeMaterialPreparation,
		func(rc *entity.RouteCard, _ *entity.Task) (Step, error) {
			return MarkMaterialsPrepared(rc)
		})
}

func (o *Orchestrator) ConfirmMaterialPickup(ctx context.Context, req MaterialPickupRequest, actorID string) (*ChainResult, error) {
	return o.advance(ctx, "material_pickup", req.TaskID, actorID, req.Notes, entity.TaskTypeMaterialPickup,
		func(rc *entity.RouteCard, _ *entity.Task) (Step, error) {
			date := o.now()
			if req.PickupDate != nil {
				date = *req.PickupDate
			}
			return PickUpMaterials(rc, entity.PickupEvent{Date: date, Notes: req.Notes, UserID: actorID})
		})
}

func (o *Orchestrator) ConfirmMaterialDelivery(ctx context.Context, req MaterialDeliveryRequest, actorID string) (*ChainResult, error) {
	if req.EstimatedCompletionDate == nil {
		return nil, missingField("estimated_completion_date")
	}
	return o.advance(ctx, "material_delivery", req.TaskID, actorID, req.Notes, entity.TaskTypeMaterialDelivery,
		func(rc *entity.RouteCard, task *entity.Task) (Step, error) {
			target, err := targetWorkstation(task, rc.CurrentWorkstationIndex)
			if err != nil {
				return Step{}, err
			}
			return DeliverMaterials(rc, target, req.EstimatedCompletionDate, o.now())
		})
}

func (o *Orchestrator) LogProductionFollowup(ctx context.Context, req FollowupRequest, actorID string) (*ChainResult, error) {
	if req.Status == entity.FollowUpDelayed && req.RevisedCompletionDate == nil {
		return nil, missingField("revised_completion_date")
	}
	return o.advance(ctx, "production_followup", req.TaskID, actorID, req.Notes, entity.TaskTypeProductionFollowup,
		func(rc *entity.RouteCard, _ *entity.Task) (Step, error) {
			now := o.now()
			return LogFollowup(rc, entity.FollowupEvent{
				Date:                  now,
				Status:                req.Status,
				Notes:                 req.Notes,
				RevisedCompletionDate: req.RevisedCompletionDate,
				UserID:                actorID,
			}, now)
		})
}

func (o *Orchestrator) ConfirmPartPickup(ctx context.Context, req PartPickupRequest, actorID string) (*ChainResult, error) {
	return o.advance(ctx, "part_pickup", req.TaskID, actorID, req.Notes, entity.TaskTypePartPickup,
		func(rc *entity.RouteCard, _ *entity.Task) (Step, error) {
			return PickUpPart(rc, entity.PickupEvent{
				Date:             o.now(),
				QuantityReceived: req.QuantityReceived,
				InvoiceURL:       req.InvoiceURL,
				Notes:            req.Notes,
				UserID:           actorID,
			})
		})
}

func (o *Orchestrator) MakeQCDecision(ctx context.Context, req QCDecisionRequest, actorID string) (*ChainResult, error) {
	return o.advance(ctx, "qc_decision", req.TaskID, actorID, req.Notes, entity.TaskTypeQCInspection,
		func(rc *entity.RouteCard, _ *entity.Task) (Step, error) {
			return DecideQC(rc, entity.QCEvent{Date: o.now(), Decision: req.Decision, Notes: req.Notes, UserID: actorID})
		})
}

func (o *Orchestrator) ConfirmReworkDelivery(ctx context.Context, req ReworkDeliveryRequest, actorID string) (*ChainResult, error) {
	if req.EstimatedCompletionDate == nil {
		return nil, missingField("estimated_completion_date")
	}
	return o.advance(ctx, "rework_delivery", req.TaskID, actorID, req.Notes, entity.TaskTypeDeliverForRework,
		func(rc *entity.RouteCard, _ *entity.Task) (Step, error) {
			return DeliverForRework(rc, req.EstimatedCompletionDate, o.now())
		})
}

func (o *Orchestrator) ReviewScrapRequest(ctx context.Context, req ScrapReviewRequest, actorID string) (*ChainResult, error) {
	return o.advance(ctx, "scrap_review", req.TaskID, actorID, req.Notes, entity.TaskTypeReviewScrapRequest,
		func(rc *entity.RouteCard, _ *entity.Task) (Step, error) {
			return ReviewScrap(rc, entity.QCEvent{Date: o.now(), ScrapDecision: req.Decision, Notes: req.Notes, UserID: actorID})
		})
}

func (o *Orchestrator) StockFinishedPart(ctx context.Context, req TaskActionRequest, actorID string) (*ChainResult, error) {
	return o.advance(ctx, "stock_finished_part", req.TaskID, actorID, req.Notes, entity.TaskTypeStockFinishedPart,
		func(rc *entity.RouteCard, _ *entity.Task) (Step, error) {
			return StockFinishedPart(rc)
		})
}

// StartTask NEW/PENDING -> IN_PROGRESS. Starting a task twice is a duplicate.
func (o *Orchestrator) StartTask(ctx context.Context, taskID, actorID string) (*entity.Task, error) {
	key, err := o.taskLockKey(ctx, taskID)
	if err != nil {
		return nil, err
	}
	var task *entity.Task
	err = o.execute(ctx, key, actorID, func(repo Repository, fx *effects) error {
		t, err := repo.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		switch t.Status {
		case entity.TaskStatusInProgress:
			return fmt.Errorf("%w: task %s is already in progress", ErrDuplicateSubmission, t.ID)
		case entity.TaskStatusCompleted, entity.TaskStatusCancelled:
			return invalidTransition("task %s is %s", t.ID, t.Status)
		}
		t.Status = entity.TaskStatusInProgress
		t.UpdatedAt = o.now()
		if err := repo.SaveTask(ctx, t); err != nil {
			return fmt.Errorf("save task %s: %w", t.ID, err)
		}
		task = t
		fx.record("start_task", "task", t.ID, map[string]interface{}{"task_type": t.Type})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// CreateChangeAddendum opens a three-level approval for a change to a warehouse request.
func (o *Orchestrator) CreateChangeAddendum(ctx context.Context, req CreateChangeAddendumRequest, actorID string) (*ApprovalResult, error) {
	if strings.TrimSpace(req.Description) == "" {
		return nil, missingField("description")
	}
	var res *ApprovalResult
	err := o.execute(ctx, "warehouse_request:"+req.OriginalRequestID, actorID, func(repo Repository, fx *effects) error {
		r, err := o.approvals.Create(ctx, repo, req, actorID)
		if err != nil {
			return err
		}
		res = r
		fx.notices = r.Notices
		fx.record("create_change_addendum", "change_request_approval", r.Approval.ID, map[string]interface{}{
			"warehouse_request_id": r.Request.ID,
			"original_request_id":  req.OriginalRequestID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// UpdateApprovalLevel records one level's decision. The three levels share the
// approval lock so the derived flags are computed from a consistent read.
func (o *Orchestrator) UpdateApprovalLevel(ctx context.Context, req UpdateApprovalLevelRequest, actorID string) (*ApprovalResult, error) {
	var res *ApprovalResult
	err := o.execute(ctx, "approval:"+req.ApprovalID, actorID, func(repo Repository, fx *effects) error {
		r, err := o.approvals.UpdateLevel(ctx, repo, req, actorID)
		if err != nil {
			return err
		}
		res = r
		fx.notices = r.Notices
		fx.record("update_approval_level", "change_request_approval", r.Approval.ID, map[string]interface{}{
			"level":        req.Level,
			"status":       req.Status,
			"is_completed": r.Approval.IsCompleted,
			"is_approved":  r.Approval.IsApproved,
			"request":      r.Request.Status,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// DeriveShortageOrder creates the production or procurement order for a shortage.
func (o *Orchestrator) DeriveShortageOrder(ctx context.Context, req DeriveShortageRequest, actorID string) (*entity.Order, error) {
	if req.Quantity <= 0 {
		return nil, missingField("quantity")
	}
	var order *entity.Order
	err := o.execute(ctx, "warehouse_request_item:"+req.WarehouseRequestItemID, actorID, func(repo Repository, fx *effects) error {
		wrItem, err := repo.GetWarehouseRequestItem(ctx, req.WarehouseRequestItemID)
		if err != nil {
			return err
		}
		if wrItem.Status == entity.WRItemBackordered {
			return fmt.Errorf("%w: warehouse request item %s is already backordered", ErrDuplicateSubmission, wrItem.ID)
		}
		ord, notices, err := o.derivation.DeriveFromShortage(ctx, repo, req, actorID)
		if err != nil {
			return err
		}
		order = ord
		fx.notices = notices
		fx.record("derive_shortage_order", "order", ord.ID, map[string]interface{}{
			"order_type":                ord.OrderType,
			"quantity":                  ord.Quantity,
			"warehouse_request_item_id": req.WarehouseRequestItemID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateOrderStatus moves an order forward by hand.
func (o *Orchestrator) UpdateOrderStatus(ctx context.Context, req UpdateOrderStatusRequest, actorID string) (*entity.Order, error) {
	var order *entity.Order
	err := o.execute(ctx, "order:"+req.OrderID, actorID, func(repo Repository, fx *effects) error {
		ord, err := repo.GetOrder(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if ord.Status.IsTerminal() || req.Status.Rank() <= ord.Status.Rank() {
			return invalidTransition("order %s cannot move from %s to %s", ord.ID, ord.Status, req.Status)
		}
		if ord.OrderType == entity.OrderTypeProduction && req.Status == entity.OrderStatusCancelled {
			if rc, err := repo.GetRouteCardByOrder(ctx, ord.ID); err == nil && !rc.Status.IsTerminal() {
				return invalidTransition("order %s has active route card %s, cancel the route card instead", ord.ID, rc.ID)
			} else if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
		}
		from := ord.Status
		if _, err := moveOrder(ctx, repo, ord, req.Status, req.Remarks, o.now()); err != nil {
			return err
		}
		order = ord
		fx.notices = []Notice{{
			To:      ToUser(ord.CreatedByID),
			Message: fmt.Sprintf("Order #%s is now %s", ord.ID, ord.Status),
			Type:    NotifyOrderUpdate,
			Link:    "/orders/" + ord.ID,
		}}
		fx.record("update_order_status", "order", ord.ID, map[string]interface{}{"from_status": from, "to_status": ord.Status})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// MarkOrderPurchased records the vendor of a procurement order and asks the
// warehouse to receive the goods.
func (o *Orchestrator) MarkOrderPurchased(ctx context.Context, req MarkOrderPurchasedRequest, actorID string) (*entity.Order, *entity.Task, error) {
	if strings.TrimSpace(req.VendorName) == "" {
		return nil, nil, missingField("vendor_name")
	}
	if req.Price.IsNegative() {
		return nil, nil, invalidTransition("price cannot be negative")
	}
	var (
		order *entity.Order
		task  *entity.Task
	)
	err := o.execute(ctx, "order:"+req.OrderID, actorID, func(repo Repository, fx *effects) error {
		ord, err := repo.GetOrder(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if ord.OrderType != entity.OrderTypeProcurement {
			return invalidTransition("order %s is a %s order", ord.ID, ord.OrderType)
		}
		switch ord.Status {
		case entity.OrderStatusInProgress:
			return fmt.Errorf("%w: order %s was already purchased", ErrDuplicateSubmission, ord.ID)
		case entity.OrderStatusCompleted, entity.OrderStatusCancelled:
			return invalidTransition("order %s is %s", ord.ID, ord.Status)
		}
		now := o.now()
		ord.VendorName = req.VendorName
		ord.Price = req.Price
		if _, err := moveOrder(ctx, repo, ord, entity.OrderStatusInProgress, "", now); err != nil {
			return err
		}

		t, err := newTask(TaskSpec{
			Type:         entity.TaskTypeReceiveProcurement,
			Title:        fmt.Sprintf("Receive procurement order #%s from %s", ord.ID, ord.VendorName),
			Description:  req.Notes,
			AssigneeRole: entity.RoleWarehouseManager,
			Priority:     entity.PriorityMedium,
			DueDate:      ord.RequiredDate,
		}, actorID, now)
		if err != nil {
			return err
		}
		t.OrderID = &ord.ID
		if err := repo.CreateTask(ctx, t); err != nil {
			return fmt.Errorf("create receiving task: %w", err)
		}
		order, task = ord, t
		fx.notices = []Notice{taskNotice(t)}
		fx.record("mark_order_purchased", "order", ord.ID, map[string]interface{}{
			"vendor_name": ord.VendorName,
			"price":       ord.Price.String(),
			"task_id":     t.ID,
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return order, task, nil
}

// ConfirmReceipt completes the receiving task and its procurement order.
func (o *Orchestrator) ConfirmReceipt(ctx context.Context, req TaskActionRequest, actorID string) (*entity.Order, error) {
	key, err := o.taskLockKey(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	var order *entity.Order
	err = o.execute(ctx, key, actorID, func(repo Repository, fx *effects) error {
		task, err := repo.GetTask(ctx, req.TaskID)
		if err != nil {
			return err
		}
		if err := checkCompletable(task, entity.TaskTypeReceiveProcurement); err != nil {
			return err
		}
		if task.OrderID == nil {
			return invalidTransition("task %s is not attached to an order", task.ID)
		}
		ord, err := repo.GetOrder(ctx, *task.OrderID)
		if err != nil {
			return err
		}
		if ord.Status != entity.OrderStatusInProgress {
			return invalidTransition("order %s is %s, expected %s", ord.ID, ord.Status, entity.OrderStatusInProgress)
		}
		now := o.now()
		completeTask(task, actorID, req.Notes, now)
		if err := repo.SaveTask(ctx, task); err != nil {
			return fmt.Errorf("save task %s: %w", task.ID, err)
		}
		if _, err := moveOrder(ctx, repo, ord, entity.OrderStatusCompleted, "", now); err != nil {
			return err
		}
		order = ord
		fx.notices = []Notice{{
			To:      ToUser(ord.CreatedByID),
			Message: fmt.Sprintf("Procurement order #%s was received", ord.ID),
			Type:    NotifyOrderUpdate,
			Link:    "/orders/" + ord.ID,
		}}
		fx.record("confirm_receipt", "order", ord.ID, map[string]interface{}{"task_id": task.ID})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (o *Orchestrator) GetRouteCard(ctx context.Context, id string) (*entity.RouteCard, error) {
	var rc *entity.RouteCard
	err := o.store.Query(ctx, func(repo Repository) error {
		var err error
		rc, err = repo.GetRouteCard(ctx, id)
		return err
	})
	return rc, err
}

func (o *Orchestrator) GetApproval(ctx context.Context, id string) (*entity.ChangeRequestApproval, error) {
	var a *entity.ChangeRequestApproval
	err := o.store.Query(ctx, func(repo Repository) error {
		var err error
		a, err = repo.GetApproval(ctx, id)
		return err
	})
	return a, err
}

func (o *Orchestrator) GetOrder(ctx context.Context, id string) (*entity.Order, error) {
	var order *entity.Order
	err := o.store.Query(ctx, func(repo Repository) error {
		var err error
		order, err = repo.GetOrder(ctx, id)
		return err
	})
	return order, err
}

func (o *Orchestrator) ListTasks(ctx context.Context, filter entity.TaskFilter) ([]entity.Task, int64, error) {
	var (
		tasks []entity.Task
		total int64
	)
	err := o.store.Query(ctx, func(repo Repository) error {
		var err error
		tasks, total, err = repo.ListTasks(ctx, filter)
		return err
	})
	return tasks, total, err
}
