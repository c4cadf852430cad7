package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/google/uuid"
)

// TaskChain completes the current task of a route card and creates the next one.
// It runs inside the caller's transaction and never commits on its own.
type TaskChain struct {
	now func() time.Time
}

func NewTaskChain(now func() time.Time) *TaskChain {
	if now == nil {
		now = time.Now
	}
	return &TaskChain{now: now}
}

// ChainResult everything a transition touched
type ChainResult struct {
	Completed *entity.Task
	Created   []*entity.Task
	Cancelled []*entity.Task
	RouteCard *entity.RouteCard
	Order     *entity.Order
	Notices   []Notice
}

// Transition applies the machine step for a task being completed.
type Transition func(rc *entity.RouteCard, task *entity.Task) (Step, error)

// Advance completes taskID and applies apply to its route card. A completed task
// yields ErrDuplicateSubmission, a cancelled one or one of another type
// ErrInvalidTransition.
func (c *TaskChain) Advance(ctx context.Context, repo Repository, taskID, actorID, notes string,
	expected entity.TaskType, apply Transition) (*ChainResult, error) {
	task, err := repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := checkCompletable(task, expected); err != nil {
		return nil, err
	}
	if task.RouteCardID == nil {
		return nil, invalidTransition("task %s is not attached to a route card", task.ID)
	}
	rc, err := repo.GetRouteCard(ctx, *task.RouteCardID)
	if err != nil {
		return nil, err
	}

	step, err := apply(rc, task)
	if err != nil {
		return nil, err
	}

	now := c.now()
	completeTask(task, actorID, notes, now)
	if err := repo.SaveTask(ctx, task); err != nil {
		return nil, fmt.Errorf("save task %s: %w", task.ID, err)
	}

	res, err := c.Commit(ctx, repo, rc, step, actorID, task.ID)
	if err != nil {
		return nil, err
	}
	res.Completed = task
	return res, nil
}

func checkCompletable(task *entity.Task, expected entity.TaskType) error {
	switch task.Status {
	case entity.TaskStatusCompleted:
		return fmt.Errorf("%w: task %s was already completed", ErrDuplicateSubmission, task.ID)
	case entity.TaskStatusCancelled:
		return invalidTransition("task %s was cancelled", task.ID)
	}
	if task.Type != expected {
		return invalidTransition("task %s is a %s task, expected %s", task.ID, task.Type, expected)
	}
	return nil
}

func completeTask(task *entity.Task, actorID, notes string, now time.Time) {
	task.Status = entity.TaskStatusCompleted
	task.CompletedByID = &actorID
	task.CompletedAt = &now
	if notes != "" {
		task.Notes = notes
	}
}

// Commit persists a transitioned route card together with the step's effects:
// open tasks of the listed types are cancelled, the spawned tasks created and the
// order moved. skipTaskID is the task being completed, if any.
func (c *TaskChain) Commit(ctx context.Context, repo Repository, rc *entity.RouteCard, step Step,
	actorID, skipTaskID string) (*ChainResult, error) {
	if err := rc.CheckInvariants(); err != nil {
		return nil, err
	}
	if err := repo.SaveRouteCard(ctx, rc); err != nil {
		return nil, fmt.Errorf("save route card %s: %w", rc.ID, err)
	}
	now := c.now()
	res := &ChainResult{RouteCard: rc, Notices: step.Notices}

	for _, typ := range step.CancelOpen {
		open, _, err := repo.ListTasks(ctx, entity.TaskFilter{RouteCardID: rc.ID, Type: typ, OpenOnly: true})
		if err != nil {
			return nil, fmt.Errorf("list open %s tasks: %w", typ, err)
		}
		for i := range open {
			t := &open[i]
			if t.ID == skipTaskID {
				continue
			}
			t.Status = entity.TaskStatusCancelled
			if err := repo.SaveTask(ctx, t); err != nil {
				return nil, fmt.Errorf("cancel task %s: %w", t.ID, err)
			}
			res.Cancelled = append(res.Cancelled, t)
		}
	}

	for _, spec := range step.Spawn {
		if spec.Type != entity.TaskTypeProductionFollowup {
			if err := ensureNoOpenTask(ctx, repo, rc.ID, spec.Type, skipTaskID); err != nil {
				return nil, err
			}
		}
		task, err := newTask(spec, actorID, now)
		if err != nil {
			return nil, err
		}
		task.RouteCardID = &rc.ID
		task.OrderID = &rc.OrderID
		if err := repo.CreateTask(ctx, task); err != nil {
			return nil, fmt.Errorf("create %s task: %w", spec.Type, err)
		}
		res.Created = append(res.Created, task)
		res.Notices = append(res.Notices, taskNotice(task))
	}

	if step.OrderStatus != "" {
		order, err := repo.GetOrder(ctx, rc.OrderID)
		if err != nil {
			return nil, err
		}
		moved, err := moveOrder(ctx, repo, order, step.OrderStatus, "", now)
		if err != nil {
			return nil, err
		}
		if moved {
			res.Order = order
		}
	}
	return res, nil
}

func ensureNoOpenTask(ctx context.Context, repo Repository, routeCardID string, typ entity.TaskType, skipTaskID string) error {
	open, _, err := repo.ListTasks(ctx, entity.TaskFilter{RouteCardID: routeCardID, Type: typ, OpenOnly: true})
	if err != nil {
		return fmt.Errorf("list open %s tasks: %w", typ, err)
	}
	for _, t := range open {
		if t.ID != skipTaskID {
			return invalidTransition("route card %s already has open %s task %s", routeCardID, typ, t.ID)
		}
	}
	return nil
}

func newTask(spec TaskSpec, actorID string, now time.Time) (*entity.Task, error) {
	task := &entity.Task{
		ID:           uuid.New().String(),
		Type:         spec.Type,
		Status:       entity.TaskStatusNew,
		Title:        spec.Title,
		Description:  spec.Description,
		AssigneeRole: spec.AssigneeRole,
		Priority:     spec.Priority,
		DueDate:      spec.DueDate,
		CreatedByID:  actorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if task.Priority == 0 {
		task.Priority = entity.PriorityMedium
	}
	if err := task.SetPayload(spec.Payload); err != nil {
		return nil, fmt.Errorf("encode %s task payload: %w", spec.Type, err)
	}
	return task, nil
}

func taskNotice(task *entity.Task) Notice {
	return Notice{
		To:      ToRole(task.AssigneeRole),
		Message: "New task: " + task.Title,
		Type:    NotifyTaskAssigned,
		Link:    "/tasks/" + task.ID,
	}
}

// targetWorkstation reads the workstation a delivery task was created for.
func targetWorkstation(task *entity.Task, fallback int) (int, error) {
	p, err := task.Payload()
	if err != nil {
		return 0, fmt.Errorf("decode task %s payload: %w", task.ID, err)
	}
	if p.WorkstationIndex == nil {
		return fallback, nil
	}
	return *p.WorkstationIndex, nil
}
