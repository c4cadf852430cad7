package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/google/uuid"
)

// ApprovalMachine runs change addenda through QC, production and technical review.
// Decisions may arrive in any order; review tasks cascade QC -> production ->
// technical as a convenience only.
type ApprovalMachine struct {
	now func() time.Time
}

func NewApprovalMachine(now func() time.Time) *ApprovalMachine {
	if now == nil {
		now = time.Now
	}
	return &ApprovalMachine{now: now}
}

// ApprovalResult what an approval operation touched
type ApprovalResult struct {
	Approval  *entity.ChangeRequestApproval
	Request   *entity.WarehouseRequest
	Created   []*entity.Task
	Completed []*entity.Task
	Cancelled []*entity.Task
	Notices   []Notice
}

// Create opens a change addendum against an existing warehouse request.
func (m *ApprovalMachine) Create(ctx context.Context, repo Repository, req CreateChangeAddendumRequest, submitterID string) (*ApprovalResult, error) {
	original, err := repo.GetWarehouseRequest(ctx, req.OriginalRequestID)
	if err != nil {
		return nil, err
	}
	now := m.now()

	wr := &entity.WarehouseRequest{
		ID:                uuid.New().String(),
		ProjectName:       "Change Addendum - " + original.ProjectName,
		Description:       req.Description,
		Priority:          original.Priority,
		Status:            entity.WRStatusAwaitingApproval,
		RequestType:       entity.WRTypeChangeAddendum,
		OriginalRequestID: &original.ID,
		CreatedByID:       submitterID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := repo.CreateWarehouseRequest(ctx, wr); err != nil {
		return nil, fmt.Errorf("create change addendum request: %w", err)
	}

	approval := &entity.ChangeRequestApproval{
		ID:                     uuid.New().String(),
		WarehouseRequestID:     wr.ID,
		SubmittedByID:          submitterID,
		Description:            req.Description,
		ImpactAnalysis:         req.ImpactAnalysis,
		TechnicalJustification: req.TechnicalJustification,
		Attachments:            entity.JSONList[string](req.Attachments),
		QCApproval:             entity.PendingDecision(),
		ProductionApproval:     entity.PendingDecision(),
		TechnicalApproval:      entity.PendingDecision(),
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	approval.Recompute(now)
	if err := repo.CreateApproval(ctx, approval); err != nil {
		return nil, fmt.Errorf("create approval: %w", err)
	}

	res := &ApprovalResult{Approval: approval, Request: wr}
	if err := m.spawnReview(ctx, repo, res, entity.LevelQCManager, submitterID, now); err != nil {
		return nil, err
	}
	return res, nil
}

// UpdateLevel records one level's decision and recomputes the derived flags.
func (m *ApprovalMachine) UpdateLevel(ctx context.Context, repo Repository, req UpdateApprovalLevelRequest, actorID string) (*ApprovalResult, error) {
	approval, err := repo.GetApproval(ctx, req.ApprovalID)
	if err != nil {
		return nil, err
	}
	current, ok := approval.Decision(req.Level)
	if !ok {
		return nil, invalidTransition("unknown approval level %q", req.Level)
	}
	if req.Status != entity.ApprovalApproved && req.Status != entity.ApprovalRejected {
		return nil, invalidTransition("approval level can only be set to approved or rejected, got %q", req.Status)
	}
	if !current.IsPending() {
		return nil, fmt.Errorf("%w: %s level of approval %s is already %s",
			ErrDuplicateSubmission, req.Level, approval.ID, current.Status)
	}
	wr, err := repo.GetWarehouseRequest(ctx, approval.WarehouseRequestID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	decision := entity.LevelDecision{
		Status:     req.Status,
		ApprovedBy: actorID,
		ApprovedAt: &now,
		Comments:   req.Comments,
	}
	if err := approval.SetDecision(req.Level, decision, now); err != nil {
		return nil, invalidTransition("%v", err)
	}
	approval.UpdatedAt = now
	if err := repo.SaveApproval(ctx, approval); err != nil {
		return nil, fmt.Errorf("save approval %s: %w", approval.ID, err)
	}

	res := &ApprovalResult{Approval: approval, Request: wr}
	open, _, err := repo.ListTasks(ctx, entity.TaskFilter{
		ApprovalID: approval.ID, Type: entity.TaskTypeReviewChangeRequest, OpenOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list review tasks: %w", err)
	}
	rejected := approval.AnyRejected()
	for i := range open {
		t := &open[i]
		p, err := t.Payload()
		if err != nil {
			return nil, fmt.Errorf("decode task %s payload: %w", t.ID, err)
		}
		switch {
		case p.ApprovalLevel == req.Level:
			completeTask(t, actorID, req.Comments, now)
			res.Completed = append(res.Completed, t)
		case rejected:
			t.Status = entity.TaskStatusCancelled
			res.Cancelled = append(res.Cancelled, t)
		default:
			continue
		}
		if err := repo.SaveTask(ctx, t); err != nil {
			return nil, fmt.Errorf("save task %s: %w", t.ID, err)
		}
	}

	switch {
	case rejected:
		if wr.Status != entity.WRStatusChangesRejected {
			wr.Status = entity.WRStatusChangesRejected
			if err := m.saveRequest(ctx, repo, wr, now); err != nil {
				return nil, err
			}
			res.Notices = append(res.Notices, Notice{
				To:      ToUser(approval.SubmittedByID),
				Message: fmt.Sprintf("Change request %s was rejected at %s level", wr.ProjectName, req.Level),
				Type:    NotifyApprovalResult,
				Link:    approvalLink(approval),
			})
		}
	case approval.IsApproved:
		wr.Status = entity.WRStatusChangesApproved
		if err := m.saveRequest(ctx, repo, wr, now); err != nil {
			return nil, err
		}
		res.Notices = append(res.Notices, Notice{
			To:      ToUser(approval.SubmittedByID),
			Message: fmt.Sprintf("Change request %s was approved", wr.ProjectName),
			Type:    NotifyApprovalResult,
			Link:    approvalLink(approval),
		})
	case req.Status == entity.ApprovalApproved:
		if next, ok := req.Level.Next(); ok {
			if d, _ := approval.Decision(next); d.IsPending() {
				if err := m.spawnReview(ctx, repo, res, next, actorID, now); err != nil {
					return nil, err
				}
			}
		}
	}
	return res, nil
}

func (m *ApprovalMachine) saveRequest(ctx context.Context, repo Repository, wr *entity.WarehouseRequest, now time.Time) error {
	wr.UpdatedAt = now
	if err := repo.SaveWarehouseRequest(ctx, wr); err != nil {
		return fmt.Errorf("save warehouse request %s: %w", wr.ID, err)
	}
	return nil
}

// spawnReview creates the review task for level unless one is already open.
func (m *ApprovalMachine) spawnReview(ctx context.Context, repo Repository, res *ApprovalResult,
	level entity.ApprovalLevel, actorID string, now time.Time) error {
	open, _, err := repo.ListTasks(ctx, entity.TaskFilter{
		ApprovalID: res.Approval.ID, Type: entity.TaskTypeReviewChangeRequest, OpenOnly: true,
	})
	if err != nil {
		return fmt.Errorf("list review tasks: %w", err)
	}
	for _, t := range open {
		if p, _ := t.Payload(); p.ApprovalLevel == level {
			return nil
		}
	}

	task, err := newTask(TaskSpec{
		Type:         entity.TaskTypeReviewChangeRequest,
		Title:        fmt.Sprintf("Review change request: %s", res.Request.ProjectName),
		Description:  res.Approval.Description,
		AssigneeRole: level.Role(),
		Priority:     entity.PriorityHigh,
		Payload:      entity.TaskPayload{ApprovalLevel: level},
	}, actorID, now)
	if err != nil {
		return err
	}
	task.ApprovalID = &res.Approval.ID
	if err := repo.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("create review task: %w", err)
	}
	res.Created = append(res.Created, task)
	res.Notices = append(res.Notices, Notice{
		To:      ToRole(task.AssigneeRole),
		Message: fmt.Sprintf("Change request %s needs your review", res.Request.ProjectName),
		Type:    NotifyApprovalRequired,
		Link:    approvalLink(res.Approval),
	})
	return nil
}

func approvalLink(a *entity.ChangeRequestApproval) string {
	return "/approvals/" + a.ID
}
