package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// LevelDecision one approval level's decision
type LevelDecision struct {
	Status     ApprovalStatus `json:"status"`
	ApprovedBy string         `json:"approved_by,omitempty"`
	ApprovedAt *time.Time     `json:"approved_at,omitempty"`
	Comments   string         `json:"comments,omitempty"`
}

// PendingDecision the initial state of every level.
func PendingDecision() LevelDecision {
	return LevelDecision{Status: ApprovalPending}
}

func (d LevelDecision) IsPending() bool {
	return d.Status == "" || d.Status == ApprovalPending
}

func (d LevelDecision) Value() (driver.Value, error) {
	if d.Status == "" {
		d.Status = ApprovalPending
	}
	return json.Marshal(d)
}

func (d *LevelDecision) Scan(value interface{}) error {
	if value == nil {
		*d = PendingDecision()
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan level decision: %w", err)
	}
	return json.Unmarshal(bytes, d)
}

// ChangeRequestApproval three-level approval of a change addendum
type ChangeRequestApproval struct {
	ID                     string           `json:"id" gorm:"primaryKey;size:36"`
	WarehouseRequestID     string           `json:"warehouse_request_id" gorm:"size:36;not null;uniqueIndex"`
	SubmittedByID          string           `json:"submitted_by_id" gorm:"size:64;not null"`
	Description            string           `json:"description" gorm:"type:text"`
	ImpactAnalysis         string           `json:"impact_analysis" gorm:"type:text"`
	TechnicalJustification string           `json:"technical_justification" gorm:"type:text"`
	Attachments            JSONList[string] `json:"attachments" gorm:"type:jsonb"`
	QCApproval             LevelDecision    `json:"qc_approval" gorm:"type:jsonb;not null"`
	ProductionApproval     LevelDecision    `json:"production_approval" gorm:"type:jsonb;not null"`
	TechnicalApproval      LevelDecision    `json:"technical_approval" gorm:"type:jsonb;not null"`
	IsCompleted            bool             `json:"is_completed" gorm:"not null;default:false"`
	IsApproved             bool             `json:"is_approved" gorm:"not null;default:false"`
	CompletedAt            *time.Time       `json:"completed_at"`
	Version                int              `json:"version" gorm:"not null;default:0"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
}

func (ChangeRequestApproval) TableName() string {
	return "mes_change_request_approvals"
}

func (a *ChangeRequestApproval) slot(level ApprovalLevel) *LevelDecision {
	switch level {
	case LevelQCManager:
		return &a.QCApproval
	case LevelProductionManager:
		return &a.ProductionApproval
	case LevelTechnicalManager:
		return &a.TechnicalApproval
	}
	return nil
}

// Decision returns the sub-record for level.
func (a *ChangeRequestApproval) Decision(level ApprovalLevel) (LevelDecision, bool) {
	s := a.slot(level)
	if s == nil {
		return LevelDecision{}, false
	}
	return *s, true
}

// SetDecision writes the sub-record for level and recomputes the derived flags.
func (a *ChangeRequestApproval) SetDecision(level ApprovalLevel, d LevelDecision, now time.Time) error {
	s := a.slot(level)
	if s == nil {
		return fmt.Errorf("unknown approval level %q", level)
	}
	*s = d
	a.Recompute(now)
	return nil
}

// AnyRejected reports whether some level has rejected the change.
func (a *ChangeRequestApproval) AnyRejected() bool {
	for _, l := range ApprovalLevels {
		if d, _ := a.Decision(l); d.Status == ApprovalRejected {
			return true
		}
	}
	return false
}

// Recompute derives IsCompleted and IsApproved from the three sub-records.
// CompletedAt is stamped the first time the approval becomes complete.
func (a *ChangeRequestApproval) Recompute(now time.Time) {
	completed, approved := true, true
	for _, l := range ApprovalLevels {
		d, _ := a.Decision(l)
		if d.IsPending() {
			completed = false
		}
		if d.Status != ApprovalApproved {
			approved = false
		}
	}
	a.IsCompleted = completed
	a.IsApproved = completed && approved
	switch {
	case completed && a.CompletedAt == nil:
		a.CompletedAt = &now
	case !completed:
		a.CompletedAt = nil
	}
}
