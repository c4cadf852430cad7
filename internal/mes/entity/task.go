package entity

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Task a unit of work for a human actor
type Task struct {
	ID             string         `json:"id" gorm:"primaryKey;size:36"`
	Type           TaskType       `json:"type" gorm:"size:32;not null;index"`
	Status         TaskStatus     `json:"status" gorm:"size:20;not null;default:NEW;index"`
	Title          string         `json:"title" gorm:"size:255;not null"`
	Description    string         `json:"description" gorm:"type:text"`
	RouteCardID    *string        `json:"route_card_id" gorm:"size:36;index"`
	OrderID        *string        `json:"order_id" gorm:"size:36;index"`
	ApprovalID     *string        `json:"approval_id" gorm:"size:36;index"`
	AssigneeRole   string         `json:"assignee_role" gorm:"size:50;index"`
	Priority       int            `json:"priority" gorm:"not null;default:3"`
	DueDate        *time.Time     `json:"due_date"`
	CompletedByID  *string        `json:"completed_by_id" gorm:"size:64"`
	CompletedAt    *time.Time     `json:"completed_at"`
	Notes          string         `json:"notes" gorm:"type:text"`
	AdditionalData datatypes.JSON `json:"additional_data" gorm:"type:jsonb"`
	CreatedByID    string         `json:"created_by_id" gorm:"size:64"`
	Version        int            `json:"version" gorm:"not null;default:0"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (Task) TableName() string {
	return "mes_tasks"
}

// TaskPayload the additional_data carried forward between stages.
// Only the fields relevant to a task type are set.
type TaskPayload struct {
	WorkstationIndex  *int                   `json:"workstation_index,omitempty"`
	QuantityToInspect string                 `json:"quantity_to_inspect,omitempty"`
	InvoiceURL        string                 `json:"subcontractor_invoice,omitempty"`
	ApprovalLevel     ApprovalLevel          `json:"level,omitempty"`
	QCLogs            []QCEvent              `json:"qc_logs,omitempty"`
	PickupDetails     []PickupEvent          `json:"pickup_details,omitempty"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// SetPayload encodes p into AdditionalData.
func (t *Task) SetPayload(p TaskPayload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	t.AdditionalData = datatypes.JSON(data)
	return nil
}

// Payload decodes AdditionalData; an empty column yields a zero payload.
func (t *Task) Payload() (TaskPayload, error) {
	var p TaskPayload
	if len(t.AdditionalData) == 0 {
		return p, nil
	}
	err := json.Unmarshal(t.AdditionalData, &p)
	return p, err
}

// BelongsTo reports whether the task is attached to the route card.
func (t *Task) BelongsTo(routeCardID string) bool {
	return t.RouteCardID != nil && *t.RouteCardID == routeCardID
}

// TaskFilter list query parameters
type TaskFilter struct {
	RouteCardID  string
	ApprovalID   string
	OrderID      string
	Type         TaskType
	AssigneeRole string
	OpenOnly     bool
	Page         int
	Size         int
}
