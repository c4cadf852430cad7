package entity

import (
	"time"

	"gorm.io/datatypes"
)

// Notification in-app notification, addressed to a user or to every holder of a role
type Notification struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	UserID    string    `json:"user_id" gorm:"size:64;index"`
	Role      string    `json:"role" gorm:"size:50;index"`
	Message   string    `json:"message" gorm:"type:text;not null"`
	Type      string    `json:"type" gorm:"size:50;not null"` // task_assigned/delay/approval/...
	Link      string    `json:"link" gorm:"size:500"`
	IsRead    bool      `json:"is_read" gorm:"default:false"`
	CreatedAt time.Time `json:"created_at"`
}

func (Notification) TableName() string {
	return "mes_notifications"
}

// AuditLog workflow audit trail
type AuditLog struct {
	ID         string         `json:"id" gorm:"primaryKey;size:36"`
	ActorID    string         `json:"actor_id" gorm:"size:64;index"`
	Action     string         `json:"action" gorm:"size:50;not null"`
	EntityType string         `json:"entity_type" gorm:"size:50;not null;index:idx_audit_entity"`
	EntityID   string         `json:"entity_id" gorm:"size:36;not null;index:idx_audit_entity"`
	Details    datatypes.JSON `json:"details" gorm:"type:jsonb"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (AuditLog) TableName() string {
	return "mes_audit_logs"
}
