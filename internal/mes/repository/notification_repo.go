package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/workflow"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationRepository in-app notifications
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *entity.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(n).Error
}

// FindForUser notifications addressed to the user or to one of their roles, newest first
func (r *NotificationRepository) FindForUser(ctx context.Context, userID string, roles []string, unreadOnly bool, page, pageSize int) ([]entity.Notification, int64, error) {
	var items []entity.Notification
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Notification{})
	if len(roles) > 0 {
		query = query.Where("user_id = ? OR role IN ?", userID, roles)
	} else {
		query = query.Where("user_id = ?", userID)
	}
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// MarkRead marks one notification read
func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&entity.Notification{}).
		Where("id = ?", id).
		Update("is_read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return workflow.NotFoundError("notification", id)
	}
	return nil
}

// AuditLogRepository workflow audit trail
type AuditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func (r *AuditLogRepository) Create(ctx context.Context, log *entity.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(log).Error
}

// FindByEntity audit entries of one entity, newest first
func (r *AuditLogRepository) FindByEntity(ctx context.Context, entityType, entityID string, page, pageSize int) ([]entity.AuditLog, int64, error) {
	var items []entity.AuditLog
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.AuditLog{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}
