package handler

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type NotificationStore interface {
	FindForUser(ctx context.Context, userID string, roles []string, unreadOnly bool, page, pageSize int) ([]entity.Notification, int64, error)
	MarkRead(ctx context.Context, id string) error
}

type AuditLogStore interface {
	FindByEntity(ctx context.Context, entityType, entityID string, page, pageSize int) ([]entity.AuditLog, int64, error)
}

// InboxHandler notification inbox and audit trail
type InboxHandler struct {
	notifications NotificationStore
	audit         AuditLogStore
	logger        *zap.Logger
}

func NewInboxHandler(notifications NotificationStore, audit AuditLogStore, logger *zap.Logger) *InboxHandler {
	return &InboxHandler{notifications: notifications, audit: audit, logger: logger}
}

// ListNotifications GET /notifications?unread=true
func (h *InboxHandler) ListNotifications(c *gin.Context) {
	page, pageSize := pageParams(c)
	items, total, err := h.notifications.FindForUser(c.Request.Context(), GetUserID(c), GetRoles(c),
		c.Query("unread") == "true", page, pageSize)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if items == nil {
		items = []entity.Notification{}
	}
	Success(c, ListResponse{Items: items, Pagination: newPagination(page, pageSize, total)})
}

// MarkNotificationRead POST /notifications/:id/read
func (h *InboxHandler) MarkNotificationRead(c *gin.Context) {
	if err := h.notifications.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	Success(c, nil)
}

// ListAuditLogs GET /audit-logs?entity_type=route_card&entity_id=xxx
func (h *InboxHandler) ListAuditLogs(c *gin.Context) {
	entityType, entityID := c.Query("entity_type"), c.Query("entity_id")
	if entityType == "" || entityID == "" {
		BadRequest(c, "entity_type and entity_id are required")
		return
	}
	page, pageSize := pageParams(c)
	items, total, err := h.audit.FindByEntity(c.Request.Context(), entityType, entityID, page, pageSize)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if items == nil {
		items = []entity.AuditLog{}
	}
	Success(c, ListResponse{Items: items, Pagination: newPagination(page, pageSize, total)})
}
