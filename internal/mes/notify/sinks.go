// Package notify delivers workflow notifications and audit records. Every sink
// returns its error to the caller, which logs it and carries on.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/sse"
	"github.com/bitfantasy/nimo-mes/internal/mes/workflow"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type notificationStore interface {
	Create(ctx context.Context, n *entity.Notification) error
}

type auditStore interface {
	Create(ctx context.Context, log *entity.AuditLog) error
}

// DBSink persists notifications so they show up in the user's inbox.
type DBSink struct {
	repo notificationStore
}

func NewDBSink(repo notificationStore) *DBSink {
	return &DBSink{repo: repo}
}

func (s *DBSink) Notify(ctx context.Context, to workflow.Recipient, message, notificationType, link string) error {
	return s.repo.Create(ctx, &entity.Notification{
		UserID:  to.UserID,
		Role:    to.Role,
		Message: message,
		Type:    notificationType,
		Link:    link,
	})
}

// DBAuditSink persists audit records.
type DBAuditSink struct {
	repo auditStore
}

func NewDBAuditSink(repo auditStore) *DBAuditSink {
	return &DBAuditSink{repo: repo}
}

func (s *DBAuditSink) Record(ctx context.Context, actorID, action, entityType, entityID string, details map[string]interface{}) error {
	data, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	return s.repo.Create(ctx, &entity.AuditLog{
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    datatypes.JSON(data),
	})
}

// SSESink pushes notifications to connected browsers.
type SSESink struct {
	hub *sse.Hub
}

func NewSSESink(hub *sse.Hub) *SSESink {
	return &SSESink{hub: hub}
}

type ssePayload struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Link    string `json:"link,omitempty"`
}

func (s *SSESink) Notify(ctx context.Context, to workflow.Recipient, message, notificationType, link string) error {
	data, err := json.Marshal(ssePayload{Message: message, Type: notificationType, Link: link})
	if err != nil {
		return err
	}
	event := sse.Event{EventType: "notification", Data: string(data)}
	if to.UserID != "" {
		s.hub.SendToUser(to.UserID, event)
	} else {
		s.hub.SendToRole(to.Role, event)
	}
	return nil
}

// LogSink writes notifications and audit records to the log. Used when nothing
// else is configured.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(ctx context.Context, to workflow.Recipient, message, notificationType, link string) error {
	s.logger.Info("Notification",
		zap.String("recipient", to.String()),
		zap.String("type", notificationType),
		zap.String("message", message),
		zap.String("link", link),
	)
	return nil
}

func (s *LogSink) Record(ctx context.Context, actorID, action, entityType, entityID string, details map[string]interface{}) error {
	s.logger.Info("Audit",
		zap.String("actor_id", actorID),
		zap.String("action", action),
		zap.String("entity_type", entityType),
		zap.String("entity_id", entityID),
		zap.Any("details", details),
	)
	return nil
}

// Fanout delivers to every sink; one failing sink does not stop the others.
type Fanout []workflow.NotificationSink

func (f Fanout) Notify(ctx context.Context, to workflow.Recipient, message, notificationType, link string) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Notify(ctx, to, message, notificationType, link); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AuditFanout records to every sink.
type AuditFanout []workflow.AuditSink

func (f AuditFanout) Record(ctx context.Context, actorID, action, entityType, entityID string, details map[string]interface{}) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Record(ctx, actorID, action, entityType, entityID, details); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
