package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/quickbites/identity-service/internal/events"
	"github.com/quickbites/identity-service/internal/mail"
)

// NotificationService reacts to principal lifecycle events.
type NotificationService struct {
	dispatcher events.Dispatcher
	mailer     mail.Mailer
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, mailer mail.Mailer, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		mailer:     mailer,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventPrincipalRegistered, n.handleWelcome)
	n.dispatcher.Subscribe(events.EventPrincipalProvisioned, n.handleWelcome)
	n.dispatcher.Subscribe(events.EventLoginSucceeded, n.handleAudit)
	n.dispatcher.Subscribe(events.EventPasswordReset, n.handleAudit)
}

func (n *NotificationService) handleWelcome(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type), actorFields(event)...)
	if n.mailer == nil {
		return nil
	}
	msg, err := mail.Welcome(event.Actor.Email, event.Actor.Name)
	if err != nil {
		return err
	}
	// Welcome mail is best effort; the account already exists.
	if err := n.mailer.Send(ctx, msg); err != nil {
		n.logger.Warn("welcome mail failed", append(actorFields(event), zap.Error(err))...)
	}
	return nil
}

func (n *NotificationService) handleAudit(_ context.Context, event events.Event) error {
	n.logger.Info(string(event.Type), append(actorFields(event), zap.Any("payload", event.Payload))...)
	return nil
}

func actorFields(event events.Event) []zap.Field {
	return []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("role", string(event.Actor.Role)),
		zap.String("principal_id", event.Actor.PrincipalID),
	}
}
