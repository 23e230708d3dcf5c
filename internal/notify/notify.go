// Package notify shows user-visible notifications: the confirmation after a
// receipt is synced and background push messages. Delivery is fire-and-forget.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/logger"
	"github.com/rs/zerolog"
)

const (
	ConfirmTitle  = "Receipt received"
	DefaultIcon   = "images/icon.png"
	deliveryLimit = 15 * time.Second
)

// ErrMutedByUser is returned when the profile opted out of notifications.
var ErrMutedByUser = errors.New("notifications disabled by user")

// Notifier shows a notification to the user.
type Notifier interface {
	Show(ctx context.Context, n domain.Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n domain.Notification) error

func (f NotifierFunc) Show(ctx context.Context, n domain.Notification) error {
	return f(ctx, n)
}

// Sender is the push transport used by PushNotifier.
type Sender interface {
	Send(ctx context.Context, token string, n domain.Notification) (string, error)
}

// PushNotifier delivers notifications as web push messages.
type PushNotifier struct {
	sender Sender
}

// NewPushNotifier creates a PushNotifier.
func NewPushNotifier(sender Sender) *PushNotifier {
	return &PushNotifier{sender: sender}
}

// Show implements Notifier.
func (p *PushNotifier) Show(ctx context.Context, n domain.Notification) error {
	id, err := p.sender.Send(ctx, n.Recipient, n)
	if err != nil {
		return fmt.Errorf("PushNotifier.Show: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Debug().Str("message_id", id).Msg("Push notification sent")
	return nil
}

// LogNotifier writes notifications to the log. It is used when push is not configured.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Show implements Notifier.
func (l *LogNotifier) Show(ctx context.Context, n domain.Notification) error {
	l.log.Info().
		Str("title", n.Title).
		Str("message", n.Message).
		Str("icon", n.Icon).
		Bool("has_recipient", n.Recipient != "").
		Msg("Notification")
	return nil
}

// Service decides what to show and dispatches it without blocking the caller.
type Service struct {
	notifier Notifier
	icon     string
	wg       sync.WaitGroup
}

// NewService creates a Service. An empty icon falls back to DefaultIcon.
func NewService(n Notifier, icon string) *Service {
	if icon == "" {
		icon = DefaultIcon
	}
	return &Service{notifier: n, icon: icon}
}

// ConfirmSync tells the user how many items of a receipt were uploaded.
func (s *Service) ConfirmSync(ctx context.Context, profile *domain.UserProfile, itemCount int) {
	s.dispatch(ctx, profile, domain.Notification{
		Title:   ConfirmTitle,
		Message: fmt.Sprintf("Uploaded %d items", itemCount),
	})
}

// RenderPush shows an incoming push payload. Payloads without a display part
// are data-only messages and are ignored.
func (s *Service) RenderPush(ctx context.Context, payload domain.PushPayload, profile *domain.UserProfile) bool {
	if payload.Notification == nil {
		log := logger.FromContext(ctx)
		log.Debug().Int("data_keys", len(payload.Data)).Msg("Data-only push message ignored")
		return false
	}
	s.dispatch(ctx, profile, domain.Notification{
		Title:   payload.Notification.Title,
		Message: payload.Notification.Body,
	})
	return true
}

func (s *Service) dispatch(ctx context.Context, profile *domain.UserProfile, n domain.Notification) {
	log := logger.FromContext(ctx)
	if profile != nil && !profile.NotificationsEnabled() {
		log.Debug().Err(ErrMutedByUser).Str("user_id", profile.ID).Msg("Notification skipped")
		return
	}
	n.Icon = s.icon
	if profile != nil {
		n.Recipient = profile.FCMToken
	}

	// detached from the request so a finished request does not cancel delivery
	dctx, cancel := context.WithTimeout(logger.WithContext(context.Background(), log), deliveryLimit)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		if err := s.notifier.Show(dctx, n); err != nil {
			log.Warn().Err(err).Str("title", n.Title).Msg("Notification delivery failed")
		}
	}()
}

// Wait blocks until every dispatched notification has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}
