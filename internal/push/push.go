package push

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/dvloznov/receipt-tracker/internal/domain"
	"google.golang.org/api/option"
)

var (
	// ErrNoRegistration is returned when the extension supplied no registration token.
	ErrNoRegistration = errors.New("push: no registration token")
	// ErrTokenRejected is returned when FCM refuses a registration token.
	ErrTokenRejected = errors.New("push: registration token rejected")
)

// Messenger is the subset of the FCM client used here. *messaging.Client satisfies it.
type Messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
	SendDryRun(ctx context.Context, message *messaging.Message) (string, error)
}

// NewMessenger creates an FCM client for the Firebase project.
func NewMessenger(ctx context.Context, projectID string, opts ...option.ClientOption) (*messaging.Client, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewMessenger: initializing app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewMessenger: messaging client: %w", err)
	}
	return client, nil
}

// Issuer hands out registration tokens. FCM web tokens are minted by the
// messaging SDK inside the extension's service worker, so the issuer accepts
// the token the extension currently holds and confirms FCM still knows it.
type Issuer struct {
	messenger Messenger
}

// NewIssuer creates an Issuer backed by FCM.
func NewIssuer(m Messenger) *Issuer {
	return &Issuer{messenger: m}
}

// RequestToken validates the registration with a dry-run send and returns its token.
func (i *Issuer) RequestToken(ctx context.Context, reg domain.Registration) (string, error) {
	if reg.Token == "" {
		return "", ErrNoRegistration
	}

	_, err := i.messenger.SendDryRun(ctx, &messaging.Message{
		Token: reg.Token,
		Data:  map[string]string{"type": "token_check"},
	})
	if err != nil {
		if messaging.IsRegistrationTokenNotRegistered(err) || messaging.IsInvalidArgument(err) {
			return "", fmt.Errorf("%w: %w", ErrTokenRejected, err)
		}
		return "", fmt.Errorf("RequestToken: dry run: %w", err)
	}

	return reg.Token, nil
}

// Sender delivers notifications to a single registration token.
type Sender struct {
	messenger Messenger
}

// NewSender creates a Sender backed by FCM.
func NewSender(m Messenger) *Sender {
	return &Sender{messenger: m}
}

// Send delivers n as a web push notification and returns the FCM message id.
func (s *Sender) Send(ctx context.Context, token string, n domain.Notification) (string, error) {
	if token == "" {
		return "", ErrNoRegistration
	}

	id, err := s.messenger.Send(ctx, &messaging.Message{
		Token: token,
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Title: n.Title,
				Body:  n.Message,
				Icon:  n.Icon,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("Send: %w", err)
	}
	return id, nil
}
