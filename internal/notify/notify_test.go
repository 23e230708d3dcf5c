package notify

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/logger"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	shown []domain.Notification
	err   error
}

func (r *recorder) Show(ctx context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = append(r.shown, n)
	return r.err
}

type mockSender struct {
	SendFunc func(ctx context.Context, token string, n domain.Notification) (string, error)
}

func (m *mockSender) Send(ctx context.Context, token string, n domain.Notification) (string, error) {
	return m.SendFunc(ctx, token, n)
}

func TestConfirmSync(t *testing.T) {
	rec := &recorder{}
	svc := NewService(rec, "")

	profile := &domain.UserProfile{ID: "u1", FCMToken: "tok"}
	svc.ConfirmSync(context.Background(), profile, 3)
	svc.Wait()

	require.Len(t, rec.shown, 1)
	require.Equal(t, domain.Notification{
		Title:     "Receipt received",
		Message:   "Uploaded 3 items",
		Icon:      DefaultIcon,
		Recipient: "tok",
	}, rec.shown[0])
}

func TestConfirmSync_MutedProfile(t *testing.T) {
	rec := &recorder{}
	svc := NewService(rec, "icon.png")

	muted := false
	svc.ConfirmSync(context.Background(), &domain.UserProfile{ID: "u1", Notify: &muted}, 3)
	svc.Wait()

	require.Empty(t, rec.shown)
}

func TestConfirmSync_FailureIsLoggedNotReturned(t *testing.T) {
	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(&buf))

	rec := &recorder{err: errors.New("device offline")}
	svc := NewService(rec, "")
	svc.ConfirmSync(ctx, &domain.UserProfile{ID: "u1"}, 1)
	svc.Wait()

	require.Len(t, rec.shown, 1)
	require.Contains(t, buf.String(), "device offline")
}

func TestRenderPush(t *testing.T) {
	rec := &recorder{}
	svc := NewService(rec, "icon.png")

	shown := svc.RenderPush(context.Background(), domain.PushPayload{
		Notification: &domain.PushNotification{Title: "Weekly summary", Body: "12 receipts"},
	}, nil)
	svc.Wait()

	require.True(t, shown)
	require.Len(t, rec.shown, 1)
	require.Equal(t, "Weekly summary", rec.shown[0].Title)
	require.Equal(t, "12 receipts", rec.shown[0].Message)
	require.Equal(t, "icon.png", rec.shown[0].Icon)
}

func TestRenderPush_DataOnly(t *testing.T) {
	rec := &recorder{}
	svc := NewService(rec, "")

	shown := svc.RenderPush(context.Background(), domain.PushPayload{Data: map[string]string{"k": "v"}}, nil)
	svc.Wait()

	require.False(t, shown)
	require.Empty(t, rec.shown)
}

func TestPushNotifier(t *testing.T) {
	var gotToken string
	sender := &mockSender{SendFunc: func(ctx context.Context, token string, n domain.Notification) (string, error) {
		gotToken = token
		return "msg-1", nil
	}}

	err := NewPushNotifier(sender).Show(context.Background(), domain.Notification{Title: "t", Recipient: "tok"})
	require.NoError(t, err)
	require.Equal(t, "tok", gotToken)

	failing := &mockSender{SendFunc: func(ctx context.Context, token string, n domain.Notification) (string, error) {
		return "", errors.New("unregistered")
	}}
	require.Error(t, NewPushNotifier(failing).Show(context.Background(), domain.Notification{}))
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(logger.NewWithWriter(&buf))

	require.NoError(t, n.Show(context.Background(), domain.Notification{Title: "Receipt received", Message: "Uploaded 2 items"}))
	require.Contains(t, buf.String(), "Uploaded 2 items")
}
