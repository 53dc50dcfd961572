package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

type flakyNotifier struct {
	*Recorder
	failFor string
}

func (f *flakyNotifier) Send(ctx context.Context, ref string, msg domain.Message) (domain.NotificationHandle, error) {
	if ref == f.failFor {
		return domain.NotificationHandle{}, errors.New("bridge down")
	}
	return f.Recorder.Send(ctx, ref, msg)
}

func TestAdminNotifier_FanOutSkipsFailures(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	n := NewAdminNotifier(&flakyNotifier{Recorder: rec, failFor: "b"}, []string{"a", " ", "b", "c"}, nil)

	if got := n.Notify(context.Background(), "⚠️ *Low Stock Alert*"); got != 2 {
		t.Fatalf("delivered = %d, want 2", got)
	}
	if len(rec.SentTo("a")) != 1 || len(rec.SentTo("c")) != 1 || len(rec.SentTo("b")) != 0 {
		t.Fatalf("unexpected deliveries: %+v", rec.Sent())
	}
	if len(n.Admins()) != 3 {
		t.Fatalf("blank admin refs must be dropped: %v", n.Admins())
	}
}

func TestAdminNotifier_IsAdmin(t *testing.T) {
	t.Parallel()

	n := NewAdminNotifier(nil, []string{"628111@c.us"}, nil)
	if !n.IsAdmin("628111@c.us") || n.IsAdmin("628222@c.us") {
		t.Fatal("IsAdmin mismatch")
	}
	if got := n.Notify(context.Background(), "x"); got != 0 {
		t.Fatalf("nil notifier must deliver nothing, got %d", got)
	}
}

func TestRecorder_RecordsAndFails(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	h, err := rec.Send(context.Background(), "buyer", domain.Message{Text: "hi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := rec.Revoke(context.Background(), h); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if len(rec.Revoked()) != 1 || rec.Revoked()[0] != h {
		t.Fatalf("unexpected revoked: %+v", rec.Revoked())
	}

	rec.SendErr = domain.ErrNotificationFailure
	if _, err := rec.Send(context.Background(), "buyer", domain.Message{}); !errors.Is(err, domain.ErrNotificationFailure) {
		t.Fatalf("expected configured error, got %v", err)
	}
}
