package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

// Sent — запись об отправленном сообщении.
type Sent struct {
	Handle  domain.NotificationHandle
	Message domain.Message
}

// Recorder запоминает отправленные и отозванные сообщения. Для тестов.
type Recorder struct {
	mu      sync.Mutex
	seq     int
	sent    []Sent
	revoked []domain.NotificationHandle

	// SendErr и RevokeErr заставляют вызовы завершаться ошибкой.
	SendErr   error
	RevokeErr error
}

// NewRecorder создаёт пустой Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Send(_ context.Context, buyerRef string, msg domain.Message) (domain.NotificationHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.SendErr != nil {
		return domain.NotificationHandle{}, r.SendErr
	}
	r.seq++
	h := domain.NotificationHandle{ID: fmt.Sprintf("msg-%d", r.seq), BuyerRef: buyerRef}
	r.sent = append(r.sent, Sent{Handle: h, Message: msg})
	return h, nil
}

func (r *Recorder) Revoke(_ context.Context, handle domain.NotificationHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.RevokeErr != nil {
		return r.RevokeErr
	}
	r.revoked = append(r.revoked, handle)
	return nil
}

// Sent возвращает копию отправленных сообщений.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// SentTo возвращает сообщения, отправленные конкретному получателю.
func (r *Recorder) SentTo(buyerRef string) []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Message
	for _, s := range r.sent {
		if s.Handle.BuyerRef == buyerRef {
			out = append(out, s.Message)
		}
	}
	return out
}

// Revoked возвращает копию отозванных handle.
func (r *Recorder) Revoked() []domain.NotificationHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.NotificationHandle(nil), r.revoked...)
}

var _ domain.Notifier = (*Recorder)(nil)
