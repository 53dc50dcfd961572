package notify

import (
	"context"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

// LogDispatcher пишет исходящие сообщения в лог. Используется без моста чата.
type LogDispatcher struct {
	logger *log.Entry
}

// NewLogDispatcher создаёт dispatcher поверх логгера.
func NewLogDispatcher(logger *log.Entry) *LogDispatcher {
	if logger == nil {
		logger = log.WithField("component", "chat-log")
	}
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Send(_ context.Context, buyerRef string, msg domain.Message) (domain.NotificationHandle, error) {
	handle := domain.NotificationHandle{ID: uuid.NewString(), BuyerRef: buyerRef}
	d.logger.WithFields(log.Fields{
		"to":          buyerRef,
		"message_id":  handle.ID,
		"image_bytes": len(msg.Image),
	}).Info(msg.Text)
	return handle, nil
}

func (d *LogDispatcher) Revoke(_ context.Context, handle domain.NotificationHandle) error {
	d.logger.WithFields(log.Fields{
		"to":         handle.BuyerRef,
		"message_id": handle.ID,
	}).Info("message revoked")
	return nil
}

var _ domain.Notifier = (*LogDispatcher)(nil)
