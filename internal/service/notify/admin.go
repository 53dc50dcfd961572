package notify

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

// AdminNotifier рассылает служебные сообщения всем администраторам.
type AdminNotifier struct {
	notifier domain.Notifier
	admins   []string
	logger   *log.Entry
}

// NewAdminNotifier создаёт рассыльщик; пустые ссылки отбрасываются.
func NewAdminNotifier(notifier domain.Notifier, admins []string, logger *log.Entry) *AdminNotifier {
	if logger == nil {
		logger = log.WithField("component", "admin-notify")
	}
	refs := make([]string, 0, len(admins))
	for _, a := range admins {
		if a = strings.TrimSpace(a); a != "" {
			refs = append(refs, a)
		}
	}
	return &AdminNotifier{notifier: notifier, admins: refs, logger: logger}
}

// IsAdmin проверяет, что ref входит в список администраторов.
func (a *AdminNotifier) IsAdmin(ref string) bool {
	for _, admin := range a.admins {
		if admin == ref {
			return true
		}
	}
	return false
}

// Admins возвращает копию списка.
func (a *AdminNotifier) Admins() []string {
	return append([]string(nil), a.admins...)
}

// Notify отправляет текст каждому администратору и возвращает число доставленных.
// Ошибки только логируются.
func (a *AdminNotifier) Notify(ctx context.Context, text string) int {
	if a.notifier == nil {
		return 0
	}
	delivered := 0
	for _, ref := range a.admins {
		if _, err := a.notifier.Send(ctx, ref, domain.Message{Text: text}); err != nil {
			a.logger.WithError(err).WithField("admin", ref).Warn("admin notification failed")
			continue
		}
		delivered++
	}
	return delivered
}
