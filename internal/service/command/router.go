// Package command разбирает текстовые команды чата и отвечает на них.
package command

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
	"github.com/vladislavdragonenkov/shopbot/internal/service/checkout"
)

const (
	defaultCooldown = 2 * time.Second
	defaultPerPage  = 8
	// Лимитеры покупателей, молчащих дольше, удаляются при очистке.
	limiterIdle     = 10 * time.Minute
	limiterSweepMin = 1024
)

// Catalog — чтение каталога для команд.
type Catalog interface {
	Ensure(ctx context.Context) error
	Refresh(ctx context.Context, force bool) error
	All() []domain.Product
	ByCode(code string) (domain.Product, bool)
	Search(query string) []domain.Product
	Categories() []string
	PromoCount() int
	LooksLikeQuery(text string) bool
	PaymentLines(ctx context.Context) ([]string, error)
}

// Checkout — покупка и статус заказа.
type Checkout interface {
	Buy(ctx context.Context, req checkout.BuyRequest) (checkout.Receipt, error)
	Status(ctx context.Context, orderID string) (string, error)
}

// Admins проверяет права администратора.
type Admins interface {
	IsAdmin(ref string) bool
}

// Inbound — входящее сообщение чата.
type Inbound struct {
	From string `json:"from"`
	Text string `json:"text"`
}

// Options настраивает Router.
type Options struct {
	Logger       *log.Entry
	Cooldown     time.Duration
	PerPage      int
	AdminContact string
	Clock        func() time.Time
}

// Option изменяет Options.
type Option func(*Options)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithCooldown задаёт минимальный интервал между командами одного покупателя; 0 отключает.
func WithCooldown(d time.Duration) Option {
	return func(o *Options) { o.Cooldown = d }
}

// WithPerPage задаёт размер страницы #list.
func WithPerPage(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.PerPage = n
		}
	}
}

// WithAdminContact задаёт контакт администратора для карточек и #beli.
func WithAdminContact(contact string) Option {
	return func(o *Options) { o.AdminContact = contact }
}

// WithClock подменяет часы (для тестов).
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Clock = now
		}
	}
}

type limiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Router выполняет команды и отправляет ответы через Notifier.
type Router struct {
	catalog  Catalog
	checkout Checkout
	notifier domain.Notifier
	admins   Admins
	logger   *log.Entry

	cooldown     time.Duration
	perPage      int
	adminContact string
	now          func() time.Time

	mu       sync.Mutex
	limiters map[string]*limiter
}

// NewRouter создаёт роутер команд.
func NewRouter(catalog Catalog, co Checkout, notifier domain.Notifier, admins Admins, opts ...Option) *Router {
	o := Options{Cooldown: defaultCooldown, PerPage: defaultPerPage, Clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = log.WithField("component", "commands")
	}
	return &Router{
		catalog:      catalog,
		checkout:     co,
		notifier:     notifier,
		admins:       admins,
		logger:       o.Logger,
		cooldown:     o.Cooldown,
		perPage:      o.PerPage,
		adminContact: o.AdminContact,
		now:          o.Clock,
		limiters:     make(map[string]*limiter),
	}
}

// Dispatch обрабатывает сообщение и отправляет ответ отправителю.
// Возвращает текст ответа; пустая строка — сообщение проигнорировано или ответ уже отправлен.
func (r *Router) Dispatch(ctx context.Context, in Inbound) string {
	reply := r.Handle(ctx, in)
	if reply == "" {
		return ""
	}
	if _, err := r.notifier.Send(ctx, in.From, domain.Message{Text: reply}); err != nil {
		r.logger.WithError(err).WithField("to", in.From).Warn("send reply failed")
	}
	return reply
}

// Handle вычисляет ответ на сообщение, не отправляя его.
func (r *Router) Handle(ctx context.Context, in Inbound) string {
	text := strings.TrimSpace(in.Text)
	if text == "" || in.From == "" {
		return ""
	}

	isCommand := strings.ContainsRune("#/!", rune(text[0]))
	if !isCommand && !r.catalog.LooksLikeQuery(text) {
		return ""
	}
	if !r.allow(in.From) {
		r.logger.WithField("from", in.From).Debug("command dropped by cooldown")
		return ""
	}

	logger := r.logger.WithField("from", in.From)
	if !isCommand {
		return r.freeText(ctx, logger, text)
	}

	name, args := split(text)
	handler, ok := r.handlers()[name]
	if !ok {
		if strings.EqualFold(text, "payment") {
			return r.payment(ctx, logger, in, nil)
		}
		return unknownCommand(name)
	}
	return handler(ctx, logger, in, args)
}

// split отделяет имя команды ("#list") от аргументов. Префиксы / и ! приводятся к #.
func split(text string) (string, []string) {
	fields := strings.Fields(text)
	name := strings.ToLower(fields[0])
	name = "#" + strings.TrimLeft(name, "#/!")
	return name, fields[1:]
}

// allow применяет cooldown покупателя.
func (r *Router) allow(from string) bool {
	if r.cooldown <= 0 {
		return true
	}
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.limiters) >= limiterSweepMin {
		for ref, l := range r.limiters {
			if now.Sub(l.lastSeen) > limiterIdle {
				delete(r.limiters, ref)
			}
		}
	}

	l, ok := r.limiters[from]
	if !ok {
		l = &limiter{lim: rate.NewLimiter(rate.Every(r.cooldown), 1)}
		r.limiters[from] = l
	}
	l.lastSeen = now
	return l.lim.AllowN(now, 1)
}

func (r *Router) isAdmin(ref string) bool {
	return r.admins != nil && r.admins.IsAdmin(ref)
}
