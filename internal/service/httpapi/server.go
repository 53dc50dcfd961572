// Package httpapi — HTTP-поверхность бота: webhook платёжного шлюза,
// админские ручки, входящие сообщения чат-моста и служебные страницы.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
	"github.com/vladislavdragonenkov/shopbot/internal/metrics"
	"github.com/vladislavdragonenkov/shopbot/internal/service/checkout"
	"github.com/vladislavdragonenkov/shopbot/internal/service/command"
)

const (
	rootText   = "OK - PBS Bot is running"
	finishText = "Terima kasih! Silakan cek WhatsApp Anda untuk konfirmasi & produk."

	maxBodyBytes = 1 << 20
)

// Reconciler обрабатывает уведомление шлюза.
type Reconciler interface {
	Reconcile(ctx context.Context, n domain.WebhookNotification) (checkout.ReconcileResult, error)
}

// Catalog — перезагрузка каталога по запросу администратора.
type Catalog interface {
	RefreshProducts(ctx context.Context, force bool) error
	RefreshPromos(ctx context.Context, force bool) error
	All() []domain.Product
	PromoCount() int
}

// Dispatcher выполняет команду чата и отправляет ответ.
type Dispatcher interface {
	Dispatch(ctx context.Context, in command.Inbound) string
}

// AdminNotifier рассылает сообщение администраторам.
type AdminNotifier interface {
	Notify(ctx context.Context, text string) int
}

// Deps — зависимости HTTP-слоя. Nil-зависимость отключает соответствующие ручки.
type Deps struct {
	Reconciler Reconciler
	Catalog    Catalog
	Commands   Dispatcher
	Admins     AdminNotifier
	Health     http.Handler
}

// Config — секреты и наблюдаемость.
type Config struct {
	// AdminSecret защищает /admin/*. Пустой секрет запрещает все админские запросы.
	AdminSecret string
	// ChatToken защищает /chat/inbound; пустой токен не проверяется.
	ChatToken string
	Logger    *log.Entry
	Metrics   *metrics.LedgerMetrics
}

// Server собирает chi-роутер.
type Server struct {
	deps    Deps
	cfg     Config
	logger  *log.Entry
	metrics *metrics.LedgerMetrics
}

// NewServer создаёт HTTP-слой.
func NewServer(deps Deps, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "httpapi")
	}
	return &Server{deps: deps, cfg: cfg, logger: logger, metrics: cfg.Metrics}
}

// Routes возвращает обработчик со всеми маршрутами.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) { writeText(w, http.StatusOK, rootText) })
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) { writeJSON(w, http.StatusOK, map[string]any{"ok": true}) })
	r.Get("/pay/finish", func(w http.ResponseWriter, _ *http.Request) { writeText(w, http.StatusOK, finishText) })
	if s.deps.Health != nil {
		r.Method(http.MethodGet, "/healthz", s.deps.Health)
	}

	if s.deps.Reconciler != nil {
		r.Post("/webhook/payment", s.handleWebhook)
		r.Post("/webhook/midtrans", s.handleWebhook)
	}
	if s.deps.Catalog != nil {
		r.Post("/admin/reload", s.handleReload)
	}
	r.Post("/admin/lowstock", s.handleLowStock)
	if s.deps.Commands != nil {
		r.Post("/chat/inbound", s.handleChatInbound)
	}
	return r
}

// requestLogger пишет строку access-лога через logrus.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		entry := s.logger.WithFields(log.Fields{
			"request_id":  middleware.GetReqID(r.Context()),
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if ww.Status() >= http.StatusInternalServerError {
			entry.Warn("http request failed")
			return
		}
		entry.Debug("http request")
	})
}

// authorized сверяет секрет запроса с настроенным за постоянное время.
func (s *Server) authorized(secret string) bool {
	if s.cfg.AdminSecret == "" {
		return false
	}
	return secretEqual(secret, s.cfg.AdminSecret)
}

func secretEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(text))
}
