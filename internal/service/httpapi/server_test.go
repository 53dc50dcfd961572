package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
	"github.com/vladislavdragonenkov/shopbot/internal/ledger"
	"github.com/vladislavdragonenkov/shopbot/internal/metrics"
	"github.com/vladislavdragonenkov/shopbot/internal/service/checkout"
	"github.com/vladislavdragonenkov/shopbot/internal/service/command"
)

const secret = "s3cret"

type stubReconciler struct {
	mu     sync.Mutex
	got    []domain.WebhookNotification
	result checkout.ReconcileResult
	err    error
	panics bool
}

func (s *stubReconciler) Reconcile(_ context.Context, n domain.WebhookNotification) (checkout.ReconcileResult, error) {
	if s.panics {
		panic("boom")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return s.result, s.err
}

func (s *stubReconciler) last() domain.WebhookNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.got[len(s.got)-1]
}

type stubCatalog struct {
	mu         sync.Mutex
	products   int
	promos     int
	productErr error
	calls      []string
}

func (c *stubCatalog) RefreshProducts(context.Context, bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "products")
	return c.productErr
}

func (c *stubCatalog) RefreshPromos(context.Context, bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "promos")
	return nil
}

func (c *stubCatalog) All() []domain.Product { return make([]domain.Product, c.products) }
func (c *stubCatalog) PromoCount() int       { return c.promos }

type stubAdmins struct {
	mu    sync.Mutex
	texts []string
}

func (a *stubAdmins) Notify(_ context.Context, text string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, text)
	return 1
}

type stubCommands struct {
	mu  sync.Mutex
	got []command.Inbound
}

func (c *stubCommands) Dispatch(_ context.Context, in command.Inbound) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, in)
	return "pong"
}

type fixture struct {
	handler    http.Handler
	reconciler *stubReconciler
	catalog    *stubCatalog
	admins     *stubAdmins
	commands   *stubCommands
	registry   *prometheus.Registry
}

// webhookCount читает shopbot_webhook_requests_total{result} из registry фикстуры.
func (f *fixture) webhookCount(t *testing.T, result string) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "shopbot_webhook_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelValue(m, "result") == result {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		reconciler: &stubReconciler{result: checkout.ReconcileResult{Payment: domain.PaymentSettled, Ledger: ledger.OutcomeFinalized}},
		catalog:    &stubCatalog{products: 3, promos: 2},
		admins:     &stubAdmins{},
		commands:   &stubCommands{},
		registry:   prometheus.NewRegistry(),
	}
	cfg.Metrics = metrics.NewLedgerMetricsWithRegisterer(f.registry)
	f.handler = NewServer(Deps{
		Reconciler: f.reconciler,
		Catalog:    f.catalog,
		Commands:   f.commands,
		Admins:     f.admins,
	}, cfg).Routes()
	return f
}

func (f *fixture) do(method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestStaticPages(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})

	rec := f.do(http.MethodGet, "/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, rootText, rec.Body.String())

	rec = f.do(http.MethodGet, "/status", "", "")
	require.JSONEq(t, `{"ok":true}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/pay/finish", "", "")
	require.Equal(t, finishText, rec.Body.String())
}

func TestWebhook_JSONBody(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})

	body := `{"order_id":"PBS-1","status_code":"200","gross_amount":"15000.00","signature_key":"abc","transaction_status":"settlement","payment_type":"qris"}`
	rec := f.do(http.MethodPost, "/webhook/payment", "application/json", body)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
	got := f.reconciler.last()
	require.Equal(t, "PBS-1", got.OrderID)
	require.Equal(t, "15000.00", got.GrossAmount)
	require.Equal(t, "abc", got.SignatureKey)
	require.Equal(t, "qris", got.PaymentType)
	require.Equal(t, 1.0, f.webhookCount(t, string(ledger.OutcomeFinalized)))
}

func TestWebhook_NumericAmountKeepsRawText(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})

	rec := f.do(http.MethodPost, "/webhook/midtrans", "application/json", `{"order_id":"PBS-1","status_code":200,"gross_amount":15000.00}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got := f.reconciler.last()
	require.Equal(t, "200", got.StatusCode)
	require.Equal(t, "15000.00", got.GrossAmount)
}

func TestWebhook_FormBody(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})

	form := url.Values{"order_id": {"PBS-2"}, "transaction_status": {"expire"}, "signature_key": {"sig"}}
	f.reconciler.result = checkout.ReconcileResult{Payment: domain.PaymentFailed, Ledger: ledger.OutcomeReleased}

	rec := f.do(http.MethodPost, "/webhook/midtrans", "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "PBS-2", f.reconciler.last().OrderID)
	require.Equal(t, "expire", f.reconciler.last().TransactionStatus)
}

func TestWebhook_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		body   string
		status int
		text   string
		label  string
	}{
		{name: "bad signature", err: domain.ErrSignatureInvalid, body: `{"order_id":"X"}`, status: http.StatusUnauthorized, text: "bad signature", label: webhookBadSignature},
		{name: "malformed", body: `{not json`, status: http.StatusBadRequest, text: "bad request", label: webhookMalformed},
		{name: "missing order id", err: domain.ErrOrderIDRequired, body: `{}`, status: http.StatusBadRequest, text: "bad request", label: webhookMalformed},
		{name: "ledger closed", err: domain.ErrLedgerClosed, body: `{"order_id":"X"}`, status: http.StatusInternalServerError, text: "error", label: webhookError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, Config{})
			f.reconciler.err = tt.err

			rec := f.do(http.MethodPost, "/webhook/payment", "application/json", tt.body)
			require.Equal(t, tt.status, rec.Code)
			require.Equal(t, tt.text, rec.Body.String())
			require.Equal(t, 1.0, f.webhookCount(t, tt.label))
		})
	}
}

func TestWebhook_OtherStatusIsAcknowledged(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.reconciler.result = checkout.ReconcileResult{Payment: domain.PaymentOther}

	rec := f.do(http.MethodPost, "/webhook/payment", "application/json", `{"order_id":"PBS-3","transaction_status":"pending"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1.0, f.webhookCount(t, webhookIgnored))
}

func TestWebhook_PanicIs500(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.reconciler.panics = true

	rec := f.do(http.MethodPost, "/webhook/payment", "application/json", `{"order_id":"X"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAdminReload(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{AdminSecret: secret})

	rec := f.do(http.MethodPost, "/admin/reload", "application/json", `{"secret":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "forbidden", rec.Body.String())

	rec = f.do(http.MethodPost, "/admin/reload", "application/json", `{"secret":"s3cret","note":"sheet updated"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"ok":true,"products":3,"promos":2}`, rec.Body.String())
	require.Equal(t, []string{"products", "promos"}, f.catalog.calls)
	require.Equal(t, []string{"♻️ Reload diminta: sheet updated"}, f.admins.texts)

	rec = f.do(http.MethodPost, "/admin/reload", "application/json", `{"secret":"s3cret","what":"PROMO"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"products", "promos", "promos"}, f.catalog.calls)
}

func TestAdminReload_FailureReportedInBody(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{AdminSecret: secret})
	f.catalog.productErr = errors.New("sheet down")

	rec := f.do(http.MethodPost, "/admin/reload", "application/json", `{"secret":"s3cret","what":"produk"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp reloadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.OK)
	require.Equal(t, "sheet down", resp.Error)
}

func TestAdmin_EmptySecretForbidsEverything(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})

	rec := f.do(http.MethodPost, "/admin/reload", "application/json", `{"secret":""}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = f.do(http.MethodPost, "/admin/lowstock", "application/json", `{"secret":""}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminLowStock(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{AdminSecret: secret})

	rec := f.do(http.MethodPost, "/admin/lowstock", "application/json", `{"secret":"s3cret","items":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, f.admins.texts)

	rec = f.do(http.MethodPost, "/admin/lowstock", "application/json", `{"secret":"s3cret","items":[{"kode":"NFX1","ready":1}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"ok":true}`, rec.Body.String())
	require.Len(t, f.admins.texts, 1)
	require.Contains(t, f.admins.texts[0], "NFX1")
}

func TestChatInbound(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{ChatToken: "bridge"})

	rec := f.do(http.MethodPost, "/chat/inbound", "application/json", `{"from":"62811@c.us","text":"#ping","token":"nope"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, f.commands.got)

	rec = f.do(http.MethodPost, "/chat/inbound", "application/json", `{"from":"62811@c.us","text":"#ping","token":"bridge"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"ok":true,"replied":true}`, rec.Body.String())
	require.Equal(t, []command.Inbound{{From: "62811@c.us", Text: "#ping"}}, f.commands.got)
}
