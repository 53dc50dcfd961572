package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shopbot/internal/catalog"
	"github.com/vladislavdragonenkov/shopbot/internal/domain"
	"github.com/vladislavdragonenkov/shopbot/internal/format"
	"github.com/vladislavdragonenkov/shopbot/internal/service/checkout"
	"github.com/vladislavdragonenkov/shopbot/internal/service/notify"
)

const (
	buyer = "628111@c.us"
	admin = "628999@c.us"
)

const productsCSV = `nama,harga,kode,kategori,alias
Netflix Premium,35000,NFX1,Streaming,nf
Spotify Family,25000,SPO3B,Streaming,spotify
Canva Pro,15000,CNV1,Design,
`

type stubCheckout struct {
	mu       sync.Mutex
	requests []checkout.BuyRequest
	buyErr   error
	status   string
	statErr  error
}

func (s *stubCheckout) Buy(_ context.Context, req checkout.BuyRequest) (checkout.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return checkout.Receipt{}, s.buyErr
}

func (s *stubCheckout) Status(_ context.Context, orderID string) (string, error) {
	return s.status + orderID, s.statErr
}

func (s *stubCheckout) last() checkout.BuyRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type routerFixture struct {
	router   *Router
	checkout *stubCheckout
	chat     *notify.Recorder
	clock    *clock
}

func newRouter(t *testing.T, opts ...Option) *routerFixture {
	t.Helper()

	cat := catalog.New(catalog.StaticSource(productsCSV),
		catalog.WithQuietMode(false),
		catalog.WithPaymentSource(catalog.StaticSource("DANA,0812\nBCA,123\n")),
	)
	require.NoError(t, cat.Refresh(context.Background(), true))

	co := &stubCheckout{status: "status of "}
	chat := notify.NewRecorder()
	admins := notify.NewAdminNotifier(chat, []string{admin}, nil)
	c := &clock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}

	opts = append([]Option{WithClock(c.Now), WithAdminContact("628555")}, opts...)
	return &routerFixture{
		router:   NewRouter(cat, co, chat, admins, opts...),
		checkout: co,
		chat:     chat,
		clock:    c,
	}
}

func (f *routerFixture) handle(from, text string) string {
	// Cooldown не должен мешать последовательным проверкам.
	f.clock.Advance(time.Minute)
	return f.router.Handle(context.Background(), Inbound{From: from, Text: text})
}

func TestRouter_SimpleCommands(t *testing.T) {
	t.Parallel()

	f := newRouter(t)

	require.Equal(t, ReplyPong, f.handle(buyer, "#ping"))
	require.Equal(t, ReplyPong, f.handle(buyer, "/PING"))
	require.Equal(t, ReplyPong, f.handle(buyer, "!ping"))

	menu := f.handle(buyer, "#menu")
	require.Contains(t, menu, "📜 *Menu Bot*")
	require.NotContains(t, menu, "#refresh")
	require.Contains(t, f.handle(admin, "#menu"), "• #refresh (admin)")

	require.Equal(t, "🗂️ *Kategori*\n• Design\n• Streaming", f.handle(buyer, "#kategori"))
}

func TestRouter_Refresh(t *testing.T) {
	t.Parallel()

	f := newRouter(t)

	require.Equal(t, ReplyAdminOnly, f.handle(buyer, "#refresh"))
	require.Equal(t, "✅ Reload sukses. Items: 3 | Promos: 0", f.handle(admin, "#refresh"))
}

func TestRouter_List(t *testing.T) {
	t.Parallel()

	f := newRouter(t, WithPerPage(2))

	first := f.handle(buyer, "#list")
	require.Contains(t, first, "NETFLIX PREMIUM")
	require.Contains(t, first, "Halaman 1/2 — *#list 2* untuk berikutnya.")

	second := f.handle(buyer, "#list 2")
	require.Contains(t, second, "CANVA PRO")
	require.NotContains(t, second, "NETFLIX PREMIUM")

	streaming := f.handle(buyer, "#list stream")
	require.Contains(t, streaming, "SPOTIFY FAMILY")
	require.NotContains(t, streaming, "CANVA PRO")
	require.Contains(t, streaming, "Halaman 1/1 — *#list stream 2*")

	require.Equal(t, "Tidak ada produk untuk kategori *game*.", f.handle(buyer, "#list game"))
}

func TestParseListArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		args     []string
		category string
		page     int
	}{
		{args: nil, category: "", page: 1},
		{args: []string{"3"}, category: "", page: 3},
		{args: []string{"streaming"}, category: "streaming", page: 1},
		{args: []string{"streaming", "premium", "2"}, category: "streaming premium", page: 2},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, "_"), func(t *testing.T) {
			category, page := parseListArgs(tt.args)
			if category != tt.category || page != tt.page {
				t.Fatalf("parseListArgs(%v) = %q, %d; want %q, %d", tt.args, category, page, tt.category, tt.page)
			}
		})
	}
}

func TestRouter_SearchAndDetail(t *testing.T) {
	t.Parallel()

	f := newRouter(t)

	require.Equal(t, ReplySearchUsage, f.handle(buyer, "#harga"))
	require.Equal(t, ReplyNotFound, f.handle(buyer, "#harga zzz"))
	require.Contains(t, f.handle(buyer, "#cari canva"), "CANVA PRO")

	require.Equal(t, ReplyCodeNotFound, f.handle(buyer, "#detail"))
	require.Equal(t, ReplyCodeNotFound, f.handle(buyer, "#detail nope"))
	require.Contains(t, f.handle(buyer, "#detail nf"), "NETFLIX PREMIUM")
}

func TestRouter_BuyViaAdmin(t *testing.T) {
	t.Parallel()

	f := newRouter(t)

	reply := f.handle(buyer, "#beli cnv1")
	require.True(t, strings.HasPrefix(reply, "Silakan order ke admin:\nhttps://wa.me/628555?text="), reply)
	require.Contains(t, reply, "Halo%20admin%2C%20saya%20ingin%20beli%20Canva%20Pro")
}

func TestRouter_BuyNow(t *testing.T) {
	t.Parallel()

	f := newRouter(t)

	require.Equal(t, ReplyBuyUsage, f.handle(buyer, "#buynow"))

	require.Empty(t, f.handle(buyer, "#buynow nfx1 2 hemat5"))
	require.Equal(t, checkout.BuyRequest{BuyerRef: buyer, Code: "nfx1", Quantity: 2, PromoCode: "HEMAT5"}, f.checkout.last())

	require.Empty(t, f.handle(buyer, "#buynow nfx1 promo"))
	require.Equal(t, checkout.BuyRequest{BuyerRef: buyer, Code: "nfx1", Quantity: 1, PromoCode: "PROMO"}, f.checkout.last())

	tooMany := fmt.Sprintf(ReplyBuyTooMany, domain.MaxOrderQuantity)
	require.Equal(t, tooMany, f.handle(buyer, "#buynow nfx1 1001"))
	require.Equal(t, tooMany, f.handle(buyer, "#buynow nfx1 4611686018427387904"))
	require.Equal(t, tooMany, f.handle(buyer, "#buynow nfx1 99999999999999999999999"))
	require.Equal(t, checkout.BuyRequest{BuyerRef: buyer, Code: "nfx1", Quantity: 1, PromoCode: "PROMO"}, f.checkout.last(), "oversized quantity never reaches checkout")

	tests := []struct {
		err  error
		want string
	}{
		{err: fmt.Errorf("%w: x", domain.ErrProductNotFound), want: ReplyBuyCodeNotFound},
		{err: domain.ErrReservationUnavailable, want: format.ReservationDenied},
		{err: fmt.Errorf("%w: down", domain.ErrGatewayUnavailable), want: ReplyGatewayDown},
		{err: fmt.Errorf("%w: overflow", domain.ErrQuantityInvalid), want: fmt.Sprintf(ReplyBuyTooMany, domain.MaxOrderQuantity)},
		{err: errors.New("boom"), want: ReplyError},
	}
	for _, tt := range tests {
		f.checkout.buyErr = tt.err
		require.Equal(t, tt.want, f.handle(buyer, "#buynow nfx1"))
	}
}

func TestRouter_Status(t *testing.T) {
	t.Parallel()

	f := newRouter(t)

	require.Equal(t, ReplyStatusUsage, f.handle(buyer, "#status"))
	require.Equal(t, "status of PBS-1", f.handle(buyer, "#status PBS-1"))

	f.checkout.statErr = domain.ErrGatewayUnavailable
	require.Equal(t, ReplyStatusNotFound, f.handle(buyer, "#status PBS-1"))
}

func TestRouter_Payment(t *testing.T) {
	t.Parallel()

	f := newRouter(t)
	require.Equal(t, "DANA 0812\nBCA 123", f.handle(buyer, "#payment"))
	require.Equal(t, "DANA 0812\nBCA 123", f.handle(buyer, "payment"))
}

func TestRouter_UnknownCommand(t *testing.T) {
	t.Parallel()

	f := newRouter(t)

	require.Equal(t, "❌ Perintah tidak ditemukan.\nMungkin maksud Anda:\n• #list", f.handle(buyer, "#lis"))

	all := f.handle(buyer, "#xyz")
	require.True(t, strings.HasPrefix(all, "❌ Perintah tidak ditemukan.\nCoba salah satu ini:\n• #menu"), all)
}

func TestRouter_FreeText(t *testing.T) {
	t.Parallel()

	f := newRouter(t, WithPerPage(1))

	require.Empty(t, f.handle(buyer, "halo kak"), "casual chat is ignored")
	require.Empty(t, f.handle(buyer, "https://netflix.com"))

	byCode := f.handle(buyer, "cnv1")
	require.Contains(t, byCode, "CANVA PRO")

	category := f.handle(buyer, "streaming")
	require.Contains(t, category, "NETFLIX PREMIUM")
	require.Contains(t, category, "Halaman 1/2 — ketik: *Streaming 2* untuk berikutnya.")

	page2 := f.handle(buyer, "streaming 2")
	require.Contains(t, page2, "SPOTIFY FAMILY")
	require.NotContains(t, page2, "NETFLIX PREMIUM")

	require.Equal(t, ReplyFreeTextNotFound, f.handle(buyer, "premium netflix"))
	require.Empty(t, f.handle(buyer, "zzz qqq"), "text without catalog tokens is ignored")
}

func TestRouter_Cooldown(t *testing.T) {
	t.Parallel()

	f := newRouter(t, WithCooldown(2*time.Second))
	ctx := context.Background()
	in := Inbound{From: buyer, Text: "#ping"}

	require.Equal(t, ReplyPong, f.router.Handle(ctx, in))
	require.Empty(t, f.router.Handle(ctx, in), "second command inside cooldown is dropped")
	require.Equal(t, ReplyPong, f.router.Handle(ctx, Inbound{From: admin, Text: "#ping"}), "cooldown is per buyer")

	f.clock.Advance(2 * time.Second)
	require.Equal(t, ReplyPong, f.router.Handle(ctx, in))
}

func TestRouter_DispatchSendsReply(t *testing.T) {
	t.Parallel()

	f := newRouter(t)

	require.Equal(t, ReplyPong, f.router.Dispatch(context.Background(), Inbound{From: buyer, Text: "#ping"}))
	sent := f.chat.SentTo(buyer)
	require.Len(t, sent, 1)
	require.Equal(t, ReplyPong, sent[0].Text)

	require.Empty(t, f.router.Dispatch(context.Background(), Inbound{From: buyer, Text: "   "}))
	require.Len(t, f.chat.SentTo(buyer), 1)
}
