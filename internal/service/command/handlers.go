package command

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopbot/internal/catalog"
	"github.com/vladislavdragonenkov/shopbot/internal/domain"
	"github.com/vladislavdragonenkov/shopbot/internal/format"
	"github.com/vladislavdragonenkov/shopbot/internal/service/checkout"
)

// Ответы команд.
const (
	ReplyPong              = "Pong ✅ Bot aktif."
	ReplyAdminOnly         = "❌ Hanya admin."
	ReplyNoCategories      = "Belum ada kategori."
	ReplyNoProducts        = "Belum ada produk."
	ReplySearchUsage       = "Format: *#harga <kata kunci>*"
	ReplyNotFound          = "❌ Tidak ditemukan."
	ReplyFreeTextNotFound  = "❌ Tidak ditemukan. Coba ketik nama produk/kode yang lebih spesifik."
	ReplyCodeNotFound      = "Kode tidak ditemukan."
	ReplyBuyCodeNotFound   = "Kode tidak ditemukan. Contoh: *#buynow spo3b 1*"
	ReplyBuyUsage          = "Format: *#buynow <kode> <jumlah> [PROMO]*"
	ReplyBuyTooMany        = "Jumlah terlalu besar. Maksimal %d per order."
	ReplyStatusUsage       = "Format: *#status <OrderID>*"
	ReplyStatusNotFound    = "❌ OrderID tidak ditemukan atau belum ada transaksi."
	ReplyGatewayDown       = "⚠️ Pembayaran sedang tidak tersedia. Coba lagi nanti."
	ReplyPaymentNotSet     = "SHEET_URL_PAYMENT belum dikonfigurasi di .env"
	ReplyPaymentEmpty      = "Daftar metode pembayaran kosong."
	ReplyPaymentLoadFailed = "Gagal memuat data payment. Coba lagi atau cek URL CSV."
	ReplyError             = "⚠️ Terjadi error. Coba lagi nanti."

	searchLimit = 6
)

// Commands — известные команды для подсказок.
var Commands = []string{"#menu", "#ping", "#kategori", "#list", "#harga", "#detail", "#beli", "#buynow", "#status", "#refresh", "#payment"}

type handlerFunc func(ctx context.Context, logger *log.Entry, in Inbound, args []string) string

func (r *Router) handlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"#menu":     r.menu,
		"#ping":     func(context.Context, *log.Entry, Inbound, []string) string { return ReplyPong },
		"#refresh":  r.refresh,
		"#kategori": r.categories,
		"#list":     r.list,
		"#harga":    r.search,
		"#cari":     r.search,
		"#detail":   r.detail,
		"#beli":     r.buyViaAdmin,
		"#buynow":   r.buyNow,
		"#status":   r.status,
		"#payment":  r.payment,
	}
}

func (r *Router) menu(_ context.Context, _ *log.Entry, in Inbound, _ []string) string {
	lines := []string{
		"📜 *Menu Bot*",
		"• #ping",
		"• #kategori",
		"• #list [kategori] [hal]",
		"• #harga <keyword>",
		"• #detail <kode>",
		"• #beli <kode>",
		"• #buynow <kode> <jumlah> [PROMO]",
		"• #status <OrderID>",
		"• #payment",
	}
	if r.isAdmin(in.From) {
		lines = append(lines, "• #refresh (admin)")
	}
	return strings.Join(lines, "\n")
}

func (r *Router) refresh(ctx context.Context, logger *log.Entry, in Inbound, _ []string) string {
	if !r.isAdmin(in.From) {
		return ReplyAdminOnly
	}
	if err := r.catalog.Refresh(ctx, true); err != nil {
		logger.WithError(err).Error("admin refresh failed")
		return ReplyError
	}
	return fmt.Sprintf("✅ Reload sukses. Items: %d | Promos: %d", len(r.catalog.All()), r.catalog.PromoCount())
}

func (r *Router) categories(ctx context.Context, logger *log.Entry, _ Inbound, _ []string) string {
	if !r.ensure(ctx, logger) {
		return ReplyError
	}
	cats := r.catalog.Categories()
	if len(cats) == 0 {
		return ReplyNoCategories
	}
	return "🗂️ *Kategori*\n• " + strings.Join(cats, "\n• ")
}

func (r *Router) list(ctx context.Context, logger *log.Entry, _ Inbound, args []string) string {
	if !r.ensure(ctx, logger) {
		return ReplyError
	}
	category, page := parseListArgs(args)

	products := r.catalog.All()
	if category != "" {
		products = filterCategory(products, category)
	}
	p := format.Paginate(products, page, r.perPage)
	if len(p.Items) == 0 {
		if category != "" {
			return fmt.Sprintf("Tidak ada produk untuk kategori *%s*.", category)
		}
		return ReplyNoProducts
	}

	next := strconv.Itoa(p.Page + 1)
	if category != "" {
		next = category + " " + next
	}
	return format.ProductList(r.adminContact, p.Items) +
		fmt.Sprintf("\n\nHalaman %d/%d — *#list %s* untuk berikutnya.", p.Page, p.Total, next)
}

// parseListArgs: "#list 2", "#list streaming", "#list streaming premium 3".
func parseListArgs(args []string) (string, int) {
	if len(args) == 0 {
		return "", 1
	}
	last := args[len(args)-1]
	if n, err := strconv.Atoi(last); err == nil {
		return strings.Join(args[:len(args)-1], " "), n
	}
	return strings.Join(args, " "), 1
}

func filterCategory(products []domain.Product, category string) []domain.Product {
	want := catalog.Normalize(category)
	var out []domain.Product
	for _, p := range products {
		if strings.Contains(catalog.Normalize(p.Category), want) {
			out = append(out, p)
		}
	}
	return out
}

func (r *Router) search(ctx context.Context, logger *log.Entry, _ Inbound, args []string) string {
	query := strings.Join(args, " ")
	if query == "" {
		return ReplySearchUsage
	}
	if !r.ensure(ctx, logger) {
		return ReplyError
	}
	found := r.catalog.Search(query)
	if len(found) == 0 {
		return ReplyNotFound
	}
	if len(found) > searchLimit {
		found = found[:searchLimit]
	}
	return format.ProductList(r.adminContact, found)
}

func (r *Router) detail(ctx context.Context, logger *log.Entry, _ Inbound, args []string) string {
	if len(args) == 0 {
		return ReplyCodeNotFound
	}
	if !r.ensure(ctx, logger) {
		return ReplyError
	}
	p, ok := r.catalog.ByCode(args[0])
	if !ok {
		return ReplyCodeNotFound
	}
	return format.ProductList(r.adminContact, []domain.Product{p})
}

func (r *Router) buyViaAdmin(ctx context.Context, logger *log.Entry, _ Inbound, args []string) string {
	if len(args) == 0 {
		return ReplyCodeNotFound
	}
	if !r.ensure(ctx, logger) {
		return ReplyError
	}
	p, ok := r.catalog.ByCode(args[0])
	if !ok {
		return ReplyCodeNotFound
	}
	contact := p.ContactRef
	if contact == "" {
		contact = r.adminContact
	}
	text := fmt.Sprintf("Halo admin, saya ingin beli %s (kode: %s).", p.Name, p.Code)
	link := fmt.Sprintf("https://wa.me/%s?text=%s", checkout.BuyerPhone(contact), strings.ReplaceAll(url.QueryEscape(text), "+", "%20"))
	return "Silakan order ke admin:\n" + link
}

var digitsRe = regexp.MustCompile(`^\d+$`)

// buyNow: "#buynow <kode> [jumlah] [PROMO]". Нечисловой второй аргумент считается промокодом.
func (r *Router) buyNow(ctx context.Context, logger *log.Entry, in Inbound, args []string) string {
	if len(args) == 0 {
		return ReplyBuyUsage
	}
	req := checkout.BuyRequest{BuyerRef: in.From, Code: args[0], Quantity: 1}
	rest := args[1:]
	if len(rest) > 0 && digitsRe.MatchString(rest[0]) {
		n, err := strconv.Atoi(rest[0])
		if err != nil || n > domain.MaxOrderQuantity {
			return fmt.Sprintf(ReplyBuyTooMany, domain.MaxOrderQuantity)
		}
		if n > 0 {
			req.Quantity = n
		}
		rest = rest[1:]
	}
	if len(rest) > 0 {
		req.PromoCode = strings.ToUpper(rest[0])
	}

	_, err := r.checkout.Buy(ctx, req)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrProductNotFound):
		return ReplyBuyCodeNotFound
	case errors.Is(err, domain.ErrReservationUnavailable):
		return format.ReservationDenied
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return ReplyGatewayDown
	case errors.Is(err, domain.ErrQuantityInvalid):
		return fmt.Sprintf(ReplyBuyTooMany, domain.MaxOrderQuantity)
	default:
		logger.WithError(err).Error("buy failed")
		return ReplyError
	}
}

func (r *Router) status(ctx context.Context, logger *log.Entry, _ Inbound, args []string) string {
	if len(args) == 0 {
		return ReplyStatusUsage
	}
	text, err := r.checkout.Status(ctx, args[0])
	if err != nil {
		logger.WithError(err).WithField("order_id", args[0]).Info("status lookup failed")
		return ReplyStatusNotFound
	}
	return text
}

func (r *Router) payment(ctx context.Context, logger *log.Entry, _ Inbound, _ []string) string {
	lines, err := r.catalog.PaymentLines(ctx)
	switch {
	case errors.Is(err, catalog.ErrPaymentSheetNotConfigured):
		return ReplyPaymentNotSet
	case err != nil:
		logger.WithError(err).Warn("load payment lines failed")
		return ReplyPaymentLoadFailed
	case len(lines) == 0:
		return ReplyPaymentEmpty
	}
	return strings.Join(lines, "\n")
}

// freeText отвечает на текст, похожий на поиск: код, категория или поиск по подстроке.
func (r *Router) freeText(ctx context.Context, logger *log.Entry, text string) string {
	if !r.ensure(ctx, logger) {
		return ReplyError
	}
	query, page := splitTrailingPage(catalog.CleanQuery(text))
	if query == "" {
		return ReplyFreeTextNotFound
	}

	if p, ok := r.catalog.ByCode(query); ok {
		return format.ProductList(r.adminContact, []domain.Product{p})
	}

	for _, cat := range r.catalog.Categories() {
		if strings.Contains(catalog.Normalize(cat), query) {
			pg := format.Paginate(filterCategory(r.catalog.All(), cat), page, r.perPage)
			if len(pg.Items) == 0 {
				return fmt.Sprintf("Tidak ada produk untuk kategori *%s*.", cat)
			}
			return format.ProductList(r.adminContact, pg.Items) +
				fmt.Sprintf("\n\nHalaman %d/%d — ketik: *%s %d* untuk berikutnya.", pg.Page, pg.Total, cat, pg.Page+1)
		}
	}

	found := r.catalog.Search(query)
	if len(found) == 0 {
		return ReplyFreeTextNotFound
	}
	pg := format.Paginate(found, page, r.perPage)
	out := format.ProductList(r.adminContact, pg.Items)
	if pg.Total > 1 {
		out += fmt.Sprintf("\n\nHalaman %d/%d — ketik: *%s %d* untuk berikutnya.", pg.Page, pg.Total, query, pg.Page+1)
	}
	return out
}

var trailingPageRe = regexp.MustCompile(`\s+(\d{1,3})$`)

func splitTrailingPage(q string) (string, int) {
	m := trailingPageRe.FindStringSubmatch(q)
	if m == nil {
		return q, 1
	}
	page, _ := strconv.Atoi(m[1])
	return strings.TrimSpace(strings.TrimSuffix(q, m[0])), page
}

func (r *Router) ensure(ctx context.Context, logger *log.Entry) bool {
	if err := r.catalog.Ensure(ctx); err != nil {
		logger.WithError(err).Error("catalog unavailable")
		return false
	}
	return true
}

// unknownCommand подсказывает команды, содержащие введённое имя.
func unknownCommand(name string) string {
	needle := strings.TrimLeft(name, "#")
	var suggest []string
	if needle != "" {
		for _, c := range Commands {
			if strings.Contains(c, needle) {
				suggest = append(suggest, c)
				if len(suggest) == 4 {
					break
				}
			}
		}
	}
	if len(suggest) > 0 {
		return "❌ Perintah tidak ditemukan.\nMungkin maksud Anda:\n• " + strings.Join(suggest, "\n• ")
	}
	return "❌ Perintah tidak ditemukan.\nCoba salah satu ini:\n• " + strings.Join(Commands, "\n• ")
}
