package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

const defaultTTL = 5 * time.Minute

// ErrPaymentSheetNotConfigured — таблица способов оплаты не задана.
var ErrPaymentSheetNotConfigured = errors.New("payment sheet is not configured")

// Options настраивает Cache.
type Options struct {
	TTL           time.Duration
	QuietMode     bool
	PromoSource   Source
	PaymentSource Source
	Logger        *log.Entry
	Clock         func() time.Time
}

// Option изменяет Options.
type Option func(*Options)

// WithTTL задаёт время жизни снимка.
func WithTTL(ttl time.Duration) Option {
	return func(o *Options) {
		if ttl > 0 {
			o.TTL = ttl
		}
	}
}

// WithQuietMode отключает распознавание свободного текста как поиска.
func WithQuietMode(quiet bool) Option {
	return func(o *Options) { o.QuietMode = quiet }
}

// WithPromoSource подключает таблицу промо.
func WithPromoSource(src Source) Option {
	return func(o *Options) { o.PromoSource = src }
}

// WithPaymentSource подключает таблицу способов оплаты.
func WithPaymentSource(src Source) Option {
	return func(o *Options) { o.PaymentSource = src }
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithClock подменяет часы (для тестов).
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Clock = now
		}
	}
}

type snapshot struct {
	products   []domain.Product
	tokens     map[string]struct{}
	categories []string
	loadedAt   time.Time
}

// Cache хранит снимок каталога и промо с TTL.
// Обновления схлопываются singleflight; при ошибке остаётся прежний снимок.
type Cache struct {
	products Source
	promos   Source
	payments Source
	ttl      time.Duration
	quiet    bool
	logger   *log.Entry
	now      func() time.Time

	group singleflight.Group

	mu             sync.RWMutex
	snap           *snapshot
	promoByCode    map[string]domain.Promo
	promosLoadedAt time.Time
}

// New создаёт кэш поверх источника товаров.
func New(products Source, opts ...Option) *Cache {
	o := Options{
		TTL:    defaultTTL,
		Logger: log.WithField("component", "catalog"),
		Clock:  time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache{
		products:    products,
		promos:      o.PromoSource,
		payments:    o.PaymentSource,
		ttl:         o.TTL,
		quiet:       o.QuietMode,
		logger:      o.Logger,
		now:         o.Clock,
		promoByCode: map[string]domain.Promo{},
	}
}

// Refresh обновляет товары и промо параллельно.
func (c *Cache) Refresh(ctx context.Context, force bool) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.RefreshProducts(gctx, force) })
	g.Go(func() error { return c.RefreshPromos(gctx, force) })
	return g.Wait()
}

// Ensure обновляет просроченный снимок. Ошибка возвращается, только если снимка ещё нет.
func (c *Cache) Ensure(ctx context.Context) error {
	err := c.Refresh(ctx, false)
	if err == nil {
		return nil
	}
	if c.Ready() {
		c.logger.WithError(err).Warn("catalog refresh failed, serving stale snapshot")
		return nil
	}
	return err
}

// RefreshProducts перечитывает таблицу товаров, если снимок устарел или force.
func (c *Cache) RefreshProducts(ctx context.Context, force bool) error {
	if !force && c.fresh(c.productsLoadedAt()) {
		return nil
	}
	_, err, _ := c.group.Do("products", func() (interface{}, error) {
		raw, err := c.products.Fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch products: %w", err)
		}
		products, err := ParseProducts(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
		}
		snap := buildSnapshot(products, c.now())

		c.mu.Lock()
		c.snap = snap
		c.mu.Unlock()

		c.logger.WithFields(log.Fields{
			"products":   len(products),
			"categories": len(snap.categories),
		}).Info("catalog refreshed")
		return nil, nil
	})
	return err
}

// RefreshPromos перечитывает таблицу промо. Без источника промо пусто.
func (c *Cache) RefreshPromos(ctx context.Context, force bool) error {
	if c.promos == nil {
		return nil
	}
	c.mu.RLock()
	loadedAt := c.promosLoadedAt
	c.mu.RUnlock()
	if !force && c.fresh(loadedAt) {
		return nil
	}

	_, err, _ := c.group.Do("promos", func() (interface{}, error) {
		raw, err := c.promos.Fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch promos: %w", err)
		}
		promos, err := ParsePromos(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
		}
		byCode := make(map[string]domain.Promo, len(promos))
		for _, p := range promos {
			byCode[p.Code] = p
		}

		c.mu.Lock()
		c.promoByCode = byCode
		c.promosLoadedAt = c.now()
		c.mu.Unlock()

		c.logger.WithField("promos", len(promos)).Info("promos refreshed")
		return nil, nil
	})
	return err
}

func (c *Cache) fresh(loadedAt time.Time) bool {
	return !loadedAt.IsZero() && c.now().Sub(loadedAt) < c.ttl
}

func (c *Cache) productsLoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return time.Time{}
	}
	return c.snap.loadedAt
}

func (c *Cache) current() *snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return &snapshot{}
	}
	return c.snap
}

func buildSnapshot(products []domain.Product, now time.Time) *snapshot {
	tokens := make(map[string]struct{})
	seen := make(map[string]struct{})
	var categories []string

	for _, p := range products {
		if code := Normalize(p.Code); code != "" {
			tokens[code] = struct{}{}
		}
		addWords(tokens, p.Name)
		for _, a := range p.Aliases {
			addWords(tokens, a)
		}
		addWords(tokens, p.Category)
		if p.Category != "" {
			if _, ok := seen[p.Category]; !ok {
				seen[p.Category] = struct{}{}
				categories = append(categories, p.Category)
			}
		}
	}
	sort.Strings(categories)

	return &snapshot{products: products, tokens: tokens, categories: categories, loadedAt: now}
}

func addWords(tokens map[string]struct{}, s string) {
	for _, w := range nonAlnumRe.Split(Normalize(s), -1) {
		if len(w) >= 3 {
			tokens[w] = struct{}{}
		}
	}
}

// Ready сообщает, что снимок товаров загружен хотя бы раз.
func (c *Cache) Ready() bool {
	return !c.productsLoadedAt().IsZero()
}

// LoadedAt возвращает время последней успешной загрузки товаров.
func (c *Cache) LoadedAt() time.Time {
	return c.productsLoadedAt()
}

// All возвращает копию списка товаров.
func (c *Cache) All() []domain.Product {
	return append([]domain.Product(nil), c.current().products...)
}

// ByCode ищет товар по коду или алиасу без учёта регистра и разделителей.
func (c *Cache) ByCode(code string) (domain.Product, bool) {
	want := NormalizeCode(code)
	if want == "" {
		return domain.Product{}, false
	}
	for _, p := range c.current().products {
		if NormalizeCode(p.Code) == want {
			return p, true
		}
		for _, a := range p.Aliases {
			if NormalizeCode(a) == want {
				return p, true
			}
		}
	}
	return domain.Product{}, false
}

// Search ищет подстроку в названии, описании, коде, категории и алиасах.
func (c *Cache) Search(query string) []domain.Product {
	q := Normalize(query)
	if q == "" {
		return nil
	}
	var out []domain.Product
	for _, p := range c.current().products {
		fields := []string{p.Name, p.Description, p.Code, p.Category, strings.Join(p.Aliases, ", ")}
		for _, f := range fields {
			if strings.Contains(Normalize(f), q) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// Categories возвращает уникальные категории по алфавиту.
func (c *Cache) Categories() []string {
	return append([]string(nil), c.current().categories...)
}

// ByCategory возвращает товары категории; пустая категория — все товары.
func (c *Cache) ByCategory(category string) []domain.Product {
	want := Normalize(category)
	if want == "" {
		return c.All()
	}
	var out []domain.Product
	for _, p := range c.current().products {
		if Normalize(p.Category) == want {
			out = append(out, p)
		}
	}
	return out
}

// Promo ищет промо по коду без учёта регистра. Реализует domain.PromoSource.
func (c *Cache) Promo(code string) (domain.Promo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.promoByCode[strings.ToUpper(strings.TrimSpace(code))]
	return p, ok
}

// PromoCount возвращает число загруженных промо.
func (c *Cache) PromoCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.promoByCode)
}

// PromosConfigured сообщает, подключена ли таблица промо.
func (c *Cache) PromosConfigured() bool {
	return c.promos != nil
}

// Tokens возвращает словарь токенов товаров (код, слова названия и алиасов от 3 символов).
func (c *Cache) Tokens() map[string]struct{} {
	src := c.current().tokens
	out := make(map[string]struct{}, len(src))
	for k := range src {
		out[k] = struct{}{}
	}
	return out
}

// PaymentLines читает таблицу способов оплаты. Не кэшируется.
func (c *Cache) PaymentLines(ctx context.Context) ([]string, error) {
	if c.payments == nil {
		return nil, ErrPaymentSheetNotConfigured
	}
	raw, err := c.payments.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch payment sheet: %w", err)
	}
	return ParsePaymentLines(raw)
}

var _ domain.PromoSource = (*Cache)(nil)
