package catalog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

// Заголовки колонок и их синонимы.
var productColumns = map[string][]string{
	"name":        {"nama", "name"},
	"price":       {"harga", "price"},
	"old_price":   {"harga_lama", "old_price"},
	"code":        {"kode", "code"},
	"alias":       {"alias", "aliases"},
	"category":    {"kategori", "category"},
	"description": {"deskripsi", "description"},
	"stock":       {"stok", "stock"},
	"sold":        {"terjual", "sold"},
	"total":       {"total"},
	"icon":        {"ikon", "icon"},
	"contact":     {"wa", "contact"},
}

var promoColumns = map[string][]string{
	"code":      {"code", "kode"},
	"label":     {"label", "nama", "name"},
	"type":      {"type", "tipe", "jenis"},
	"value":     {"value", "nilai"},
	"max":       {"max", "max_discount", "maks"},
	"min_total": {"min_total", "min_belanja"},
	"min_qty":   {"min_qty"},
	"products":  {"products", "produk", "kode_produk"},
	"start":     {"start", "mulai", "valid_from"},
	"end":       {"end", "selesai", "valid_until"},
	"active":    {"active", "aktif"},
}

var promoTimeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02", "02/01/2006"}

var utf8BOM = []byte("\ufeff")

// Даты в таблице промо указываются по WIB.
var sheetZone = time.FixedZone("WIB", 7*60*60)

type table struct {
	index map[string]int
	rows  [][]string
}

func readTable(raw []byte, columns map[string][]string) (table, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, utf8BOM)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return table{index: map[string]int{}}, nil
	}
	if err != nil {
		return table{}, fmt.Errorf("read csv header: %w", err)
	}

	position := make(map[string]int, len(header))
	for i, h := range header {
		position[strings.ToLower(strings.TrimSpace(h))] = i
	}
	index := make(map[string]int, len(columns))
	for field, names := range columns {
		for _, n := range names {
			if i, ok := position[n]; ok {
				index[field] = i
				break
			}
		}
	}

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return table{}, fmt.Errorf("read csv row: %w", err)
		}
		if isBlank(rec) {
			continue
		}
		rows = append(rows, rec)
	}
	return table{index: index, rows: rows}, nil
}

func (t table) get(row []string, field string) string {
	i, ok := t.index[field]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ParseProducts разбирает CSV товаров. Строки без названия или кода отбрасываются.
func ParseProducts(raw []byte) ([]domain.Product, error) {
	t, err := readTable(raw, productColumns)
	if err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(t.rows))
	for _, row := range t.rows {
		p := domain.Product{
			Name:        t.get(row, "name"),
			Code:        t.get(row, "code"),
			Aliases:     SplitAliases(t.get(row, "alias")),
			Category:    t.get(row, "category"),
			Description: t.get(row, "description"),
			Price:       parseRupiah(t.get(row, "price")),
			OldPrice:    parseRupiah(t.get(row, "old_price")),
			Stock:       t.get(row, "stock"),
			Sold:        t.get(row, "sold"),
			Total:       t.get(row, "total"),
			IconURL:     t.get(row, "icon"),
			ContactRef:  t.get(row, "contact"),
		}
		if p.Name == "" || p.Code == "" {
			continue
		}
		products = append(products, p)
	}
	return products, nil
}

// ParsePromos разбирает CSV промо. Строки без кода или с нечитаемым значением отбрасываются.
func ParsePromos(raw []byte) ([]domain.Promo, error) {
	t, err := readTable(raw, promoColumns)
	if err != nil {
		return nil, err
	}

	promos := make([]domain.Promo, 0, len(t.rows))
	for _, row := range t.rows {
		code := strings.ToUpper(t.get(row, "code"))
		if code == "" {
			continue
		}
		value, err := decimal.NewFromString(strings.TrimSuffix(strings.ReplaceAll(t.get(row, "value"), ",", "."), "%"))
		if err != nil {
			continue
		}
		minQty, _ := strconv.Atoi(t.get(row, "min_qty"))

		promos = append(promos, domain.Promo{
			Code:        code,
			Label:       t.get(row, "label"),
			Kind:        parsePromoKind(t.get(row, "type"), t.get(row, "value")),
			Value:       value,
			MaxDiscount: parseRupiah(t.get(row, "max")),
			MinTotal:    parseRupiah(t.get(row, "min_total")),
			MinQty:      minQty,
			Products:    SplitAliases(t.get(row, "products")),
			ValidFrom:   parseSheetTime(t.get(row, "start")),
			ValidUntil:  parseSheetTime(t.get(row, "end")),
			Active:      parseActive(t.get(row, "active")),
		})
	}
	return promos, nil
}

// ParsePaymentLines превращает таблицу способов оплаты в строки сообщения:
// непустые ячейки каждой строки через пробел.
func ParsePaymentLines(raw []byte) ([]string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, utf8BOM)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read payment csv: %w", err)
	}
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		var cells []string
		for _, c := range rec {
			if c = strings.TrimSpace(c); c != "" {
				cells = append(cells, c)
			}
		}
		if len(cells) > 0 {
			lines = append(lines, strings.Join(cells, " "))
		}
	}
	return lines, nil
}

// parseRupiah читает "10000", "Rp 10.000", "10,000" как целые рупии.
func parseRupiah(s string) int64 {
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	n, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parsePromoKind(kind, value string) domain.PromoKind {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "percent", "persen", "pct", "%":
		return domain.PromoKindPercent
	case "fixed", "nominal", "flat", "":
		if kind == "" && strings.HasSuffix(strings.TrimSpace(value), "%") {
			return domain.PromoKindPercent
		}
		return domain.PromoKindFixed
	default:
		return domain.PromoKind(strings.ToLower(kind))
	}
}

func parseSheetTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range promoTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, sheetZone); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseActive(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "false", "0", "no", "n", "tidak", "off":
		return false
	default:
		return true
	}
}
