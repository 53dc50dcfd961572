package format

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

const cardFooter = "╰┈┈┈┈┈┈┈┈"

// CardHeader — шапка списка товаров с подсказкой по #buynow.
func CardHeader(adminContact string) string {
	if adminContact == "" {
		adminContact = "-"
	}
	return strings.Join([]string{
		"╭────〔 BOT AUTO ORDER 〕─",
		"┊・Untuk membeli ketik perintah berikut",
		"┊・#buynow Kode(spasi)JumlahAkun",
		"┊・Ex: #buynow cc1b 1",
		"┊・Contact Admin: " + adminContact,
		cardFooter,
	}, "\n")
}

// ProductCard — карточка одного товара.
func ProductCard(p domain.Product) string {
	price := "*" + IDR(p.Price) + "*"
	if p.OldPrice > 0 {
		price = fmt.Sprintf("~%s~ → %s", IDR(p.OldPrice), price)
	}
	desc := "-"
	if p.Description != "" {
		desc = strings.ReplaceAll(p.Description, "|", ", ")
	}
	code := p.Code
	if code == "" {
		code = "-"
	}
	aliases := ""
	if len(p.Aliases) > 0 {
		aliases = "\n┊・Alias: " + strings.Join(p.Aliases, ", ")
	}

	return strings.Join([]string{
		"*╭────〔 " + strings.ToUpper(p.Name) + " 〕─*",
		"┊・Harga: " + price,
		"┊・Stok Tersedia: " + orDash(p.Stock),
		"┊・Stok Terjual: " + orDash(p.Sold),
		"┊・Total Stok: " + totalStock(p),
		"┊・Kode: " + code,
		"┊・Desk: " + desc + aliases,
		cardFooter,
	}, "\n")
}

// ProductList — шапка и карточки через пустую строку.
func ProductList(adminContact string, products []domain.Product) string {
	parts := make([]string, 0, len(products)+1)
	parts = append(parts, CardHeader(adminContact))
	for _, p := range products {
		parts = append(parts, ProductCard(p))
	}
	return strings.Join(parts, "\n\n")
}

func totalStock(p domain.Product) string {
	if p.Total != "" {
		return p.Total
	}
	stock, errStock := strconv.Atoi(strings.TrimSpace(p.Stock))
	sold, errSold := strconv.Atoi(strings.TrimSpace(p.Sold))
	if errStock != nil || errSold != nil {
		return "-"
	}
	return strconv.Itoa(stock + sold)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// Page — страница списка.
type Page struct {
	Items []domain.Product
	Page  int
	Total int
}

// Paginate режет список на страницы по perPage; номер страницы зажимается в [1, Total].
func Paginate(items []domain.Product, page, perPage int) Page {
	if perPage <= 0 {
		perPage = 8
	}
	total := (len(items) + perPage - 1) / perPage
	if total == 0 {
		return Page{Page: 1, Total: 0}
	}
	if page < 1 {
		page = 1
	}
	if page > total {
		page = total
	}
	start := (page - 1) * perPage
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	return Page{Items: items[start:end], Page: page, Total: total}
}
