package catalog

import (
	"regexp"
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`stok stock harga beli order pesan list kategori produk product
		minta tolong dong kak bang min gan bro sist sista admin
		gaada nggak tidak iya halo hai terimakasih makasih makasi assalamualaikum salam p
		test coba udah sudah lagi banget lol wkwk`) {
		stopwords[w] = struct{}{}
	}
}

var (
	casualRe   = regexp.MustCompile(`(?i)^(iya|ok|thanks|ok\s|hi\s|halo|hei|yes|no|yep|nope|lol|wkwk)`)
	urlRe      = regexp.MustCompile(`(?i)https?://`)
	queryJunk  = regexp.MustCompile(`[^\p{L}\p{N}\s\-_.]`)
	digitRe    = regexp.MustCompile(`\d`)
	tokenSplit = regexp.MustCompile(`[^a-z0-9]+`)
)

func tokenize(s string) []string {
	var out []string
	for _, t := range tokenSplit.Split(Normalize(s), -1) {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// LooksLikeQuery решает, считать ли свободный текст поиском товара.
// В тихом режиме всегда false; нужен хотя бы один токен от 3 символов из словаря каталога.
func (c *Cache) LooksLikeQuery(text string) bool {
	if c.quiet {
		return false
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.Contains(trimmed, "?") || urlRe.MatchString(trimmed) {
		return false
	}
	if len([]rune(trimmed)) < 3 {
		return false
	}
	if len(strings.Fields(trimmed)) <= 2 && len([]rune(trimmed)) <= 15 && casualRe.MatchString(trimmed) {
		return false
	}

	var tokens []string
	for _, t := range tokenize(trimmed) {
		if _, stop := stopwords[t]; !stop {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) == 0 {
		return false
	}

	known := c.current().tokens
	signal := false
	for _, t := range tokens {
		if _, ok := known[t]; ok && len(t) >= 3 {
			signal = true
			break
		}
	}
	if !signal {
		return false
	}
	if len(tokens) >= 8 && !digitRe.MatchString(trimmed) {
		return false
	}
	return true
}

// CleanQuery убирает из текста знаки и стоп-слова. Если ничего не осталось,
// возвращает нормализованный текст целиком.
func CleanQuery(text string) string {
	normalized := Normalize(text)
	x := queryJunk.ReplaceAllString(strings.TrimPrefix(normalized, "#"), " ")

	var parts []string
	for _, w := range strings.FieldsFunc(x, unicode.IsSpace) {
		if _, stop := stopwords[w]; !stop {
			parts = append(parts, w)
		}
	}
	if len(parts) == 0 {
		return strings.TrimSpace(normalized)
	}
	return strings.Join(parts, " ")
}
