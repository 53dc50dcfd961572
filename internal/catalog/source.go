package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

// Source отдаёт сырое содержимое таблицы (CSV).
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// HTTPSource скачивает опубликованную таблицу по URL экспорта CSV.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPSource создаёт источник с таймаутом timeout.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPSource{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build sheet request: %w", err)
	}
	res, err := s.Client.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{Service: "sheet", Body: err.Error(), Kind: domain.ErrCatalogUnavailable}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &domain.UpstreamError{Service: "sheet", StatusCode: res.StatusCode, Body: "fetch sheet failed", Kind: domain.ErrCatalogUnavailable}
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, 16<<20))
	if err != nil {
		return nil, &domain.UpstreamError{Service: "sheet", StatusCode: res.StatusCode, Body: err.Error(), Kind: domain.ErrCatalogUnavailable}
	}
	return body, nil
}

// StaticSource отдаёт заранее заданный CSV.
type StaticSource []byte

func (s StaticSource) Fetch(context.Context) ([]byte, error) {
	return []byte(s), nil
}

// SampleProducts — каталог по умолчанию, когда таблица не настроена.
func SampleProducts(contact string) StaticSource {
	return StaticSource("nama,harga,kode,alias,wa\nContoh,10000,contoh,\"sample, demo\"," + contact + "\n")
}
