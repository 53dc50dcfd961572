package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vladislavdragonenkov/shopbot/internal/format"
	"github.com/vladislavdragonenkov/shopbot/internal/version"
)

// adminClient вызывает админские ручки сервиса.
type adminClient struct {
	baseURL string
	secret  string
	http    *http.Client
}

func newAdminClient(opts *globalOptions) *adminClient {
	return &adminClient{
		baseURL: strings.TrimRight(opts.server, "/"),
		secret:  opts.secret,
		http:    &http.Client{Timeout: opts.timeout},
	}
}

type reloadRequest struct {
	Secret string `json:"secret"`
	What   string `json:"what"`
	Note   string `json:"note,omitempty"`
}

type reloadResponse struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Products *int   `json:"products,omitempty"`
	Promos   *int   `json:"promos,omitempty"`
}

type lowStockRequest struct {
	Secret string                `json:"secret"`
	Items  []format.LowStockItem `json:"items"`
}

type okResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (c *adminClient) Reload(ctx context.Context, what, note string) (reloadResponse, error) {
	var out reloadResponse
	err := c.postJSON(ctx, "/admin/reload", reloadRequest{Secret: c.secret, What: what, Note: note}, &out)
	return out, err
}

func (c *adminClient) LowStock(ctx context.Context, items []format.LowStockItem) error {
	var out okResponse
	if err := c.postJSON(ctx, "/admin/lowstock", lowStockRequest{Secret: c.secret, Items: items}, &out); err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("lowstock rejected: %s", out.Error)
	}
	return nil
}

// Health возвращает тело /healthz как есть и код ответа.
func (c *adminClient) Health(ctx context.Context) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	res, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	return res.StatusCode, body, err
}

func (c *adminClient) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if res.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s: unauthorized, check --secret", path)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("%s: http %d: %s", path, res.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", path, err)
	}
	return nil
}
