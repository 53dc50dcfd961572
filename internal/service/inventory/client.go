// Package inventory — клиент складского скрипта (Google Apps Script) и заглушка для тестов.
package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
	"github.com/vladislavdragonenkov/shopbot/internal/version"
)

const (
	serviceName         = "inventory"
	defaultTimeout      = 20 * time.Second
	defaultReleaseTries = 3
	maxErrorBody        = 512
)

// Config — параметры клиента склада.
type Config struct {
	URL     string
	Secret  string
	Timeout time.Duration
	// ReleaseRetries — число повторов release при сетевых ошибках и 5xx.
	ReleaseRetries uint64
}

// Client вызывает складской скрипт: один POST-эндпоинт, действие в поле action.
//
// Скрипт обязан сам снимать резерв по таймауту, если release не пришёл:
// процесс бота не хранит заказы между рестартами.
type Client struct {
	url            string
	secret         string
	http           *http.Client
	releaseRetries uint64
	logger         *log.Entry
}

// NewClient создаёт клиента. Пустой URL допустим: резерв будет отклоняться.
func NewClient(cfg Config, logger *log.Entry) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ReleaseRetries == 0 {
		cfg.ReleaseRetries = defaultReleaseTries
	}
	if logger == nil {
		logger = log.WithField("component", "inventory-client")
	}
	return &Client{
		url:            strings.TrimSpace(cfg.URL),
		secret:         cfg.Secret,
		http:           &http.Client{Timeout: cfg.Timeout},
		releaseRetries: cfg.ReleaseRetries,
		logger:         logger,
	}
}

// Configured сообщает, задан ли адрес скрипта.
func (c *Client) Configured() bool {
	return c.url != ""
}

type request struct {
	Secret   string `json:"secret"`
	Action   string `json:"action"`
	Code     string `json:"kode,omitempty"`
	Qty      int    `json:"qty,omitempty"`
	OrderID  string `json:"order_id"`
	BuyerRef string `json:"buyer_jid,omitempty"`
	Total    int64  `json:"total,omitempty"`
}

type response struct {
	OK       bool                `json:"ok"`
	Message  string              `json:"msg"`
	Items    []map[string]string `json:"items"`
	AfterMsg string              `json:"after_msg"`
}

// Reserve резервирует qty единиц товара под заказ.
func (c *Client) Reserve(ctx context.Context, req domain.ReserveRequest) (domain.InventoryAck, error) {
	if !c.Configured() {
		return domain.InventoryAck{}, domain.ErrInventoryNotConfigured
	}
	resp, err := c.call(ctx, request{
		Action:   "reserve",
		Code:     req.ProductCode,
		Qty:      req.Quantity,
		OrderID:  req.OrderID,
		BuyerRef: req.BuyerRef,
	})
	if err != nil {
		return domain.InventoryAck{}, err
	}
	return domain.InventoryAck{OK: resp.OK, Message: resp.Message}, nil
}

// Finalize списывает резерв и возвращает выданные позиции.
func (c *Client) Finalize(ctx context.Context, orderID string, total int64) (domain.Fulfillment, error) {
	if !c.Configured() {
		return domain.Fulfillment{}, domain.ErrInventoryNotConfigured
	}
	resp, err := c.call(ctx, request{Action: "finalize", OrderID: orderID, Total: total})
	if err != nil {
		return domain.Fulfillment{}, err
	}

	items := make([]domain.FulfillmentItem, 0, len(resp.Items))
	for _, fields := range resp.Items {
		if len(fields) == 0 {
			continue
		}
		items = append(items, domain.FulfillmentItem{Fields: fields})
	}
	return domain.Fulfillment{
		OK:           resp.OK,
		Items:        items,
		AfterMessage: strings.TrimSpace(resp.AfterMsg),
		Message:      resp.Message,
	}, nil
}

// Release снимает резерв. Операция идемпотентна на стороне скрипта, поэтому
// сетевые ошибки и 5xx повторяются с экспоненциальной задержкой.
func (c *Client) Release(ctx context.Context, orderID string) (domain.InventoryAck, error) {
	if !c.Configured() {
		return domain.InventoryAck{}, domain.ErrInventoryNotConfigured
	}

	var ack domain.InventoryAck
	op := func() error {
		resp, err := c.call(ctx, request{Action: "release", OrderID: orderID})
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		ack = domain.InventoryAck{OK: resp.OK, Message: resp.Message}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	notify := func(err error, next time.Duration) {
		c.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"next_in":  next.String(),
		}).Warn("inventory release failed, retrying")
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(policy, c.releaseRetries), ctx), notify)
	if err != nil {
		return domain.InventoryAck{}, err
	}
	return ack, nil
}

func (c *Client) call(ctx context.Context, body request) (response, error) {
	body.Secret = c.secret
	payload, err := json.Marshal(body)
	if err != nil {
		return response{}, fmt.Errorf("marshal inventory request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return response{}, fmt.Errorf("build inventory request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	res, err := c.http.Do(req)
	if err != nil {
		return response{}, &domain.UpstreamError{Service: serviceName, Body: err.Error(), Kind: domain.ErrInventoryUnavailable}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return response{}, &domain.UpstreamError{Service: serviceName, StatusCode: res.StatusCode, Body: err.Error(), Kind: domain.ErrInventoryUnavailable}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return response{}, &domain.UpstreamError{Service: serviceName, StatusCode: res.StatusCode, Body: truncate(raw), Kind: domain.ErrInventoryUnavailable}
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return response{}, &domain.UpstreamError{Service: serviceName, StatusCode: res.StatusCode, Body: "invalid json: " + truncate(raw), Kind: domain.ErrInventoryUnavailable}
	}

	c.logger.WithFields(log.Fields{
		"action":   body.Action,
		"order_id": body.OrderID,
		"ok":       out.OK,
	}).Debug("inventory call completed")
	return out, nil
}

// retryable — транспортные ошибки и 5xx; ответы 4xx и битый JSON не повторяются.
func retryable(err error) bool {
	var upstream *domain.UpstreamError
	if !errors.As(err, &upstream) {
		return false
	}
	if upstream.StatusCode == 0 {
		return true
	}
	return upstream.StatusCode >= 500
}

func truncate(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}

var _ domain.InventoryService = (*Client)(nil)
