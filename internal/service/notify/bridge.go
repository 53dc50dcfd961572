package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

const (
	bridgeService  = "chat-bridge"
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 512
)

// BridgeConfig — адрес и токен sidecar-шлюза чата.
type BridgeConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// BridgeDispatcher отправляет сообщения через HTTP-мост чата:
// POST /messages и DELETE /messages/{id}.
type BridgeDispatcher struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *log.Entry
}

// NewBridgeDispatcher создаёт клиента моста.
func NewBridgeDispatcher(cfg BridgeConfig, logger *log.Entry) *BridgeDispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = log.WithField("component", "chat-bridge")
	}
	return &BridgeDispatcher{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type sendRequest struct {
	ClientID string `json:"client_id"`
	To       string `json:"to"`
	Text     string `json:"text,omitempty"`
	// Image — PNG в base64; Text становится подписью.
	Image    string `json:"image,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// Send отправляет сообщение покупателю и возвращает handle для отзыва.
func (b *BridgeDispatcher) Send(ctx context.Context, buyerRef string, msg domain.Message) (domain.NotificationHandle, error) {
	req := sendRequest{
		ClientID: uuid.NewString(),
		To:       buyerRef,
		Text:     msg.Text,
	}
	if len(msg.Image) > 0 {
		req.Image = base64.StdEncoding.EncodeToString(msg.Image)
		req.Filename = msg.ImageFilename
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return domain.NotificationHandle{}, fmt.Errorf("marshal bridge message: %w", err)
	}

	var resp sendResponse
	if err := b.do(ctx, http.MethodPost, b.baseURL+"/messages", payload, &resp); err != nil {
		return domain.NotificationHandle{}, err
	}

	// Мост без собственных id принимает client_id как идентификатор сообщения.
	id := resp.ID
	if id == "" {
		id = req.ClientID
	}
	return domain.NotificationHandle{ID: id, BuyerRef: buyerRef}, nil
}

// Revoke удаляет сообщение у всех участников чата.
func (b *BridgeDispatcher) Revoke(ctx context.Context, handle domain.NotificationHandle) error {
	if handle.ID == "" {
		return nil
	}
	endpoint := fmt.Sprintf("%s/messages/%s?to=%s", b.baseURL, url.PathEscape(handle.ID), url.QueryEscape(handle.BuyerRef))
	return b.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

func (b *BridgeDispatcher) do(ctx context.Context, method, endpoint string, payload []byte, out interface{}) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build bridge request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	res, err := b.http.Do(req)
	if err != nil {
		return &domain.UpstreamError{Service: bridgeService, Body: err.Error(), Kind: domain.ErrNotificationFailure}
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b.logger.WithFields(log.Fields{
			"method": method,
			"status": res.StatusCode,
		}).Debug("chat bridge request failed")
		return &domain.UpstreamError{Service: bridgeService, StatusCode: res.StatusCode, Body: truncate(raw), Kind: domain.ErrNotificationFailure}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.UpstreamError{Service: bridgeService, StatusCode: res.StatusCode, Body: "invalid json: " + truncate(raw), Kind: domain.ErrNotificationFailure}
	}
	return nil
}

func truncate(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}

var _ domain.Notifier = (*BridgeDispatcher)(nil)
