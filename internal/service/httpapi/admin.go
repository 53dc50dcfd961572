package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopbot/internal/format"
	"github.com/vladislavdragonenkov/shopbot/internal/service/command"
)

type reloadRequest struct {
	Secret string `json:"secret"`
	What   string `json:"what"`
	Note   string `json:"note"`
}

type reloadResponse struct {
	OK       bool   `json:"ok"`
	Products int    `json:"products,omitempty"`
	Promos   int    `json:"promos,omitempty"`
	Error    string `json:"error,omitempty"`
}

// handleReload принудительно перечитывает таблицы каталога.
// what: all (по умолчанию), produk, promo.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	var req reloadRequest
	if err := decodeJSON(r.Body, &req); err != nil || !s.authorized(req.Secret) {
		writeText(w, http.StatusUnauthorized, "forbidden")
		return
	}

	what := strings.ToLower(strings.TrimSpace(req.What))
	if what == "" {
		what = "all"
	}
	if err := s.reload(r.Context(), what); err != nil {
		s.logger.WithError(err).WithField("what", what).Error("admin reload failed")
		writeJSON(w, http.StatusOK, reloadResponse{OK: false, Error: err.Error()})
		return
	}

	if note := strings.TrimSpace(req.Note); note != "" && s.deps.Admins != nil {
		s.deps.Admins.Notify(r.Context(), "♻️ Reload diminta: "+note)
	}
	s.logger.WithField("what", what).Info("catalog reloaded on admin request")
	writeJSON(w, http.StatusOK, reloadResponse{
		OK:       true,
		Products: len(s.deps.Catalog.All()),
		Promos:   s.deps.Catalog.PromoCount(),
	})
}

func (s *Server) reload(ctx context.Context, what string) error {
	switch what {
	case "all", "produk", "promo":
	default:
		return fmt.Errorf("unknown reload target %q", what)
	}
	if what == "all" || what == "produk" {
		if err := s.deps.Catalog.RefreshProducts(ctx, true); err != nil {
			return err
		}
	}
	if what == "all" || what == "promo" {
		if err := s.deps.Catalog.RefreshPromos(ctx, true); err != nil {
			return err
		}
	}
	return nil
}

type lowStockRequest struct {
	Secret string                `json:"secret"`
	Items  []format.LowStockItem `json:"items"`
}

// handleLowStock пересылает администраторам оповещение склада о малом остатке.
func (s *Server) handleLowStock(w http.ResponseWriter, r *http.Request) {
	var req lowStockRequest
	if err := decodeJSON(r.Body, &req); err != nil || !s.authorized(req.Secret) {
		writeText(w, http.StatusUnauthorized, "forbidden")
		return
	}
	if len(req.Items) > 0 && s.deps.Admins != nil {
		delivered := s.deps.Admins.Notify(r.Context(), format.LowStockAlert(req.Items))
		s.logger.WithFields(log.Fields{
			"items":     len(req.Items),
			"delivered": delivered,
		}).Info("low stock alert forwarded")
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type inboundRequest struct {
	command.Inbound
	Token string `json:"token"`
}

// handleChatInbound — callback чат-моста с входящим сообщением.
func (s *Server) handleChatInbound(w http.ResponseWriter, r *http.Request) {
	var req inboundRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeText(w, http.StatusBadRequest, "bad request")
		return
	}
	if s.cfg.ChatToken != "" && !secretEqual(req.Token, s.cfg.ChatToken) {
		writeText(w, http.StatusUnauthorized, "forbidden")
		return
	}
	reply := s.deps.Commands.Dispatch(r.Context(), req.Inbound)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "replied": reply != ""})
}

func decodeJSON(body io.Reader, v any) error {
	return json.NewDecoder(io.LimitReader(body, maxBodyBytes)).Decode(v)
}
