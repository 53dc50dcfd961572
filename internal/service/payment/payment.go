package payment

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

// Провайдеры платёжного шлюза.
const (
	ProviderMidtrans = "midtrans"
	ProviderMock     = "mock"
)

// Config описывает подключение к платёжному шлюзу.
type Config struct {
	Provider   string
	ServerKey  string
	Production bool
	// PublicBaseURL — внешний адрес сервиса для страницы возврата после оплаты.
	PublicBaseURL string
	Timeout       time.Duration
	// APIBaseURL и SnapBaseURL переопределяют адреса шлюза (локальный стенд, тесты).
	APIBaseURL  string
	SnapBaseURL string
}

// New выбирает реализацию шлюза по cfg.Provider.
func New(cfg Config, logger *log.Entry) (domain.PaymentGateway, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderMidtrans:
		if cfg.ServerKey == "" {
			return nil, fmt.Errorf("payment provider %q requires server key", ProviderMidtrans)
		}
		return NewMidtrans(cfg, logger), nil
	case ProviderMock:
		return NewMockGateway(cfg.ServerKey), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
	}
}
