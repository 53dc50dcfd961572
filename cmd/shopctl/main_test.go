package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shopbot/internal/format"
	"github.com/vladislavdragonenkov/shopbot/internal/messaging/kafka"
)

type adminStub struct {
	mu       sync.Mutex
	reloads  []reloadRequest
	lowStock []lowStockRequest
	health   int
}

func (s *adminStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/reload", func(w http.ResponseWriter, r *http.Request) {
		var req reloadRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Secret != "s3cret" {
			http.Error(w, "forbidden", http.StatusUnauthorized)
			return
		}
		s.mu.Lock()
		s.reloads = append(s.reloads, req)
		s.mu.Unlock()
		if req.What == "promo" {
			_, _ = w.Write([]byte(`{"ok":false,"error":"sheet unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"products":12,"promos":3}`))
	})
	mux.HandleFunc("/admin/lowstock", func(w http.ResponseWriter, r *http.Request) {
		var req lowStockRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		s.mu.Lock()
		s.lowStock = append(s.lowStock, req)
		s.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		code := s.health
		if code == 0 {
			code = http.StatusOK
		}
		w.WriteHeader(code)
		status := "healthy"
		if code != http.StatusOK {
			status = "unhealthy"
		}
		_, _ = w.Write([]byte(`{"status":"` + status + `","version":"dev","uptime_seconds":5,"checks":{"catalog":{"status":"` + status + `","duration_ms":1}}}`))
	})
	return mux
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestReload(t *testing.T) {
	stub := &adminStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	out, err := runCLI(t, "--server", srv.URL, "--secret", "s3cret", "reload", "produk", "--note", "harga baru")
	require.NoError(t, err)
	require.Contains(t, out, "reload ok")
	require.Contains(t, out, "products: 12")

	require.Len(t, stub.reloads, 1)
	require.Equal(t, "produk", stub.reloads[0].What)
	require.Equal(t, "harga baru", stub.reloads[0].Note)
}

func TestReload_DefaultsToAll(t *testing.T) {
	stub := &adminStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	_, err := runCLI(t, "--server", srv.URL, "--secret", "s3cret", "reload")
	require.NoError(t, err)
	require.Equal(t, "all", stub.reloads[0].What)
}

func TestReload_Errors(t *testing.T) {
	stub := &adminStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	_, err := runCLI(t, "--server", srv.URL, "--secret", "wrong", "reload")
	require.ErrorContains(t, err, "unauthorized")

	_, err = runCLI(t, "--server", srv.URL, "--secret", "s3cret", "reload", "promo")
	require.ErrorContains(t, err, "sheet unavailable")
}

func TestLowStock(t *testing.T) {
	stub := &adminStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	out, err := runCLI(t, "--server", srv.URL, "--secret", "s3cret", "lowstock", "nfx1=1", "SPO3B=0")
	require.NoError(t, err)
	require.Contains(t, out, "2 item(s)")
	require.Equal(t, []format.LowStockItem{{Code: "NFX1", Ready: 1}, {Code: "SPO3B", Ready: 0}}, stub.lowStock[0].Items)
}

func TestParseLowStock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		args    []string
		wantErr bool
	}{
		{args: []string{"NFX1=2"}},
		{args: []string{"NFX1"}, wantErr: true},
		{args: []string{"=2"}, wantErr: true},
		{args: []string{"NFX1=x"}, wantErr: true},
		{args: []string{"NFX1=-1"}, wantErr: true},
	}
	for _, tt := range tests {
		_, err := parseLowStock(tt.args)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseLowStock(%q) error = %v, wantErr %v", tt.args, err, tt.wantErr)
		}
	}
}

func TestStatus(t *testing.T) {
	stub := &adminStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	out, err := runCLI(t, "--server", srv.URL, "status")
	require.NoError(t, err)
	require.Contains(t, out, "status:  healthy")
	require.Contains(t, out, "catalog")

	stub.health = http.StatusServiceUnavailable
	_, err = runCLI(t, "--server", srv.URL, "status")
	require.ErrorContains(t, err, "unhealthy")
}

func TestJournal_RequiresDSN(t *testing.T) {
	t.Setenv("SHOPBOT_JOURNAL_DSN", "")
	_, err := runCLI(t, "journal", "--dsn", "")
	require.ErrorContains(t, err, "--dsn")
}

func TestEventsTail_RequiresBrokers(t *testing.T) {
	_, err := runCLI(t, "events", "tail", "--brokers", "")
	require.ErrorContains(t, err, "--brokers")
}

func TestPrintEvent(t *testing.T) {
	t.Parallel()

	event := kafka.NewOrderEvent(kafka.EventTypeOrderReleased, "PBS-1", "62811@c.us", "RELEASED", map[string]interface{}{"reason": "timeout"})
	event.Timestamp = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, printEvent(&out, &sarama.ConsumerMessage{Topic: kafka.TopicOrderEvents, Value: payload}, false))
	require.Contains(t, out.String(), "PBS-1")
	require.Contains(t, out.String(), "reason=timeout")

	out.Reset()
	require.NoError(t, printEvent(&out, &sarama.ConsumerMessage{Topic: kafka.TopicOrderEvents, Value: []byte("not json")}, false))
	require.True(t, strings.Contains(out.String(), "raw not json"), out.String())

	out.Reset()
	parked := &sarama.ConsumerMessage{Topic: kafka.TopicDeadLetterQueue, Value: payload, Headers: []*sarama.RecordHeader{
		{Key: []byte(kafka.HeaderRetryCount), Value: []byte("5")},
		{Key: []byte(kafka.HeaderErrorMessage), Value: []byte("kafka: client has run out of available brokers")},
	}}
	require.NoError(t, printEvent(&out, parked, false))
	require.Contains(t, out.String(), `attempts=5 error="kafka: client has run out of available brokers"`)
}

func TestSplitList(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"a:9092", "b:9092"}, splitList(" a:9092, ,b:9092"))
	require.Nil(t, splitList(""))
}
