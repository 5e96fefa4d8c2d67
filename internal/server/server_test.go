package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"ecogateway/internal/config"
	"ecogateway/internal/ecosystem"
	"ecogateway/internal/registry"
	"ecogateway/pkg/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func upstream(t *testing.T, status int, body string) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server.URL
}

func newClient(t *testing.T, services []registry.ServiceDescriptor, chain *registry.ChainConfig) *ecosystem.Client {
	t.Helper()
	reg, err := registry.New(services, chain)
	if err != nil {
		t.Fatalf("registry.New() failed: %v", err)
	}
	client, err := ecosystem.New(ecosystem.Config{
		Timeout:       time.Second,
		HealthTimeout: time.Second,
		RetryDelay:    time.Millisecond,
	}, reg, discardLogger())
	if err != nil {
		t.Fatalf("ecosystem.New() failed: %v", err)
	}
	return client
}

func healthyEcosystem(t *testing.T) []registry.ServiceDescriptor {
	return []registry.ServiceDescriptor{
		{Key: ecosystem.ServiceGenesis, Name: "Genesis", URL: upstream(t, 200, `{"pending_decisions":2,"safety_score":"0.9","active_guardians":4}`), HealthPath: "/health", MetricsPath: "/api/guardians/dashboard", DocsPath: "/docs"},
		{Key: ecosystem.ServiceResonance, Name: "Resonance", URL: upstream(t, 200, `{"version":"3.0.0"}`), HealthPath: "/health", MetricsPath: "/api/info"},
		{Key: ecosystem.ServiceDex, Name: "DEX", URL: upstream(t, 200, `{}`), HealthPath: "/api/health", DashboardPath: "/dashboard"},
	}
}

func testServerConfig() config.Server {
	return config.Server{
		MetricsPath:    "/metrics",
		StreamInterval: 50 * time.Millisecond,
		CORS: config.CORS{
			Enabled:        true,
			AllowedOrigins: []string{"https://dashboard.example.com"},
		},
	}
}

func startServer(t *testing.T, s *Server) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
		ts.Close()
	})
	return ts
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		s := New(testServerConfig(), newClient(t, healthyEcosystem(t), nil), discardLogger())
		ts := startServer(t, s)

		var health ecosystem.AggregateHealth
		resp := getJSON(t, ts.URL+"/api/ecosystem/health", &health)

		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
		if health.Overall != ecosystem.StatusHealthy || len(health.Services) != 3 {
			t.Errorf("unexpected health: %+v", health)
		}
		if resp.Header.Get("X-Request-ID") == "" {
			t.Error("expected a request id header")
		}
	})

	t.Run("down returns 503", func(t *testing.T) {
		services := []registry.ServiceDescriptor{
			{Key: ecosystem.ServiceGenesis, URL: upstream(t, 500, `{}`), HealthPath: "/health"},
			{Key: ecosystem.ServiceResonance, URL: upstream(t, 503, `{}`), HealthPath: "/health"},
			{Key: ecosystem.ServiceDex, URL: upstream(t, 502, `{}`), HealthPath: "/health"},
		}
		s := New(testServerConfig(), newClient(t, services, nil), discardLogger())
		ts := startServer(t, s)

		var health ecosystem.AggregateHealth
		resp := getJSON(t, ts.URL+"/api/ecosystem/health", &health)

		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", resp.StatusCode)
		}
		if health.Overall != ecosystem.StatusDown {
			t.Errorf("expected down, got %s", health.Overall)
		}
		if health.Services[ecosystem.ServiceGenesis].Code != 500 {
			t.Errorf("expected genesis code 500, got %+v", health.Services[ecosystem.ServiceGenesis])
		}
	})

	t.Run("single service", func(t *testing.T) {
		s := New(testServerConfig(), newClient(t, healthyEcosystem(t), nil), discardLogger())
		ts := startServer(t, s)

		var h ecosystem.ServiceHealth
		getJSON(t, ts.URL+"/api/ecosystem/health/dex", &h)
		if h.Status != ecosystem.StatusHealthy {
			t.Errorf("expected dex healthy, got %+v", h)
		}

		resp := getJSON(t, ts.URL+"/api/ecosystem/health/contracts", &h)
		if resp.StatusCode != http.StatusOK || h.Status != ecosystem.StatusUnknown {
			t.Errorf("expected 200 unknown, got %d %+v", resp.StatusCode, h)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		s := New(testServerConfig(), newClient(t, healthyEcosystem(t), nil), discardLogger())
		ts := startServer(t, s)

		resp, err := http.Post(ts.URL+"/api/ecosystem/health", "application/json", nil)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", resp.StatusCode)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	s := New(testServerConfig(), newClient(t, healthyEcosystem(t), nil), discardLogger())
	ts := startServer(t, s)

	var snap ecosystem.MetricsSnapshot
	resp := getJSON(t, ts.URL+"/api/ecosystem/metrics", &snap)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if !snap.Genesis.Available || snap.Genesis.ActiveGuardians != 4 || snap.Genesis.SafetyScore != "0.9" {
		t.Errorf("unexpected genesis metrics: %+v", snap.Genesis)
	}
	if !snap.Resonance.Available || snap.Resonance.Version != "3.0.0" || snap.Resonance.Uptime != "N/A" {
		t.Errorf("unexpected resonance metrics: %+v", snap.Resonance)
	}
}

func TestServicesEndpoints(t *testing.T) {
	chain := &registry.ChainConfig{
		Name:    "Smart Contracts",
		ChainID: "16661",
		Router:  registry.RouterConfig{Address: "0x0000000000000000000000000000000000000000", Type: "uniswap_v2"},
	}
	s := New(testServerConfig(), newClient(t, healthyEcosystem(t), chain), discardLogger())
	ts := startServer(t, s)

	t.Run("list", func(t *testing.T) {
		var body struct {
			Services []struct {
				Key   string            `json:"key"`
				URL   string            `json:"url"`
				Links map[string]string `json:"links"`
			} `json:"services"`
			Contracts *registry.ChainConfig `json:"contracts"`
		}
		getJSON(t, ts.URL+"/api/ecosystem/services", &body)

		if len(body.Services) != 3 || body.Services[0].Key != ecosystem.ServiceGenesis {
			t.Fatalf("unexpected services: %+v", body.Services)
		}
		if got := body.Services[0].Links["docs"]; got != body.Services[0].URL+"/docs" {
			t.Errorf("unexpected docs link: %q", got)
		}
		if body.Contracts == nil || body.Contracts.ChainID != "16661" || body.Contracts.Router.Verified {
			t.Errorf("unexpected contracts: %+v", body.Contracts)
		}
	})

	t.Run("one", func(t *testing.T) {
		var d registry.ServiceDescriptor
		resp := getJSON(t, ts.URL+"/api/ecosystem/services/dex", &d)
		if resp.StatusCode != http.StatusOK || d.DashboardPath != "/dashboard" {
			t.Errorf("unexpected descriptor: %d %+v", resp.StatusCode, d)
		}
	})

	t.Run("missing", func(t *testing.T) {
		var body map[string]any
		resp := getJSON(t, ts.URL+"/api/ecosystem/services/nope", &body)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
		if body["type"] != "not_found" {
			t.Errorf("expected not_found type, got %v", body["type"])
		}
	})
}

func TestLiveAndPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg, reg)
	s := New(testServerConfig(), newClient(t, healthyEcosystem(t), nil), discardLogger()).WithMetrics(m)
	ts := startServer(t, s)

	var live map[string]any
	getJSON(t, ts.URL+"/live", &live)
	if live["status"] != "ok" {
		t.Errorf("unexpected live body: %v", live)
	}

	// The access log records after the response is written, so poll
	want := `ecosystem_http_requests_total{method="GET",route="GET /live",status="200"} 1`
	var body []byte
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(ts.URL + "/metrics")
		if err != nil {
			t.Fatal(err)
		}
		body, _ = io.ReadAll(resp.Body)
		resp.Body.Close()
		if strings.Contains(string(body), want) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("expected /live request in exposition, got:\n%s", body)
}

func TestCORS(t *testing.T) {
	s := New(testServerConfig(), newClient(t, healthyEcosystem(t), nil), discardLogger())
	ts := startServer(t, s)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/ecosystem/health", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204 preflight, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "https://dashboard.example.com" {
		t.Errorf("unexpected allow origin: %q", resp.Header.Get("Access-Control-Allow-Origin"))
	}
}

func TestSetClient(t *testing.T) {
	s := New(testServerConfig(), newClient(t, healthyEcosystem(t), nil), discardLogger())
	ts := startServer(t, s)

	replacement := newClient(t, []registry.ServiceDescriptor{
		{Key: "solo", URL: upstream(t, 200, `{}`)},
	}, nil)
	s.SetClient(replacement)

	if s.Client() != replacement {
		t.Fatal("Client() should return the replacement")
	}

	var body struct {
		Services []registry.ServiceDescriptor `json:"services"`
	}
	getJSON(t, ts.URL+"/api/ecosystem/services", &body)
	if len(body.Services) != 1 || body.Services[0].Key != "solo" {
		t.Errorf("expected the swapped registry, got %+v", body.Services)
	}
}

func TestStream(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg, reg)
	s := New(testServerConfig(), newClient(t, healthyEcosystem(t), nil), discardLogger()).WithMetrics(m)
	ts := startServer(t, s)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ecosystem/stream"

	t.Run("pushes snapshots", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("Dial failed: %v", err)
		}
		defer conn.Close()

		for i := 0; i < 2; i++ {
			_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
			var msg struct {
				Type string                    `json:"type"`
				Data ecosystem.AggregateHealth `json:"data"`
			}
			if err := conn.ReadJSON(&msg); err != nil {
				t.Fatalf("message %d: %v", i, err)
			}
			if msg.Type != "health" || msg.Data.Overall != ecosystem.StatusHealthy {
				t.Errorf("message %d: unexpected %+v", i, msg)
			}
		}
	})

	t.Run("rejects foreign origin", func(t *testing.T) {
		header := http.Header{"Origin": []string{"https://evil.example.org"}}
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
		if err == nil {
			t.Fatal("expected handshake failure")
		}
		if resp == nil || resp.StatusCode != http.StatusForbidden {
			t.Errorf("expected 403, got %v", resp)
		}
	})

	t.Run("closed on shutdown", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("Dial failed: %v", err)
		}
		defer conn.Close()

		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		if _, _, err := conn.ReadMessage(); err != nil {
			t.Fatalf("first message: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.Stop(ctx); err != nil {
			t.Errorf("Stop() failed: %v", err)
		}

		for {
			_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
			_, _, err := conn.ReadMessage()
			if err == nil {
				continue
			}
			if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
				t.Errorf("expected going-away close, got %v", err)
			}
			break
		}
	})
}

func TestStartStop(t *testing.T) {
	cfg := testServerConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	s := New(cfg, newClient(t, healthyEcosystem(t), nil), discardLogger())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop() failed: %v", err)
	}
	// Idempotent
	if err := s.Stop(ctx); err != nil {
		t.Errorf("second Stop() failed: %v", err)
	}
}
