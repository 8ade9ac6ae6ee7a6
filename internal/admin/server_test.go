package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/rp1210test/internal/auth"
	"github.com/danmuck/rp1210test/internal/bus"
	"github.com/danmuck/rp1210test/internal/config"
	"github.com/danmuck/rp1210test/internal/protocol/j1939"
	"github.com/danmuck/rp1210test/internal/protocol/session"
	"github.com/danmuck/rp1210test/internal/testutil/testlog"
)

type stubStats struct {
	stats session.Stats
}

func (s stubStats) Stats() session.Stats { return s.stats }

func get(t *testing.T, s *Server, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	var body map[string]any
	if rr.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rr.Code, body
}

func TestStatsReportsBusAndSession(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	b := bus.New[j1939.Frame]()
	sub := b.Subscribe()
	defer sub.Close()
	b.Publish(j1939.Encode(6, 0xFFF1, 0, 0xF9, nil))

	s := New("node-a", ":0", b, stubStats{stats: session.Stats{Run: "r1", Mode: "server", Pongs: 4}}, config.DefaultCatalog(), log.Logger, nil)

	code, body := get(t, s, "/stats")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	busStats := body["bus"].(map[string]any)
	if busStats["published"].(float64) != 1 || busStats["subscriptions"].(float64) != 1 || busStats["retained"].(float64) != 1 {
		t.Fatalf("unexpected bus stats %#v", busStats)
	}
	sess := body["session"].(map[string]any)
	if sess["run"] != "r1" || sess["pongs"].(float64) != 4 {
		t.Fatalf("unexpected session stats %#v", sess)
	}

	if code, body := get(t, s, "/ready"); code != http.StatusOK || body["ready"] != true {
		t.Fatalf("ready got %d %#v", code, body)
	}
	if code, body := get(t, s, "/health"); code != http.StatusOK || body["service"] != "node-a" {
		t.Fatalf("health got %d %#v", code, body)
	}
	if code, _ := get(t, s, "/metrics"); code != http.StatusOK {
		t.Fatalf("metrics got %d", code)
	}
}

func TestReadyWhileIdle(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	s := New("node-b", ":0", bus.New[j1939.Frame](), stubStats{stats: session.Stats{Mode: "idle"}}, config.DefaultCatalog(), log.Logger, nil)
	if code, body := get(t, s, "/ready"); code != http.StatusServiceUnavailable || body["ready"] != false {
		t.Fatalf("ready got %d %#v", code, body)
	}
	code, body := get(t, s, "/adapters")
	if code != http.StatusOK || len(body["adapters"].([]any)) != len(config.DefaultCatalog().Adapters) {
		t.Fatalf("adapters got %d %#v", code, body)
	}
}

func TestTokenGuardsStats(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	s := New("node-c", ":0", bus.New[j1939.Frame](), nil, config.DefaultCatalog(), log.Logger, nil)
	s.RequireToken(auth.StaticToken{Token: "secret"})

	if code, _ := get(t, s, "/stats"); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rr.Code)
	}
	if code, _ := get(t, s, "/health"); code != http.StatusOK {
		t.Fatalf("health must stay open, got %d", code)
	}
}
