package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fuseid-project/fuseid/internal/core"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := core.DefaultConfig()
	cfg.Logging.Level = "error"
	engine, err := core.NewEngine(cfg)
	if err != nil {
		t.Fatalf("creating engine: %v", err)
	}
	return NewServer(engine)
}

func doGET(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)

	var body map[string]interface{}
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s returned invalid JSON: %v", path, err)
		}
	}
	return rec, body
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer(t)

	rec, body := doGET(t, s, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["status"] != "healthy" {
		t.Errorf("status field = %v, want healthy", body["status"])
	}
	if body["bus_connected"] != false {
		t.Errorf("bus_connected = %v, want false before engine start", body["bus_connected"])
	}
}

func TestStatsEndpoint_BeforeEngineStart(t *testing.T) {
	s := testServer(t)

	rec, body := doGET(t, s, "/api/v1/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if _, ok := body["pipeline"]; !ok {
		t.Error("response missing pipeline stats")
	}
	if _, ok := body["dedup_size"]; !ok {
		t.Error("response missing dedup_size")
	}
	if _, ok := body["bus"]; ok {
		t.Error("bus metrics should be absent before the engine starts")
	}
}

func TestCorrelatorEndpoint(t *testing.T) {
	s := testServer(t)

	rec, body := doGET(t, s, "/api/v1/correlator")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["active_rules"] != float64(10) {
		t.Errorf("active_rules = %v, want 10", body["active_rules"])
	}
	if body["events_processed"] != float64(0) {
		t.Errorf("events_processed = %v, want 0", body["events_processed"])
	}
}

func TestRulesEndpoint(t *testing.T) {
	s := testServer(t)

	rec, body := doGET(t, s, "/api/v1/rules")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	rules, ok := body["rules"].([]interface{})
	if !ok {
		t.Fatalf("rules field = %T, want list", body["rules"])
	}
	if len(rules) != 10 {
		t.Errorf("got %d rules, want 10", len(rules))
	}

	first, ok := rules[0].(map[string]interface{})
	if !ok {
		t.Fatalf("rule entry = %T, want object", rules[0])
	}
	if first["rule_id"] != "CR001" {
		t.Errorf("first rule_id = %v, want CR001", first["rule_id"])
	}
	if first["severity"] != "CRITICAL" {
		t.Errorf("first rule severity = %v, want CRITICAL", first["severity"])
	}
}

func TestRecentAlertsEndpoint(t *testing.T) {
	s := testServer(t)
	for i := 0; i < 3; i++ {
		s.engine.Recent.Add(core.NewUnifiedAlert(
			core.SourceNIDSSignature, core.SeverityHigh,
			"TCP Port Scan Detected", "scan", nil))
	}

	rec, body := doGET(t, s, "/api/v1/alerts/recent?limit=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["count"] != float64(2) {
		t.Errorf("count = %v, want 2", body["count"])
	}
	alerts, ok := body["alerts"].([]interface{})
	if !ok || len(alerts) != 2 {
		t.Fatalf("alerts field = %v, want 2 entries", body["alerts"])
	}
	entry, ok := alerts[0].(map[string]interface{})
	if !ok {
		t.Fatalf("alert entry = %T, want object", alerts[0])
	}
	if entry["title"] != "TCP Port Scan Detected" {
		t.Errorf("title = %v", entry["title"])
	}
}

func TestRecentAlertsEndpoint_InvalidLimit(t *testing.T) {
	s := testServer(t)

	rec, _ := doGET(t, s, "/api/v1/alerts/recent?limit=bogus")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestEndpointsRejectNonGET(t *testing.T) {
	s := testServer(t)

	for _, path := range []string{"/health", "/api/v1/stats", "/api/v1/correlator", "/api/v1/rules", "/api/v1/alerts/recent"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		s.server.Handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("POST %s = %d, want 405", path, rec.Code)
		}
	}
}
