package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"logistrans/internal/auth"
	"logistrans/internal/cache"
	"logistrans/internal/config"
	"logistrans/internal/hub"
	"logistrans/internal/model"
	"logistrans/internal/store"
	"logistrans/internal/tracking"
)

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	for _, m := range mutate {
		m(cfg)
	}
	logger := slog.New(slog.DiscardHandler)
	st := store.NewMemory()
	c := cache.NewMemory()
	reg := hub.NewRegistry(logger, cfg.Hub.QueueSize)
	svc := tracking.NewService(st, c, hub.NewBroadcaster(reg, logger), logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewServer(ctx, cfg, Deps{
		Store:    st,
		Cache:    c,
		Auth:     auth.NewVerifier(cfg.Auth),
		Registry: reg,
		Tracking: svc,
		Logger:   logger,
	})
}

func locationBody(t *testing.T, req model.UpdateLocationRequest) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(b)
}

func newLocationRequest() model.UpdateLocationRequest {
	return model.UpdateLocationRequest{
		RouteID:   uuid.New(),
		VehicleID: uuid.New(),
		DriverID:  uuid.New(),
		Latitude:  40.7128,
		Longitude: -74.006,
		Speed:     12,
		Heading:   180,
	}
}

func do(h http.Handler, method, path, token string, body *bytes.Reader) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, body)
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthReady(t *testing.T) {
	h := newTestServer(t).Routes()
	if rr := do(h, http.MethodGet, "/healthz", "", nil); rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	if rr := do(h, http.MethodGet, "/readyz", "", nil); rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestRecordLocationAuth(t *testing.T) {
	h := newTestServer(t).Routes()
	req := newLocationRequest()

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"NoToken", "", http.StatusUnauthorized},
		{"BadToken", "garbage", http.StatusUnauthorized},
		{"Dispatcher", req.DriverID.String() + ":dispatcher", http.StatusForbidden},
		{"OtherDriver", uuid.NewString() + ":driver", http.StatusForbidden},
		{"Self", req.DriverID.String() + ":driver", http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(h, http.MethodPost, "/api/tracking/location", tt.token, locationBody(t, req))
			if rr.Code != tt.want {
				t.Fatalf("got %d, want %d: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestRecordLocationValidation(t *testing.T) {
	h := newTestServer(t).Routes()
	req := newLocationRequest()
	req.Latitude = 91
	tok := req.DriverID.String() + ":driver"

	rr := do(h, http.MethodPost, "/api/tracking/location", tok, locationBody(t, req))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("out of range latitude: got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("content type = %q", ct)
	}
	var p Problem
	if err := json.NewDecoder(rr.Body).Decode(&p); err != nil || p.Status != http.StatusBadRequest {
		t.Fatalf("problem body: %+v err=%v", p, err)
	}

	rr = do(h, http.MethodPost, "/api/tracking/location", tok, bytes.NewReader([]byte(`{"route_id":`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad json: got %d", rr.Code)
	}
}

func TestRecordLocationPublishesToSubscribers(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	req := newLocationRequest()

	byRoute := s.Registry.Register(hub.Identity{})
	s.Registry.SetSubscription(byRoute.ID(), hub.DimRoute, uuid.NullUUID{UUID: req.RouteID, Valid: true})
	byVehicle := s.Registry.Register(hub.Identity{})
	s.Registry.SetSubscription(byVehicle.ID(), hub.DimVehicle, uuid.NullUUID{UUID: req.VehicleID, Valid: true})
	other := s.Registry.Register(hub.Identity{})
	s.Registry.SetSubscription(other.ID(), hub.DimRoute, uuid.NullUUID{UUID: uuid.New(), Valid: true})

	rr := do(h, http.MethodPost, "/api/tracking/location", req.DriverID.String()+":driver", locationBody(t, req))
	if rr.Code != http.StatusCreated {
		t.Fatalf("record: got %d: %s", rr.Code, rr.Body.String())
	}
	var loc model.Location
	if err := json.NewDecoder(rr.Body).Decode(&loc); err != nil {
		t.Fatal(err)
	}
	if loc.ID == uuid.Nil || loc.RouteID != req.RouteID || loc.Timestamp.IsZero() {
		t.Fatalf("unexpected location %+v", loc)
	}
	if byRoute.Queued() != 1 || byVehicle.Queued() != 1 || other.Queued() != 0 {
		t.Fatalf("queued route=%d vehicle=%d other=%d", byRoute.Queued(), byVehicle.Queued(), other.Queued())
	}
}

func TestLatestAndHistory(t *testing.T) {
	h := newTestServer(t).Routes()
	req := newLocationRequest()
	driverTok := req.DriverID.String() + ":driver"
	viewer := "u1:dispatcher"
	latest := "/api/tracking/" + req.RouteID.String()

	if rr := do(h, http.MethodGet, latest, "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("latest without token: got %d", rr.Code)
	}
	if rr := do(h, http.MethodGet, latest, viewer, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("latest before any fix: got %d", rr.Code)
	}
	if rr := do(h, http.MethodGet, "/api/tracking/not-a-uuid", viewer, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad route id: got %d", rr.Code)
	}

	for i := 0; i < 3; i++ {
		req.Latitude = float64(10 + i)
		if rr := do(h, http.MethodPost, "/api/tracking/location", driverTok, locationBody(t, req)); rr.Code != http.StatusCreated {
			t.Fatalf("record %d: got %d", i, rr.Code)
		}
	}

	rr := do(h, http.MethodGet, latest, viewer, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("latest: got %d", rr.Code)
	}
	var loc model.Location
	_ = json.NewDecoder(rr.Body).Decode(&loc)
	if loc.Latitude != 12 {
		t.Fatalf("latest latitude = %v, want 12", loc.Latitude)
	}

	rr = do(h, http.MethodGet, latest+"/history", viewer, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("history: got %d", rr.Code)
	}
	var hist []model.Location
	_ = json.NewDecoder(rr.Body).Decode(&hist)
	if len(hist) != 3 || hist[0].Latitude != 10 || hist[2].Latitude != 12 {
		t.Fatalf("history = %+v", hist)
	}
}

func TestRecordLocationRateLimited(t *testing.T) {
	h := newTestServer(t, func(c *config.Config) {
		c.Ingest.RateRPS = 0.001
		c.Ingest.RateBurst = 1
	}).Routes()
	req := newLocationRequest()
	tok := req.DriverID.String() + ":driver"

	if rr := do(h, http.MethodPost, "/api/tracking/location", tok, locationBody(t, req)); rr.Code != http.StatusCreated {
		t.Fatalf("first: got %d", rr.Code)
	}
	rr := do(h, http.MethodPost, "/api/tracking/location", tok, locationBody(t, req))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second: got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
}

func TestMetricsAndDebug(t *testing.T) {
	h := newTestServer(t).Routes()
	_ = do(h, http.MethodGet, "/healthz", "", nil)

	rr := do(h, http.MethodGet, "/metrics", "", nil)
	if rr.Code != 200 {
		t.Fatalf("metrics: got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "http_requests_total") {
		t.Fatal("metrics output missing http_requests_total")
	}

	rr = do(h, http.MethodGet, "/debug/info", "", nil)
	if rr.Code != 200 {
		t.Fatalf("debug: got %d", rr.Code)
	}
	var info map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if _, ok := info["hub"]; !ok {
		t.Fatalf("debug info missing hub stats: %v", info)
	}
	if _, ok := info["config"]; ok {
		t.Fatal("anonymous debug info exposes config")
	}

	for tok, want := range map[string]bool{"ops:admin": true, "d1:driver": false} {
		rr = do(h, http.MethodGet, "/debug/info", tok, nil)
		info = nil
		if err := json.NewDecoder(rr.Body).Decode(&info); err != nil {
			t.Fatal(err)
		}
		if _, ok := info["config"]; ok != want {
			t.Fatalf("token %q: config present = %v, want %v", tok, ok, want)
		}
	}
}
