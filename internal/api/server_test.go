package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dgnsrekt/navtally/internal/engine"
	"github.com/dgnsrekt/navtally/internal/push"
	"github.com/dgnsrekt/navtally/internal/snapshot"
)

type fakeService struct {
	getState    func(ctx context.Context, tabID string) (snapshot.Snapshot, error)
	setTracking func(ctx context.Context, origin string, enabled bool) (engine.TrackingResult, error)
}

func (f *fakeService) GetState(ctx context.Context, tabID string) (snapshot.Snapshot, error) {
	if f.getState != nil {
		return f.getState(ctx, tabID)
	}
	return snapshot.Snapshot{TabID: tabID}, nil
}

func (f *fakeService) ManualReset(ctx context.Context, tabID string) (snapshot.Snapshot, error) {
	return snapshot.Snapshot{TabID: tabID}, nil
}

func (f *fakeService) SetTracking(ctx context.Context, origin string, enabled bool) (engine.TrackingResult, error) {
	if f.setTracking != nil {
		return f.setTracking(ctx, origin, enabled)
	}
	return engine.TrackingResult{Origin: origin, Enabled: enabled}, nil
}

func (f *fakeService) TabActivated(ctx context.Context, tabID string) error { return nil }

func (f *fakeService) ListTabs(ctx context.Context) ([]snapshot.Snapshot, error) {
	return nil, nil
}

func newTestServer(t *testing.T, token string) http.Handler {
	t.Helper()
	return NewServer(&fakeService{}, push.NewBroker(), token)
}

func TestHealthIsOpenWithoutToken(t *testing.T) {
	h := newTestServer(t, "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d; want 200", rec.Code)
	}
}

func TestUnauthenticatedSenderGetsBare404(t *testing.T) {
	h := newTestServer(t, "secret")

	for _, path := range []string{"/api/v1/state", "/api/v1/tabs", "/api/v1/events"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("GET %s without token = %d; want 404", path, rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Fatalf("GET %s without token leaked a body: %q", path, rec.Body.String())
		}
	}
}

func TestWrongTokenGetsBare404(t *testing.T) {
	h := newTestServer(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/state", nil)
	req.Header.Set("X-API-Token", "guess")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound || rec.Body.Len() != 0 {
		t.Fatalf("wrong token = %d body %q; want bare 404", rec.Code, rec.Body.String())
	}
}

func TestGetStateWithToken(t *testing.T) {
	svc := &fakeService{getState: func(_ context.Context, tabID string) (snapshot.Snapshot, error) {
		return snapshot.Snapshot{TabID: tabID, URL: "https://a.com/x", HasData: true}, nil
	}}
	h := NewServer(svc, push.NewBroker(), "secret")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/state?tab_id=t1", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/v1/state = %d; want 200 (body %q)", rec.Code, rec.Body.String())
	}
	var snap snapshot.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("response unparseable: %v", err)
	}
	if snap.TabID != "t1" || snap.URL != "https://a.com/x" {
		t.Fatalf("snapshot = %+v; want service payload", snap)
	}
}

func TestNoTokenConfiguredDisablesAuth(t *testing.T) {
	h := newTestServer(t, "")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/state", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/v1/state with auth disabled = %d; want 200", rec.Code)
	}
}

func TestSetTrackingMapsValidationError(t *testing.T) {
	svc := &fakeService{setTracking: func(context.Context, string, bool) (engine.TrackingResult, error) {
		return engine.TrackingResult{}, &engine.CodedError{Code: engine.CodeValidation, Message: "origin must be http(s)://host"}
	}}
	h := NewServer(svc, push.NewBroker(), "")

	body := strings.NewReader(`{"origin":"ftp://a.com","enabled":true}`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/tracking", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid origin = %d; want 400 (body %q)", rec.Code, rec.Body.String())
	}
}

func TestTabNotFoundMapsTo404(t *testing.T) {
	svc := &fakeService{getState: func(context.Context, string) (snapshot.Snapshot, error) {
		return snapshot.Snapshot{}, &engine.CodedError{Code: engine.CodeTabNotFound, Message: "tab not found"}
	}}
	h := NewServer(svc, push.NewBroker(), "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/state?tab_id=ghost", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown tab = %d; want 404", rec.Code)
	}
}
