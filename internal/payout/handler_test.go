package payout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fkhayef/milestonepay/pkg/middleware"
)

const (
	testServiceKey       = "integration-key"
	testWorkerID   int64 = 10
	outsiderID     int64 = 999
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
	Meta *struct {
		Total int `json:"total"`
	} `json:"meta"`
}

func newTestRouter(source Source) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.ServiceKeyAuth(testServiceKey, middleware.HeaderAuth))
	r.Mount("/payouts", NewHandler(NewService(source)).Routes())
	return r
}

// asService and asUser set the credentials of a request
func asService(req *http.Request) { req.Header.Set(middleware.ServiceKeyHeader, testServiceKey) }

func asUser(id int64) func(*http.Request) {
	return func(req *http.Request) { req.Header.Set(middleware.UserIDHeader, strconv.FormatInt(id, 10)) }
}

func doRequest(t *testing.T, h http.Handler, method, path string, auth func(*http.Request)) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if auth != nil {
		auth(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return rec, env
}

func TestHandlerListAndAck(t *testing.T) {
	outbox := NewMemoryOutbox()
	first := NewEvent(1, 1, 7, testWorkerID, 3800, "INR", time.Now().Add(-time.Minute))
	second := NewEvent(2, 2, 7, testWorkerID, 950, "INR", time.Now())
	outbox.Append(first, second)
	h := newTestRouter(outbox)

	rec, env := doRequest(t, h, http.MethodGet, "/payouts/events?status=pending", asService)
	if rec.Code != http.StatusOK || env.Meta == nil || env.Meta.Total != 2 {
		t.Fatalf("list pending: code=%d meta=%+v", rec.Code, env.Meta)
	}

	rec, env = doRequest(t, h, http.MethodPost, "/payouts/events/"+first.ID.String()+"/ack", asService)
	if rec.Code != http.StatusOK {
		t.Fatalf("ack: code=%d", rec.Code)
	}
	var acked EventResponse
	json.Unmarshal(env.Data, &acked)
	if acked.Status != string(EventStatusDispatched) || acked.DispatchedAt == nil {
		t.Errorf("acked event = %+v, want dispatched", acked)
	}

	_, env = doRequest(t, h, http.MethodGet, "/payouts/events?status=pending", asService)
	if env.Meta == nil || env.Meta.Total != 1 {
		t.Errorf("pending after ack = %+v, want 1", env.Meta)
	}
}

func TestHandlerUserAccess(t *testing.T) {
	outbox := NewMemoryOutbox()
	own := NewEvent(1, 1, 7, testWorkerID, 3800, "INR", time.Now())
	other := NewEvent(2, 2, 8, 11, 950, "INR", time.Now())
	outbox.Append(own, other)
	h := newTestRouter(outbox)
	ownPath := "/payouts/events/" + own.ID.String()

	tests := []struct {
		name      string
		method    string
		path      string
		auth      func(*http.Request)
		wantCode  int
		wantTotal int
	}{
		{"worker lists own payouts", http.MethodGet, "/payouts/events", asUser(testWorkerID), http.StatusOK, 1},
		{"outsider lists nothing", http.MethodGet, "/payouts/events", asUser(outsiderID), http.StatusOK, 0},
		{"worker reads own payout", http.MethodGet, ownPath, asUser(testWorkerID), http.StatusOK, -1},
		{"outsider reads payout", http.MethodGet, ownPath, asUser(outsiderID), http.StatusForbidden, -1},
		{"worker acknowledges", http.MethodPost, ownPath + "/ack", asUser(testWorkerID), http.StatusForbidden, -1},
		{"outsider acknowledges", http.MethodPost, ownPath + "/ack", asUser(outsiderID), http.StatusForbidden, -1},
		{"no credentials", http.MethodGet, "/payouts/events", nil, http.StatusUnauthorized, -1},
		{"wrong service key", http.MethodPost, ownPath + "/ack", func(req *http.Request) {
			req.Header.Set(middleware.ServiceKeyHeader, "guess")
		}, http.StatusUnauthorized, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := doRequest(t, h, tt.method, tt.path, tt.auth)
			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantTotal >= 0 && (env.Meta == nil || env.Meta.Total != tt.wantTotal) {
				t.Errorf("meta = %+v, want total %d", env.Meta, tt.wantTotal)
			}
			if tt.wantCode == http.StatusForbidden && (env.Error == nil || env.Error.Code != "UNAUTHORIZED") {
				t.Errorf("error = %+v, want code UNAUTHORIZED", env.Error)
			}
		})
	}

	e, err := outbox.GetByID(context.Background(), own.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if e.Status != EventStatusPending {
		t.Fatalf("status after rejected acks = %s, want pending", e.Status)
	}

	sink := &fakeSink{}
	n, err := NewDispatcher(outbox, sink, time.Second, 10).DispatchOnce(context.Background())
	if err != nil || n != 2 {
		t.Errorf("DispatchOnce() = %d, %v; want both events delivered", n, err)
	}
}

func TestHandlerErrors(t *testing.T) {
	h := newTestRouter(NewMemoryOutbox())

	tests := []struct {
		name     string
		method   string
		path     string
		wantCode int
	}{
		{"bad status filter", http.MethodGet, "/payouts/events?status=lost", http.StatusBadRequest},
		{"page out of range", http.MethodGet, "/payouts/events?page=100000000&per_page=100", http.StatusBadRequest},
		{"malformed id", http.MethodGet, "/payouts/events/not-a-uuid", http.StatusBadRequest},
		{"unknown event", http.MethodGet, "/payouts/events/" + uuid.NewString(), http.StatusNotFound},
		{"ack unknown event", http.MethodPost, "/payouts/events/" + uuid.NewString() + "/ack", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := doRequest(t, h, tt.method, tt.path, asService)
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			if env.Success {
				t.Error("success = true on error response")
			}
		})
	}
}

func TestMemoryOutboxListNegativeOffset(t *testing.T) {
	outbox := seedOutbox(t, 1, 2)
	events, total, err := outbox.List(context.Background(), ListFilter{}, 10, -5)
	if err != nil || total != 2 || len(events) != 2 {
		t.Errorf("List(offset -5) = %d events, total %d, err %v", len(events), total, err)
	}
}
