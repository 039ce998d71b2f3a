package referrals

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/fairdinkum/course-backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memStore struct {
	events []models.ReferralEvent
	putErr error
}

func (s *memStore) Put(_ context.Context, ev *models.ReferralEvent) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.events = append(s.events, *ev)
	return nil
}

func (s *memStore) ListByCode(_ context.Context, code string) ([]models.ReferralEvent, error) {
	var out []models.ReferralEvent
	for _, ev := range s.events {
		if ev.ReferralCode == code {
			out = append(out, ev)
		}
	}
	return out, nil
}

func newTestRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.POST("/referrals/events", h.Record)
	r.GET("/referrals/:code/events", h.ListByCode)
	return r
}

func doPost(t *testing.T, r *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/referrals/events", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "test-agent/1.0")
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return body
}

func TestRecord_Success(t *testing.T) {
	store := &memStore{}
	h := NewHandler(store, nil)
	r := newTestRouter(h)

	w := doPost(t, r, `{"event_name": "click", "referral_code": "abc-123"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["event_id"] == "" {
		t.Fatal("expected event_id in response")
	}
	if len(store.events) != 1 {
		t.Fatalf("expected one stored event, got %d", len(store.events))
	}
	ev := store.events[0]
	if ev.EventName != "click" || ev.ReferralCode != "abc-123" {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.UserAgent != "test-agent/1.0" {
		t.Errorf("expected user agent captured, got %q", ev.UserAgent)
	}
	if ev.Timestamp == "" || ev.EventID != body["event_id"] {
		t.Errorf("expected timestamp and matching event id, got %+v", ev)
	}
}

func TestRecord_InvalidCode(t *testing.T) {
	store := &memStore{}
	h := NewHandler(store, nil)
	r := newTestRouter(h)

	for _, code := range []string{"abc 123", "abc!", "a/b", "code;drop"} {
		w := doPost(t, r, `{"event_name": "click", "referral_code": "`+code+`"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("code %q: expected 400, got %d", code, w.Code)
			continue
		}
		if body := decodeBody(t, w); body["error"] != "invalid_referral_code" {
			t.Errorf("code %q: expected invalid_referral_code, got %v", code, body["error"])
		}
	}
	if len(store.events) != 0 {
		t.Error("invalid codes must not be stored")
	}
}

func TestRecord_FieldTooLong(t *testing.T) {
	h := NewHandler(&memStore{}, nil)
	r := newTestRouter(h)

	long := strings.Repeat("a", 101)
	w := doPost(t, r, `{"event_name": "click", "referral_code": "`+long+`"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "field_too_long" {
		t.Errorf("expected field_too_long, got %v", body["error"])
	}
}

func TestRecord_MissingFields(t *testing.T) {
	h := NewHandler(&memStore{}, nil)
	r := newTestRouter(h)

	for _, body := range []string{`{}`, `{"event_name": "click"}`, `{"referral_code": "abc"}`} {
		w := doPost(t, r, body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, w.Code)
			continue
		}
		if resp := decodeBody(t, w); resp["error"] != "missing_required_field" {
			t.Errorf("body %s: expected missing_required_field, got %v", body, resp["error"])
		}
	}
}

func TestRecord_LongUserAgentTruncated(t *testing.T) {
	store := &memStore{}
	h := NewHandler(store, nil)
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/referrals/events",
		bytes.NewBufferString(`{"event_name": "click", "referral_code": "abc"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", strings.Repeat("x", 300))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := len(store.events[0].UserAgent); got != maxUserAgentLen {
		t.Errorf("expected user agent truncated to %d, got %d", maxUserAgentLen, got)
	}
}

func TestRecord_TruncationKeepsRuneBoundary(t *testing.T) {
	store := &memStore{}
	h := NewHandler(store, nil)
	r := newTestRouter(h)

	// Multi-byte runes positioned so a byte-index cut would split one.
	ua := strings.Repeat("é", 150)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/referrals/events",
		bytes.NewBufferString(`{"event_name": "click", "referral_code": "abc"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", ua)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	got := store.events[0].UserAgent
	if len(got) > maxUserAgentLen {
		t.Errorf("expected at most %d bytes, got %d", maxUserAgentLen, len(got))
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncated user agent is not valid UTF-8: %q", got)
	}
}

func TestRecord_StoreErrorIsInternal(t *testing.T) {
	store := &memStore{putErr: errors.New("dynamo down")}
	h := NewHandler(store, nil)
	r := newTestRouter(h)

	w := doPost(t, r, `{"event_name": "click", "referral_code": "abc"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "internal_error" {
		t.Errorf("expected internal_error, got %v", body["error"])
	}
}

func TestListByCode(t *testing.T) {
	store := &memStore{events: []models.ReferralEvent{
		{EventID: "e1", EventName: "click", ReferralCode: "abc"},
		{EventID: "e2", EventName: "signup", ReferralCode: "abc"},
		{EventID: "e3", EventName: "click", ReferralCode: "other"},
	}}
	h := NewHandler(store, nil)
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/referrals/abc/events", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		ReferralCode string                 `json:"referral_code"`
		Events       []models.ReferralEvent `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.ReferralCode != "abc" || len(body.Events) != 2 {
		t.Errorf("expected two events for abc, got %+v", body)
	}
}

func TestListByCode_InvalidCode(t *testing.T) {
	h := NewHandler(&memStore{}, nil)
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/referrals/bad%20code/events", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
