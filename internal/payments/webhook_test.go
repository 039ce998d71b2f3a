package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79"

	"github.com/fairdinkum/course-backend/internal/analytics"
	"github.com/fairdinkum/course-backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "whsec_test_secret"

// memStore implements registrations.Store in memory.
type memStore struct {
	recs        map[string]*models.RegistrationRecord
	markPaidErr error
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[string]*models.RegistrationRecord)}
}

func storeKey(courseID, email string) string { return courseID + "|" + email }

func (s *memStore) add(rec models.RegistrationRecord) {
	s.recs[storeKey(rec.CourseID, rec.Email)] = &rec
}

func (s *memStore) Get(_ context.Context, courseID, email string) (*models.RegistrationRecord, error) {
	rec, ok := s.recs[storeKey(courseID, email)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *memStore) Put(_ context.Context, rec *models.RegistrationRecord) error {
	cp := *rec
	s.recs[storeKey(rec.CourseID, rec.Email)] = &cp
	return nil
}

func (s *memStore) GetByRegistrationID(_ context.Context, registrationID string) (*models.RegistrationRecord, error) {
	for _, rec := range s.recs {
		if rec.RegistrationID == registrationID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindPendingByEmail(_ context.Context, email string) ([]models.RegistrationRecord, error) {
	var out []models.RegistrationRecord
	for _, rec := range s.recs {
		if rec.Email == email && rec.PaymentStatus == models.StatusPending {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *memStore) MarkPaid(_ context.Context, courseID, email string, p models.PaymentDetails) error {
	if s.markPaidErr != nil {
		return s.markPaidErr
	}
	rec, ok := s.recs[storeKey(courseID, email)]
	if !ok {
		return errors.New("no such record")
	}
	rec.PaymentStatus = models.StatusPaid
	rec.PaymentAmount = p.Amount
	rec.Currency = p.Currency
	rec.StripeSessionID = p.StripeSessionID
	rec.PaymentDate = p.PaymentDate
	return nil
}

func (s *memStore) Approve(_ context.Context, courseID, email, approvalDate string) error {
	rec, ok := s.recs[storeKey(courseID, email)]
	if !ok {
		return errors.New("no such record")
	}
	rec.PaymentStatus = models.StatusPending
	rec.ApprovalDate = approvalDate
	return nil
}

type fakeMailer struct {
	sent []string
	err  error
}

func (f *fakeMailer) SendPaymentConfirmation(_ context.Context, _, email, _ string, amount float64) error {
	f.sent = append(f.sent, fmt.Sprintf("user:%s:%.2f", email, amount))
	return f.err
}

func (f *fakeMailer) SendAdminPaymentNotice(_ context.Context, _, email, _, _ string, amount float64) error {
	f.sent = append(f.sent, fmt.Sprintf("admin:%s:%.2f", email, amount))
	return f.err
}

type fakeSink struct {
	purchases []string
	err       error
}

func (f *fakeSink) Purchase(_ context.Context, _ analytics.UserData, value float64, currency, orderID, _ string) error {
	f.purchases = append(f.purchases, fmt.Sprintf("%s:%.2f:%s", orderID, value, currency))
	return f.err
}

type fakeDeduper struct {
	marked map[string]bool
	err    error
}

func (f *fakeDeduper) Seen(_ context.Context, eventID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.marked[eventID], nil
}

func (f *fakeDeduper) Mark(_ context.Context, eventID string) error {
	if f.err != nil {
		return f.err
	}
	if f.marked == nil {
		f.marked = make(map[string]bool)
	}
	f.marked[eventID] = true
	return nil
}

// signHeader computes a Stripe-Signature header over payload, matching the
// scheme ConstructEvent verifies.
func signHeader(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func checkoutEvent(eventID, clientRef, email string, amountTotal int64) []byte {
	type customerDetails struct {
		Email string `json:"email"`
	}
	session := map[string]interface{}{
		"id":           "cs_test_123",
		"amount_total": amountTotal,
		"currency":     "usd",
		"customer_details": customerDetails{
			Email: email,
		},
	}
	if clientRef != "" {
		session["client_reference_id"] = clientRef
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"id":          eventID,
		"api_version": stripe.APIVersion,
		"type":        "checkout.session.completed",
		"data":        map[string]interface{}{"object": session},
	})
	return payload
}

func newWebhookRouter(h *WebhookHandler) *gin.Engine {
	r := gin.New()
	r.POST("/webhooks/stripe", h.HandleWebhook)
	return r
}

func postWebhook(r *gin.Engine, payload []byte, sigHeader string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if sigHeader != "" {
		req.Header.Set("Stripe-Signature", sigHeader)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestWebhook_ResolvesByClientReferenceID(t *testing.T) {
	store := newMemStore()
	store.add(models.RegistrationRecord{
		CourseID:       models.DefaultCourseID,
		Email:          "a@x.com",
		RegistrationID: "R1",
		Name:           "Ada",
		PaymentStatus:  models.StatusPending,
	})
	mail := &fakeMailer{}
	sink := &fakeSink{}
	h := NewWebhookHandler(store, mail, sink, nil, testSecret, nil)
	r := newWebhookRouter(h)

	payload := checkoutEvent("evt_1", "R1", "billing@other.com", 61200)
	w := postWebhook(r, payload, signHeader(payload, testSecret))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]bool
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || !body["received"] {
		t.Fatalf("expected received:true, got %s", w.Body.String())
	}

	rec := store.recs[storeKey(models.DefaultCourseID, "a@x.com")]
	if rec.PaymentStatus != models.StatusPaid {
		t.Errorf("expected paid, got %s", rec.PaymentStatus)
	}
	if rec.PaymentAmount != 612.00 {
		t.Errorf("expected 612.00 (from 61200 minor units), got %v", rec.PaymentAmount)
	}
	if rec.StripeSessionID != "cs_test_123" {
		t.Errorf("expected session id recorded, got %q", rec.StripeSessionID)
	}
	if rec.Currency != "USD" {
		t.Errorf("expected currency USD, got %q", rec.Currency)
	}

	if len(mail.sent) != 2 {
		t.Errorf("expected user receipt + admin notice, got %v", mail.sent)
	}
	if len(sink.purchases) != 1 {
		t.Errorf("expected one purchase event, got %v", sink.purchases)
	}
}

func TestWebhook_InvalidSignatureNoMutation(t *testing.T) {
	store := newMemStore()
	store.add(models.RegistrationRecord{
		CourseID:       models.DefaultCourseID,
		Email:          "a@x.com",
		RegistrationID: "R1",
		PaymentStatus:  models.StatusPending,
	})
	h := NewWebhookHandler(store, &fakeMailer{}, &fakeSink{}, nil, testSecret, nil)
	r := newWebhookRouter(h)

	payload := checkoutEvent("evt_1", "R1", "", 5000)
	w := postWebhook(r, payload, signHeader(payload, "whsec_wrong_secret"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["error"] != "invalid_signature" {
		t.Errorf("expected invalid_signature, got %v", body["error"])
	}
	if store.recs[storeKey(models.DefaultCourseID, "a@x.com")].PaymentStatus != models.StatusPending {
		t.Error("record must stay pending after a tampered notification")
	}
}

func TestWebhook_MissingSignature(t *testing.T) {
	h := NewWebhookHandler(newMemStore(), &fakeMailer{}, &fakeSink{}, nil, testSecret, nil)
	r := newWebhookRouter(h)

	payload := checkoutEvent("evt_1", "R1", "", 5000)
	w := postWebhook(r, payload, "")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestWebhook_OtherEventTypesAcknowledged(t *testing.T) {
	store := newMemStore()
	h := NewWebhookHandler(store, &fakeMailer{}, &fakeSink{}, nil, testSecret, nil)
	r := newWebhookRouter(h)

	payload, _ := json.Marshal(map[string]interface{}{
		"id":          "evt_2",
		"api_version": stripe.APIVersion,
		"type":        "invoice.created",
		"data":        map[string]interface{}{"object": map[string]interface{}{}},
	})
	w := postWebhook(r, payload, signHeader(payload, testSecret))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for unhandled event type, got %d", w.Code)
	}
}

func TestWebhook_LegacyEmailFallback(t *testing.T) {
	store := newMemStore()
	// Pending record in another course must not match the fallback.
	store.add(models.RegistrationRecord{
		CourseID:       models.TestCourseID,
		Email:          "a@x.com",
		RegistrationID: "R-other",
		PaymentStatus:  models.StatusPending,
	})
	store.add(models.RegistrationRecord{
		CourseID:       models.DefaultCourseID,
		Email:          "a@x.com",
		RegistrationID: "R1",
		Name:           "Ada",
		PaymentStatus:  models.StatusPending,
	})
	h := NewWebhookHandler(store, &fakeMailer{}, &fakeSink{}, nil, testSecret, nil)
	r := newWebhookRouter(h)

	payload := checkoutEvent("evt_3", "", "A@X.com", 5000)
	w := postWebhook(r, payload, signHeader(payload, testSecret))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	rec := store.recs[storeKey(models.DefaultCourseID, "a@x.com")]
	if rec.PaymentStatus != models.StatusPaid || rec.PaymentAmount != 50.00 {
		t.Errorf("expected default-course record paid 50.00, got %s %v", rec.PaymentStatus, rec.PaymentAmount)
	}
	if other := store.recs[storeKey(models.TestCourseID, "a@x.com")]; other.PaymentStatus != models.StatusPending {
		t.Error("record in a different course must not be touched by the fallback")
	}
}

func TestWebhook_NoMatchIsNotFound(t *testing.T) {
	store := newMemStore()
	h := NewWebhookHandler(store, &fakeMailer{}, &fakeSink{}, nil, testSecret, nil)
	r := newWebhookRouter(h)

	payload := checkoutEvent("evt_4", "", "ghost@x.com", 5000)
	w := postWebhook(r, payload, signHeader(payload, testSecret))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["error"] != "registration_not_found" {
		t.Errorf("expected registration_not_found, got %v", body["error"])
	}
}

func TestWebhook_DuplicateEventSkipped(t *testing.T) {
	store := newMemStore()
	store.add(models.RegistrationRecord{
		CourseID:       models.DefaultCourseID,
		Email:          "a@x.com",
		RegistrationID: "R1",
		PaymentStatus:  models.StatusPending,
	})
	mail := &fakeMailer{}
	dedup := &fakeDeduper{}
	h := NewWebhookHandler(store, mail, &fakeSink{}, dedup, testSecret, nil)
	r := newWebhookRouter(h)

	payload := checkoutEvent("evt_5", "R1", "", 5000)
	if w := postWebhook(r, payload, signHeader(payload, testSecret)); w.Code != http.StatusOK {
		t.Fatalf("first delivery: expected 200, got %d", w.Code)
	}
	if w := postWebhook(r, payload, signHeader(payload, testSecret)); w.Code != http.StatusOK {
		t.Fatalf("retry: expected 200, got %d", w.Code)
	}
	if len(mail.sent) != 2 {
		t.Errorf("retry must not resend email, got %v", mail.sent)
	}
}

func TestWebhook_RetryAfterStoreFailureIsProcessed(t *testing.T) {
	store := newMemStore()
	store.add(models.RegistrationRecord{
		CourseID:       models.DefaultCourseID,
		Email:          "a@x.com",
		RegistrationID: "R1",
		PaymentStatus:  models.StatusPending,
	})
	dedup := &fakeDeduper{}
	h := NewWebhookHandler(store, &fakeMailer{}, &fakeSink{}, dedup, testSecret, nil)
	r := newWebhookRouter(h)

	payload := checkoutEvent("evt_retry", "R1", "", 5000)

	store.markPaidErr = errors.New("dynamo down")
	if w := postWebhook(r, payload, signHeader(payload, testSecret)); w.Code != http.StatusInternalServerError {
		t.Fatalf("first delivery: expected 500, got %d", w.Code)
	}
	if store.recs[storeKey(models.DefaultCourseID, "a@x.com")].PaymentStatus != models.StatusPending {
		t.Fatal("record must stay pending after failed delivery")
	}

	// The provider retries the identical event; a failed delivery must not
	// have marked it as processed.
	store.markPaidErr = nil
	if w := postWebhook(r, payload, signHeader(payload, testSecret)); w.Code != http.StatusOK {
		t.Fatalf("retry: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if store.recs[storeKey(models.DefaultCourseID, "a@x.com")].PaymentStatus != models.StatusPaid {
		t.Error("expected record paid after successful retry")
	}
}

func TestWebhook_OldAPIVersionAccepted(t *testing.T) {
	store := newMemStore()
	store.add(models.RegistrationRecord{
		CourseID:       models.DefaultCourseID,
		Email:          "a@x.com",
		RegistrationID: "R1",
		PaymentStatus:  models.StatusPending,
	})
	h := NewWebhookHandler(store, &fakeMailer{}, &fakeSink{}, nil, testSecret, nil)
	r := newWebhookRouter(h)

	payload, _ := json.Marshal(map[string]interface{}{
		"id":          "evt_old",
		"api_version": "2020-08-27",
		"type":        "checkout.session.completed",
		"data": map[string]interface{}{"object": map[string]interface{}{
			"id":                  "cs_old",
			"client_reference_id": "R1",
			"amount_total":        5000,
			"currency":            "usd",
		}},
	})
	w := postWebhook(r, payload, signHeader(payload, testSecret))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for an endpoint pinned to an older version, got %d: %s", w.Code, w.Body.String())
	}
	if store.recs[storeKey(models.DefaultCourseID, "a@x.com")].PaymentStatus != models.StatusPaid {
		t.Error("expected record paid")
	}
}

func TestWebhook_MissingDataIsInvalidPayload(t *testing.T) {
	h := NewWebhookHandler(newMemStore(), &fakeMailer{}, &fakeSink{}, nil, testSecret, nil)
	r := newWebhookRouter(h)

	payload, _ := json.Marshal(map[string]interface{}{
		"id":          "evt_nodata",
		"api_version": stripe.APIVersion,
		"type":        "checkout.session.completed",
	})
	w := postWebhook(r, payload, signHeader(payload, testSecret))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["error"] != "invalid_payload" {
		t.Errorf("expected invalid_payload, got %v", body["error"])
	}
}

func TestWebhook_DedupOutageStillProcesses(t *testing.T) {
	store := newMemStore()
	store.add(models.RegistrationRecord{
		CourseID:       models.DefaultCourseID,
		Email:          "a@x.com",
		RegistrationID: "R1",
		PaymentStatus:  models.StatusPending,
	})
	dedup := &fakeDeduper{err: errors.New("redis down")}
	h := NewWebhookHandler(store, &fakeMailer{}, &fakeSink{}, dedup, testSecret, nil)
	r := newWebhookRouter(h)

	payload := checkoutEvent("evt_6", "R1", "", 5000)
	w := postWebhook(r, payload, signHeader(payload, testSecret))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 despite dedup outage, got %d", w.Code)
	}
	if store.recs[storeKey(models.DefaultCourseID, "a@x.com")].PaymentStatus != models.StatusPaid {
		t.Error("expected record paid")
	}
}

func TestWebhook_StoreFailureIsServerError(t *testing.T) {
	store := newMemStore()
	store.add(models.RegistrationRecord{
		CourseID:       models.DefaultCourseID,
		Email:          "a@x.com",
		RegistrationID: "R1",
		PaymentStatus:  models.StatusPending,
	})
	store.markPaidErr = errors.New("dynamo down")
	h := NewWebhookHandler(store, &fakeMailer{}, &fakeSink{}, nil, testSecret, nil)
	r := newWebhookRouter(h)

	payload := checkoutEvent("evt_7", "R1", "", 5000)
	w := postWebhook(r, payload, signHeader(payload, testSecret))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 so the provider retries, got %d", w.Code)
	}
}

func TestWebhook_EmailFailureDoesNotFailRequest(t *testing.T) {
	store := newMemStore()
	store.add(models.RegistrationRecord{
		CourseID:       models.DefaultCourseID,
		Email:          "a@x.com",
		RegistrationID: "R1",
		PaymentStatus:  models.StatusPending,
	})
	mail := &fakeMailer{err: errors.New("ses down")}
	h := NewWebhookHandler(store, mail, &fakeSink{}, nil, testSecret, nil)
	r := newWebhookRouter(h)

	payload := checkoutEvent("evt_8", "R1", "", 5000)
	w := postWebhook(r, payload, signHeader(payload, testSecret))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 despite email failure, got %d", w.Code)
	}
}
