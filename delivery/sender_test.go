package delivery_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hookline/hookline/delivery"
	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/internal/entity"
	"github.com/hookline/hookline/registration"
	"github.com/hookline/hookline/signature"
)

func testRegistration(url string) *registration.Registration {
	return &registration.Registration{
		Entity:  entity.New(),
		ID:      id.NewRegistrationID(),
		OwnerID: "owner-1",
		URL:     url,
		Secret:  "whsec_test_secret",
		Events:  []string{"order.created"},
		Active:  true,
		Headers: map[string]string{"X-Custom": "custom-value"},
	}
}

func testDelivery(payload string) *delivery.Delivery {
	return &delivery.Delivery{
		Entity:         entity.New(),
		ID:             id.NewDeliveryID(),
		EventID:        id.NewEventID(),
		RegistrationID: id.NewRegistrationID(),
		EventType:      "order.created",
		Payload:        json.RawMessage(payload),
		Status:         delivery.StatusPending,
		MaxAttempts:    3,
	}
}

func TestSend_Success(t *testing.T) {
	payload := `{"order_id":"ord_123"}`

	var gotHeaders http.Header
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"received":true}`))
	}))
	defer srv.Close()

	reg := testRegistration(srv.URL)
	d := testDelivery(payload)

	sender := delivery.NewSender(5 * time.Second)
	result := sender.Send(context.Background(), reg, d)

	if !result.Succeeded() {
		t.Fatalf("expected success, got status %d error %q", result.StatusCode, result.Error)
	}
	if result.Response != `{"received":true}` {
		t.Fatalf("response: got %q", result.Response)
	}
	if string(gotBody) != payload {
		t.Fatalf("body: got %q, want %q", gotBody, payload)
	}

	if ct := gotHeaders.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type: got %q", ct)
	}
	if et := gotHeaders.Get("X-Webhook-Event"); et != "order.created" {
		t.Fatalf("X-Webhook-Event: got %q", et)
	}
	if did := gotHeaders.Get("X-Webhook-Delivery"); did != d.ID.String() {
		t.Fatalf("X-Webhook-Delivery: got %q, want %q", did, d.ID)
	}
	if custom := gotHeaders.Get("X-Custom"); custom != "custom-value" {
		t.Fatalf("custom header: got %q", custom)
	}

	// The receiver must be able to verify the signature over the raw body.
	sig := gotHeaders.Get("X-Webhook-Signature")
	if !signature.Verify(gotBody, reg.Secret, sig) {
		t.Fatalf("signature %q does not verify against body", sig)
	}
}

func TestSend_Non2xxIsFailure(t *testing.T) {
	for _, code := range []int{301, 400, 404, 500, 503} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(code)
		}))

		sender := delivery.NewSender(5 * time.Second)
		result := sender.Send(context.Background(), testRegistration(srv.URL), testDelivery(`{}`))
		srv.Close()

		if result.Succeeded() {
			t.Errorf("status %d should not be a success", code)
		}
		if result.StatusCode != code {
			t.Errorf("expected status %d recorded, got %d", code, result.StatusCode)
		}
	}
}

func TestSend_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close() // connection refused

	sender := delivery.NewSender(5 * time.Second)
	result := sender.Send(context.Background(), testRegistration(srv.URL), testDelivery(`{}`))

	if result.Succeeded() {
		t.Fatal("transport error should not be a success")
	}
	if result.StatusCode != 0 {
		t.Fatalf("expected no status code, got %d", result.StatusCode)
	}
	if result.Error == "" {
		t.Fatal("expected error message")
	}
}

func TestSend_TimeoutUsesRegistrationBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := testRegistration(srv.URL)
	reg.Timeout = 50 * time.Millisecond

	sender := delivery.NewSender(5 * time.Second)
	start := time.Now()
	result := sender.Send(context.Background(), reg, testDelivery(`{}`))

	if result.Succeeded() {
		t.Fatal("timed-out attempt should not be a success")
	}
	if result.Error == "" {
		t.Fatal("expected timeout error message")
	}
	if time.Since(start) > 400*time.Millisecond {
		t.Fatal("per-registration timeout was not applied")
	}
}

func TestSend_TruncatesResponseBody(t *testing.T) {
	big := strings.Repeat("x", 5000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(big))
	}))
	defer srv.Close()

	sender := delivery.NewSender(5 * time.Second)
	result := sender.Send(context.Background(), testRegistration(srv.URL), testDelivery(`{}`))

	if len(result.Response) != 1000 {
		t.Fatalf("expected response truncated to 1000 chars, got %d", len(result.Response))
	}
}
