package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paywall-labs/paywall-go/config"
	sdkerrors "github.com/paywall-labs/paywall-go/internal/errors"
	"github.com/paywall-labs/paywall-go/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(config.APIConfig{
		Key:     "pk_test_x",
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
	})
}

func TestCreateUser(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/users" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Api-Key pk_test_x" {
			t.Errorf("Unexpected auth header %q", got)
		}

		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["id"] != "user-1" {
			t.Errorf("Expected user id in payload, got %v", body["id"])
		}

		_ = json.NewEncoder(w).Encode(models.User{
			ID: "user-1",
			Placements: []models.Placement{
				{ID: "p1", Identifier: "main"},
			},
			PaymentProviders: []models.PaymentProvider{
				{ID: "pp1", Kind: models.ProviderStripe},
			},
		})
	})

	user, err := client.CreateUser(context.Background(), "user-1", models.CustomerAttributes{Locale: "en"})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if len(user.Placements) != 1 || user.Placements[0].Identifier != "main" {
		t.Errorf("Unexpected placements: %+v", user.Placements)
	}
}

func TestCreateEventsBatch(t *testing.T) {
	var received int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Events []models.Event `json:"events"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		received = len(body.Events)
		w.WriteHeader(http.StatusOK)
	})

	events := []models.Event{
		{Name: "paywall_shown", InsertID: "i1"},
		{Name: "purchase_started", InsertID: "i2"},
	}
	if err := client.CreateEvents(context.Background(), events); err != nil {
		t.Fatalf("CreateEvents failed: %v", err)
	}
	if received != 2 {
		t.Errorf("Expected 2 events delivered, got %d", received)
	}
}

func TestCreateSubscription(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req models.CreateSubscriptionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.ProductID != "prod_1" || req.TrialPeriodDays != 7 {
			t.Errorf("Unexpected request: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(models.Subscription{ID: "sub_1", ClientSecret: "cs_x"})
	})

	sub, err := client.CreateSubscription(context.Background(), models.CreateSubscriptionRequest{
		ProductID:       "prod_1",
		TrialPeriodDays: 7,
	})
	if err != nil {
		t.Fatalf("CreateSubscription failed: %v", err)
	}
	if sub.ClientSecret != "cs_x" {
		t.Errorf("Expected client secret propagated, got %q", sub.ClientSecret)
	}
}

func TestHTTPErrorIsBackendError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.CreateCustomer(context.Background(), models.CreateCustomerRequest{UserID: "u1"})
	if err == nil {
		t.Fatalf("Expected error on 500")
	}
	if !sdkerrors.Is(err, sdkerrors.ErrBackend) {
		t.Errorf("Expected ErrBackend classification, got %v", err)
	}
}

func TestReportErrorNeverFails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})

	// Must not panic or surface anything
	client.ReportError(context.Background(), "checkout exploded")
}
