package kycclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/azeezabass2005/soolution-be/internal/domain"
)

func TestVerifySignature_RoundTrip(t *testing.T) {
	c := NewClient("https://kyc.example.test", "partner-123", "secret", "https://api.example.test/webhook")

	timestamp := "2026-01-01T00:00:00Z"
	sig := c.GenerateSignature(timestamp)

	if !c.VerifySignature(timestamp, sig) {
		t.Fatal("expected generated signature to verify")
	}
	if c.VerifySignature("2026-01-02T00:00:00Z", sig) {
		t.Fatal("expected signature bound to its timestamp")
	}
	if c.VerifySignature(timestamp, "forged") {
		t.Fatal("expected forged signature to fail")
	}
}

func TestSubmitJob_SendsSignedPartnerParams(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/verification-jobs" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	c := NewClient(server.URL, "partner-123", "secret", "https://api.example.test/webhook")
	userID := uuid.New()

	err := c.SubmitJob(context.Background(), userID, "job-42", domain.SubmitVerificationRequest{
		IDType:   "PASSPORT",
		IDNumber: "A1234567",
		Country:  "NG",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	params, ok := received["partner_params"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected partner_params object, got %v", received["partner_params"])
	}
	if params["user_id"] != userID.String() || params["job_id"] != "job-42" {
		t.Fatalf("unexpected partner params %v", params)
	}

	timestamp, _ := received["timestamp"].(string)
	signature, _ := received["signature"].(string)
	if !c.VerifySignature(timestamp, signature) {
		t.Fatal("expected submission to carry a valid signature")
	}
}

func TestSubmitJob_SurfacesProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error": "id number mismatch"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "partner-123", "secret", "")
	err := c.SubmitJob(context.Background(), uuid.New(), "job-1", domain.SubmitVerificationRequest{})
	if err == nil {
		t.Fatal("expected an error")
	}
}
