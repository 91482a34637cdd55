package googleads

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"clickbridge_backend/platform/apperr"
	"clickbridge_backend/platform/logger"
)

func newUploadClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &Client{
		endpoint:           server.URL,
		customerID:         "1234567890",
		loginCustomerID:    "1111111111",
		developerToken:     "dev-token",
		actionIDs:          map[string]string{"converted_lead": "555"},
		defaultPhoneRegion: "US",
		enabled:            true,
		http:               server.Client(),
		log:                logger.New("development"),
	}
}

func TestUploadClickConversionSendsPayload(t *testing.T) {
	var captured uploadRequest

	client := newUploadClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/customers/1234567890:uploadClickConversions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("developer-token") != "dev-token" {
			t.Fatal("missing developer token header")
		}
		if r.Header.Get("login-customer-id") != "1111111111" {
			t.Fatal("missing login customer id header")
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"results":[{"gclid":"abc123"}]}`))
	})

	raw := RawLead{LeadID: 9001, GCLID: "abc123", GBRAID: "br-1", Phone: "+15551234567"}
	if err := client.UploadClickConversion(context.Background(), raw, ConversionConvertedLead); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	if !captured.PartialFailure {
		t.Fatal("partialFailure must be set")
	}
	if len(captured.Conversions) != 1 {
		t.Fatalf("expected one conversion, got %d", len(captured.Conversions))
	}
	conversion := captured.Conversions[0]
	if conversion.GCLID != "abc123" || conversion.GBRAID != "" {
		t.Fatalf("gclid must win over gbraid: %+v", conversion)
	}
	if conversion.ConversionAction != "customers/1234567890/conversionActions/555" {
		t.Fatalf("unexpected conversion action %q", conversion.ConversionAction)
	}
}

func TestUploadDuplicateIsTyped(t *testing.T) {
	client := newUploadClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"partialFailureError":{"code":3,"message":"This conversion is a DUPLICATE of a previously reported conversion"}}`))
	})

	err := client.UploadClickConversion(context.Background(), RawLead{LeadID: 9001, GCLID: "abc123"}, ConversionConvertedLead)
	if !apperr.Is(err, apperr.KindDuplicateConversion) {
		t.Fatalf("expected duplicate conversion error, got %v", err)
	}
}

func TestUploadAuthFailureIsTyped(t *testing.T) {
	client := newUploadClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := client.UploadClickConversion(context.Background(), RawLead{LeadID: 9001, GCLID: "abc123"}, ConversionConvertedLead)
	if !apperr.Is(err, apperr.KindUpstreamAuth) {
		t.Fatalf("expected upstream auth error, got %v", err)
	}
}

func TestUploadRateLimitIsRetryable(t *testing.T) {
	client := newUploadClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	err := client.UploadClickConversion(context.Background(), RawLead{LeadID: 9001, GCLID: "abc123"}, ConversionConvertedLead)
	if !apperr.Retryable(err) {
		t.Fatalf("rate limit must be retryable, got %v", err)
	}
}

func TestUploadWithoutClickIdentifierRejected(t *testing.T) {
	client := newUploadClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	err := client.UploadClickConversion(context.Background(), RawLead{LeadID: 9001}, ConversionConvertedLead)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUploadDisabledClientIsNoOp(t *testing.T) {
	client := newUploadClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("disabled client must not call the API")
	})
	client.enabled = false

	if err := client.UploadClickConversion(context.Background(), RawLead{LeadID: 9001, GCLID: "abc123"}, ConversionConvertedLead); err != nil {
		t.Fatalf("disabled upload must be a no-op: %v", err)
	}
}
