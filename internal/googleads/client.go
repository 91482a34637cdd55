// Package googleads provides the offline conversion upload client for the
// Google Ads API.
package googleads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clickbridge_backend/platform/apperr"
	"clickbridge_backend/platform/config"
	"clickbridge_backend/platform/logger"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	defaultEndpoint    = "https://googleads.googleapis.com/v17"
	defaultHTTPTimeout = 15 * time.Second
)

// Client uploads offline click conversions to Google Ads.
type Client struct {
	endpoint           string
	customerID         string
	loginCustomerID    string
	developerToken     string
	actionIDs          map[string]string
	defaultPhoneRegion string
	enabled            bool
	http               *http.Client
	log                *logger.Logger
}

// NewClient creates a Google Ads client authenticated via an OAuth refresh
// token. When uploads are disabled in configuration, the client is a logging
// no-op so the rest of the pipeline behaves identically in every environment.
func NewClient(cfg config.GoogleAdsConfig, defaultPhoneRegion string, log *logger.Logger) *Client {
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.GetAdsOAuthClientID(),
		ClientSecret: cfg.GetAdsOAuthClientSecret(),
		Endpoint:     google.Endpoint,
	}
	tokenSource := oauthConfig.TokenSource(context.Background(), &oauth2.Token{
		RefreshToken: cfg.GetAdsOAuthRefreshToken(),
	})

	httpClient := oauth2.NewClient(context.Background(), tokenSource)
	httpClient.Timeout = defaultHTTPTimeout

	return &Client{
		endpoint:           defaultEndpoint,
		customerID:         cfg.GetAdsClientCustomerID(),
		loginCustomerID:    cfg.GetAdsLoginCustomerID(),
		developerToken:     cfg.GetAdsDeveloperToken(),
		actionIDs:          cfg.GetAdsConversionActionIDs(),
		defaultPhoneRegion: defaultPhoneRegion,
		enabled:            cfg.IsAdsEnabled(),
		http:               httpClient,
		log:                log,
	}
}

type uploadRequest struct {
	Conversions    []clickConversion `json:"conversions"`
	PartialFailure bool              `json:"partialFailure"`
}

type uploadResponse struct {
	PartialFailureError *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"partialFailureError"`
	Results []struct {
		GCLID              string `json:"gclid,omitempty"`
		GBRAID             string `json:"gbraid,omitempty"`
		ConversionDateTime string `json:"conversionDateTime,omitempty"`
	} `json:"results"`
}

// UploadClickConversion reports one offline conversion for a lead. The
// platform's duplicate detection is authoritative: a duplicate rejection
// comes back as KindDuplicateConversion for the caller to log and drop.
func (c *Client) UploadClickConversion(ctx context.Context, raw RawLead, conversionType ConversionType) error {
	op := "googleads.UploadClickConversion"

	if !c.enabled {
		c.log.Info("google ads uploads disabled, skipping conversion",
			"lead_id", raw.LeadID,
			"conversion_type", string(conversionType),
		)
		return nil
	}

	actionID := c.actionIDs[string(conversionType)]
	if actionID == "" {
		return apperr.Validation(fmt.Sprintf("no conversion action configured for %q", conversionType)).WithOp(op)
	}
	actionPath := fmt.Sprintf("customers/%s/conversionActions/%s", c.customerID, actionID)

	conversion := buildClickConversion(raw, conversionType, actionPath, c.defaultPhoneRegion)
	if conversion.GCLID == "" && conversion.GBRAID == "" {
		return apperr.Validation("conversion has no click identifier").WithOp(op)
	}

	payload, err := json.Marshal(uploadRequest{
		Conversions:    []clickConversion{conversion},
		PartialFailure: true,
	})
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "encode conversion payload", err).WithOp(op)
	}

	url := fmt.Sprintf("%s/customers/%s:uploadClickConversions", c.endpoint, c.customerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "build upload request", err).WithOp(op)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("developer-token", c.developerToken)
	if c.loginCustomerID != "" {
		req.Header.Set("login-customer-id", c.loginCustomerID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.UpstreamError("googleads", op, err)
		return apperr.Wrap(apperr.KindTransient, "google ads request failed", err).WithOp(op)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := classifyUploadStatus(resp.StatusCode, strings.TrimSpace(string(data))).WithOp(op)
		c.log.UpstreamError("googleads", op, err)
		return err
	}

	var result uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return apperr.Wrap(apperr.KindTransient, "decode upload response", err).WithOp(op)
	}

	if pf := result.PartialFailureError; pf != nil {
		if strings.Contains(strings.ToUpper(pf.Message), "DUPLICATE") {
			return apperr.DuplicateConversion(pf.Message).WithOp(op)
		}
		return apperr.BadRequest(fmt.Sprintf("conversion rejected: %s", pf.Message)).WithOp(op)
	}

	c.log.ConversionEvent("uploaded", raw.LeadID, string(conversionType))
	return nil
}

func classifyUploadStatus(status int, body string) *apperr.Error {
	message := fmt.Sprintf("google ads returned %d", status)
	if body != "" {
		message = fmt.Sprintf("%s: %s", message, body)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperr.UpstreamAuth(message)
	case status == http.StatusTooManyRequests:
		return apperr.RateLimited(message)
	case status >= http.StatusInternalServerError:
		return apperr.Transient(message)
	default:
		return apperr.BadRequest(message)
	}
}
