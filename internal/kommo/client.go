// Package kommo provides the Kommo CRM API client used for lead enrichment.
package kommo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clickbridge_backend/platform/apperr"
	"clickbridge_backend/platform/config"
	"clickbridge_backend/platform/logger"
)

const defaultHTTPTimeout = 10 * time.Second

// Client is the Kommo REST API client.
type Client struct {
	baseURL          string
	accessToken      string
	fields           config.KommoFieldIDs
	targetPipelineID int64
	http             *http.Client
	log              *logger.Logger
}

// NewClient creates a Kommo client from configuration.
func NewClient(cfg config.KommoConfig, log *logger.Logger) *Client {
	baseURL := strings.Replace(cfg.GetKommoBaseURL(), "{subdomain}", cfg.GetKommoSubdomain(), 1)

	return &Client{
		baseURL:          strings.TrimRight(baseURL, "/"),
		accessToken:      cfg.GetKommoAccessToken(),
		fields:           cfg.GetKommoFieldIDs(),
		targetPipelineID: cfg.GetKommoTargetPipelineID(),
		http:             &http.Client{Timeout: defaultHTTPTimeout},
		log:              log,
	}
}

// FieldIDs exposes the configured custom-field IDs.
func (c *Client) FieldIDs() config.KommoFieldIDs {
	return c.fields
}

// GetLead fetches a lead with its linked contacts.
func (c *Client) GetLead(ctx context.Context, leadID int64) (*Lead, error) {
	query := url.Values{}
	query.Set("with", "contacts")

	var lead Lead
	if err := c.request(ctx, http.MethodGet, fmt.Sprintf("/leads/%d", leadID), query, nil, &lead); err != nil {
		return nil, err
	}
	return &lead, nil
}

// GetContact fetches a contact by ID.
func (c *Client) GetContact(ctx context.Context, contactID int64) (*Contact, error) {
	var contact Contact
	if err := c.request(ctx, http.MethodGet, fmt.Sprintf("/contacts/%d", contactID), nil, nil, &contact); err != nil {
		return nil, err
	}
	return &contact, nil
}

// UpdateLeadFields patches custom field values onto a lead.
func (c *Client) UpdateLeadFields(ctx context.Context, leadID int64, fields []CustomFieldValue) error {
	body := map[string]interface{}{"custom_fields_values": fields}
	return c.request(ctx, http.MethodPatch, fmt.Sprintf("/leads/%d", leadID), nil, body, nil)
}

// ContactInfo resolves the email and phone of a lead's primary contact using
// the configured contact field IDs.
func (c *Client) ContactInfo(ctx context.Context, lead *Lead) (ContactInfo, error) {
	if len(lead.Embedded.Contacts) == 0 {
		return ContactInfo{}, apperr.NotFound("lead has no linked contact").WithOp("kommo.ContactInfo")
	}

	contact, err := c.GetContact(ctx, lead.Embedded.Contacts[0].ID)
	if err != nil {
		return ContactInfo{}, err
	}

	return ContactInfo{
		Email: contact.FieldValue(c.fields.Email),
		Phone: contact.FieldValue(c.fields.Phone),
	}, nil
}

type unsortedResponse struct {
	Embedded struct {
		Unsorted []struct {
			Embedded struct {
				Leads []struct {
					ID int64 `json:"id"`
				} `json:"leads"`
			} `json:"_embedded"`
		} `json:"unsorted"`
	} `json:"_embedded"`
}

// GetLatestIncomingLeadID returns the most recent unsorted incoming lead in
// the target pipeline. Used as a fallback when a webhook carries no lead ID.
func (c *Client) GetLatestIncomingLeadID(ctx context.Context) (int64, error) {
	query := url.Values{}
	query.Set("limit", "10")
	query.Set("page", "1")
	query.Set("order[created_at]", "desc")
	if c.targetPipelineID != 0 {
		query.Set("filter[pipeline_id]", fmt.Sprintf("%d", c.targetPipelineID))
	}

	var payload unsortedResponse
	if err := c.request(ctx, http.MethodGet, "/leads/unsorted", query, nil, &payload); err != nil {
		return 0, err
	}

	for _, unsorted := range payload.Embedded.Unsorted {
		if len(unsorted.Embedded.Leads) > 0 {
			return unsorted.Embedded.Leads[0].ID, nil
		}
	}
	return 0, apperr.NotFound("no incoming leads found").WithOp("kommo.GetLatestIncomingLeadID")
}

func (c *Client) request(ctx context.Context, method, endpoint string, query url.Values, body, out interface{}) error {
	op := "kommo." + method + " " + endpoint

	reqURL := c.baseURL + endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "encode request body", err).WithOp(op)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "build request", err).WithOp(op)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.UpstreamError("kommo", op, err)
		return apperr.Wrap(apperr.KindTransient, "kommo request failed", err).WithOp(op)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := classifyStatus(resp.StatusCode, strings.TrimSpace(string(data))).WithOp(op)
		c.log.UpstreamError("kommo", op, err)
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperr.Wrap(apperr.KindTransient, "decode kommo response", err).WithOp(op)
		}
	}
	return nil
}

func classifyStatus(status int, body string) *apperr.Error {
	message := fmt.Sprintf("kommo returned %d", status)
	if body != "" {
		message = fmt.Sprintf("%s: %s", message, body)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperr.UpstreamAuth(message)
	case status == http.StatusNotFound:
		return apperr.NotFound(message)
	case status == http.StatusTooManyRequests:
		return apperr.RateLimited(message)
	case status >= http.StatusInternalServerError:
		return apperr.Transient(message)
	default:
		return apperr.BadRequest(message)
	}
}
