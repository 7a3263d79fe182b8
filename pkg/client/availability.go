package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/model"
	"time"
)

const TenantHeader = "X-Tenant-ID"

// AvailabilityClient calls the availability service's evaluation endpoint.
type AvailabilityClient struct {
	httpClient *HttpClient
}

func NewAvailabilityClient(baseURL string, timeout time.Duration) *AvailabilityClient {
	return &AvailabilityClient{
		httpClient: NewHttpClient(baseURL, timeout),
	}
}

// Evaluate asks for a verdict over window as seen at now, so the calendar's booking
// horizon applies.
func (c *AvailabilityClient) Evaluate(ctx context.Context, tenantID, calendarID string, window model.Window, now time.Time) (*model.Verdict, error) {
	q := url.Values{}
	q.Set("start", window.Start.UTC().Format(time.RFC3339))
	q.Set("end", window.End.UTC().Format(time.RFC3339))
	q.Set("now", now.UTC().Format(time.RFC3339))
	path := fmt.Sprintf("/api/v1/calendars/%s/availability?%s", url.PathEscape(calendarID), q.Encode())

	resp, err := c.httpClient.GET(ctx, path, map[string]string{TenantHeader: tenantID})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.NotFoundWithID("Calendar", calendarID)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("availability evaluation failed with status %d: %s", resp.StatusCode, GetErrorMessage(resp))
	}

	var body struct {
		Data model.Verdict `json:"data"`
	}
	if err := resp.DecodeJSON(&body); err != nil {
		return nil, fmt.Errorf("failed to decode verdict: %w", err)
	}
	return &body.Data, nil
}
