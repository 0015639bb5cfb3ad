// Package remote is the http client for the entries backend.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	lcerrs "github.com/jdholdren/linkcal/internal/errors"
	"github.com/jdholdren/linkcal/internal/linkcal"
)

type (
	// ValidationError is the backend turning a request down. Sending the same
	// request again won't help.
	ValidationError struct {
		Status  int
		Message string
	}

	// ConnectivityError is the backend being unreachable or failing. Writes
	// that hit one stay pending and are retried later.
	ConnectivityError struct {
		Err error
	}
)

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rejected (%d): %s", e.Status, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return linkcal.ErrValidation
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("cloud unavailable: %s", e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// IsConnectivity reports whether err means the backend couldn't be reached.
func IsConnectivity(err error) bool {
	var cErr *ConnectivityError
	return errors.As(err, &cErr)
}

// Client talks to the entries backend.
type Client struct {
	baseURL string
	httpCli *http.Client
}

// New creates a client for the backend at baseURL, e.g. https://example.com/api.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCli: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, into any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		byts, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error encoding request: %s", err)
		}
		reqBody = bytes.NewReader(byts)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return fmt.Errorf("error creating request: %s", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return &ConnectivityError{Err: err}
	}
	defer resp.Body.Close()

	byts, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ConnectivityError{Err: fmt.Errorf("error reading response: %w", err)}
	}

	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
		var apiErr lcerrs.Error
		if err := json.Unmarshal(byts, &apiErr); err == nil && apiErr.Message() != "" {
			msg = apiErr.Message()
		}
		if resp.StatusCode >= 500 {
			return &ConnectivityError{Err: errors.New(msg)}
		}
		return &ValidationError{Status: resp.StatusCode, Message: msg}
	}

	if into == nil || len(byts) == 0 {
		return nil
	}
	if err := json.Unmarshal(byts, into); err != nil {
		return &ConnectivityError{Err: fmt.Errorf("error decoding response: %w", err)}
	}

	return nil
}

type (
	entriesResp struct {
		Entries []linkcal.Entry `json:"entries"`
	}

	entryReq struct {
		Date  string `json:"date"`
		Title string `json:"title"`
		URL   string `json:"url"`
	}

	singleReq struct {
		CalendarID string `json:"calendarId"`
		entryReq
	}

	batchReq struct {
		CalendarID string     `json:"calendarId"`
		Entries    []entryReq `json:"entries"`
	}

	singleResp struct {
		Entry   *linkcal.Entry `json:"entry"`
		Deleted bool           `json:"deleted"`
	}
)

// FetchMonth returns the calendar's entries for a YYYY-MM month, oldest first.
func (c *Client) FetchMonth(ctx context.Context, calendarID, month string) ([]linkcal.Entry, error) {
	var resp entriesResp
	if err := c.do(ctx, http.MethodGet, "/entries", url.Values{
		"calendarId": {calendarID},
		"month":      {month},
	}, nil, &resp); err != nil {
		return nil, err
	}

	return resp.Entries, nil
}

// UpsertEntry writes a single day. The stored entry comes back, or nil when
// the write deleted the day.
func (c *Client) UpsertEntry(ctx context.Context, calendarID string, entry linkcal.Entry) (*linkcal.Entry, error) {
	var resp singleResp
	if err := c.do(ctx, http.MethodPost, "/entries", nil, singleReq{
		CalendarID: calendarID,
		entryReq:   entryReq{Date: entry.Date, Title: entry.Title, URL: entry.URL},
	}, &resp); err != nil {
		return nil, err
	}
	if resp.Deleted {
		return nil, nil
	}

	return resp.Entry, nil
}

// UpsertBatch writes up to [linkcal.MaxBatchSize] days atomically. Empty
// entries delete their day.
func (c *Client) UpsertBatch(ctx context.Context, calendarID string, entries []linkcal.Entry) error {
	if len(entries) > linkcal.MaxBatchSize {
		return &ValidationError{Status: http.StatusBadRequest, Message: fmt.Sprintf("Too many entries (max %d).", linkcal.MaxBatchSize)}
	}

	req := batchReq{
		CalendarID: calendarID,
		Entries:    make([]entryReq, 0, len(entries)),
	}
	for _, e := range entries {
		req.Entries = append(req.Entries, entryReq{Date: e.Date, Title: e.Title, URL: e.URL})
	}

	return c.do(ctx, http.MethodPost, "/entries", nil, req, nil)
}

// Export dumps the whole calendar.
func (c *Client) Export(ctx context.Context, calendarID string) (linkcal.Export, error) {
	var resp linkcal.Export
	if err := c.do(ctx, http.MethodGet, "/export", url.Values{"calendarId": {calendarID}}, nil, &resp); err != nil {
		return linkcal.Export{}, err
	}

	return resp, nil
}

// Health checks that the backend is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}
