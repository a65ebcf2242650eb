// Package osm is the typed client for the OpenSenseMap public HTTP API
// (spec.md §4.1, component C2). It only reads and parses; it never writes.
package osm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Datata1/umweltmonitoring/internal/retry"
)

const defaultBaseURL = "https://api.opensensemap.org"

// Client talks to the OpenSenseMap API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL (used by tests against httptest).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client pointed at the public OpenSenseMap API by default.
func New(opts ...Option) *Client {
	c := &Client{baseURL: defaultBaseURL, httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchBoxMetadata implements GET /boxes/{box_id} with a 30s timeout and up
// to 3 attempts (spec §4.1).
func (c *Client) FetchBoxMetadata(ctx context.Context, boxID string) (*BoxMeta, error) {
	if boxID == "" {
		return nil, retry.Permanent(errors.New("osm: box_id must not be empty"))
	}

	var meta *BoxMeta
	err := retry.Do(ctx, 3, time.Second, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		u := fmt.Sprintf("%s/boxes/%s", c.baseURL, url.PathEscape(boxID))
		body, status, err := c.doGet(reqCtx, u, nil)
		if err != nil {
			return classifyAndWrap(err)
		}
		if status != http.StatusOK {
			return classifyStatus(status, body)
		}

		var raw rawBox
		if err := json.Unmarshal(body, &raw); err != nil {
			return &DecodeError{Err: err}
		}
		meta = raw.toBoxMeta()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return meta, nil
}

// FetchMeasurements implements GET /boxes/{box_id}/data/{sensor_id} with a
// 60s timeout and up to 2 attempts (spec §4.1). fromUTC/toUTC are
// formatted as RFC 3339 with millisecond precision per the API contract.
func (c *Client) FetchMeasurements(ctx context.Context, boxID, sensorID string, fromUTC, toUTC time.Time) ([]Measurement, error) {
	var out []Measurement
	err := retry.Do(ctx, 2, 2*time.Second, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()

		u := fmt.Sprintf("%s/boxes/%s/data/%s", c.baseURL, url.PathEscape(boxID), url.PathEscape(sensorID))
		params := url.Values{
			"from-date": {FormatAPIDate(fromUTC)},
			"to-date":   {FormatAPIDate(toUTC)},
			"format":    {"json"},
		}
		body, status, err := c.doGet(reqCtx, u, params)
		if err != nil {
			return classifyAndWrap(err)
		}
		if status != http.StatusOK {
			return classifyStatus(status, body)
		}

		var raw []rawMeasurement
		if err := json.Unmarshal(body, &raw); err != nil {
			return &DecodeError{Err: err}
		}
		out = make([]Measurement, 0, len(raw))
		for _, r := range raw {
			out = append(out, Measurement{CreatedAtRaw: r.CreatedAt, ValueRaw: r.Value})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) doGet(ctx context.Context, rawURL string, params url.Values) ([]byte, int, error) {
	if len(params) > 0 {
		rawURL = rawURL + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, &TimeoutError{Err: err}
		}
		return nil, 0, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &TransportError{Err: err}
	}
	return body, resp.StatusCode, nil
}

func classifyAndWrap(err error) error {
	switch err.(type) {
	case *TransportError, *TimeoutError, *DecodeError:
		return err
	default:
		return &TransportError{Err: err}
	}
}

// classifyStatus maps an HTTP status into a retryable/permanent error per
// spec §4.1: 5xx and 429 are retried, other 4xx are permanent. A 429 is
// retried with the ordinary exponential backoff; any Retry-After header on
// the response is not read (doGet returns only the body and status).
func classifyStatus(status int, body []byte) error {
	statusErr := &HTTPStatusError{Status: status, Body: string(body)}
	if status == http.StatusTooManyRequests || status >= 500 {
		return statusErr
	}
	return retry.Permanent(statusErr)
}

// RetryAfterFromHeader extracts a Retry-After header value (seconds form)
// into a retry.RetryAfter wrapper. Nothing in this module calls it:
// FetchBoxMetadata and FetchMeasurements do not pass response headers to it.
func RetryAfterFromHeader(err error, headerValue string) error {
	if headerValue == "" {
		return err
	}
	if secs, parseErr := strconv.Atoi(headerValue); parseErr == nil {
		return &retry.RetryAfter{Err: err, Delay: time.Duration(secs) * time.Second}
	}
	return err
}

type rawBox struct {
	ID                string       `json:"_id"`
	Name              string       `json:"name"`
	Exposure          string       `json:"exposure"`
	Model             string       `json:"model"`
	CurrentLocation   json.RawMessage `json:"currentLocation"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
	LastMeasurementAt *time.Time   `json:"lastMeasurementAt"`
	Sensors           []rawSensor  `json:"sensors"`
}

type rawSensor struct {
	ID         string `json:"_id"`
	Title      string `json:"title"`
	SensorType string `json:"sensorType"`
	Unit       string `json:"unit"`
	Icon       string `json:"icon"`
}

func (r rawBox) toBoxMeta() *BoxMeta {
	sensors := make([]SensorMeta, 0, len(r.Sensors))
	for _, s := range r.Sensors {
		if s.ID == "" {
			continue
		}
		sensors = append(sensors, SensorMeta{ID: s.ID, Title: s.Title, SensorType: s.SensorType, Unit: s.Unit, Icon: s.Icon})
	}
	var last *time.Time
	if r.LastMeasurementAt != nil {
		t := r.LastMeasurementAt.UTC()
		last = &t
	}
	return &BoxMeta{
		ID: r.ID, Name: r.Name, Exposure: r.Exposure, Model: r.Model,
		Location: r.CurrentLocation, CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
		LastMeasurementAt: last, Sensors: sensors,
	}
}

type rawMeasurement struct {
	CreatedAt string `json:"createdAt"`
	Value     string `json:"value"`
}
