// Package weather fetches hourly historical weather variables used by the
// feature pipeline (spec.md §4.6 step 3): humidity, cloud cover, wind speed,
// and GHI, keyed by lat/lon and a date range. It follows the same
// client/retry shape as internal/osm (C2).
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Datata1/umweltmonitoring/internal/retry"
)

const defaultBaseURL = "https://archive-api.open-meteo.com/v1/archive"

// HourlyPoint is one hour's worth of joined weather variables.
type HourlyPoint struct {
	Time        time.Time
	Humidity    float64
	CloudCover  float64
	WindSpeed   float64
	GHI         float64
}

// Client fetches historical hourly weather for a fixed geolocation.
type Client struct {
	baseURL    string
	httpClient *http.Client
	lat, lon   float64
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL (tests).
func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = u } }

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// New creates a Client for the given fixed geolocation (spec §4.6 step 2/3).
func New(lat, lon float64, opts ...Option) *Client {
	c := &Client{baseURL: defaultBaseURL, httpClient: &http.Client{}, lat: lat, lon: lon}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchHourly returns hourly weather points covering [from, to] (inclusive
// dates), with up to 3 attempts on transient failure.
func (c *Client) FetchHourly(ctx context.Context, from, to time.Time) ([]HourlyPoint, error) {
	var out []HourlyPoint
	err := retry.Do(ctx, 3, 2*time.Second, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()

		params := url.Values{
			"latitude":   {fmt.Sprintf("%.6f", c.lat)},
			"longitude":  {fmt.Sprintf("%.6f", c.lon)},
			"start_date": {from.UTC().Format("2006-01-02")},
			"end_date":   {to.UTC().Format("2006-01-02")},
			"hourly":     {"relative_humidity_2m,cloud_cover,wind_speed_10m,shortwave_radiation"},
			"timezone":   {"UTC"},
		}
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
		if err != nil {
			return retry.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return fmt.Errorf("weather: status %d", resp.StatusCode)
			}
			return retry.Permanent(fmt.Errorf("weather: status %d", resp.StatusCode))
		}

		var raw rawResponse
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			return fmt.Errorf("weather: decode: %w", err)
		}
		out = raw.toPoints()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type rawResponse struct {
	Hourly struct {
		Time               []string  `json:"time"`
		Humidity           []float64 `json:"relative_humidity_2m"`
		CloudCover         []float64 `json:"cloud_cover"`
		WindSpeed          []float64 `json:"wind_speed_10m"`
		ShortwaveRadiation []float64 `json:"shortwave_radiation"`
	} `json:"hourly"`
}

func (r rawResponse) toPoints() []HourlyPoint {
	n := len(r.Hourly.Time)
	out := make([]HourlyPoint, 0, n)
	for i := 0; i < n; i++ {
		t, err := time.Parse("2006-01-02T15:04", r.Hourly.Time[i])
		if err != nil {
			continue
		}
		p := HourlyPoint{Time: t.UTC()}
		if i < len(r.Hourly.Humidity) {
			p.Humidity = r.Hourly.Humidity[i]
		}
		if i < len(r.Hourly.CloudCover) {
			p.CloudCover = r.Hourly.CloudCover[i]
		}
		if i < len(r.Hourly.WindSpeed) {
			p.WindSpeed = r.Hourly.WindSpeed[i]
		}
		if i < len(r.Hourly.ShortwaveRadiation) {
			p.GHI = r.Hourly.ShortwaveRadiation[i]
		}
		out = append(out, p)
	}
	return out
}
