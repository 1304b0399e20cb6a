package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/air-quality-map/internal/airquality"
	"github.com/i474232898/air-quality-map/internal/metrics"
)

// DefaultWAQIBaseURL is the public World Air Quality Index API.
const DefaultWAQIBaseURL = "https://api.waqi.info"

// WAQIProvider implements the airquality.Provider interface for api.waqi.info.
type WAQIProvider struct {
	name     string
	token    string
	baseURL  string
	client   *http.Client
	backoff  BackoffConfig
	breakers *breakers
}

// WAQIOption customises a WAQIProvider.
type WAQIOption func(*WAQIProvider)

// WithBaseURL points the provider at a different API root.
func WithBaseURL(u string) WAQIOption {
	return func(p *WAQIProvider) {
		if u != "" {
			p.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithBackoff enables retries.
func WithBackoff(b BackoffConfig) WAQIOption {
	return func(p *WAQIProvider) {
		p.backoff = b
	}
}

// WithBreakerTimeout sets how long an open breaker rejects queries to its target.
func WithBreakerTimeout(d time.Duration) WAQIOption {
	return func(p *WAQIProvider) {
		if d > 0 {
			p.breakers.timeout = d
		}
	}
}

func NewWAQIProvider(client *http.Client, token string, opts ...WAQIOption) *WAQIProvider {
	p := &WAQIProvider{
		name:    "waqi",
		token:   token,
		baseURL: DefaultWAQIBaseURL,
		client:  client,
		backoff: BackoffConfig{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		breakers: newBreakers("waqi", 2*time.Minute),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *WAQIProvider) Name() string {
	return p.name
}

// waqiEnvelope is the outer shape of every WAQI response. Data is an array,
// an object or, when Status is "error", a message string.
type waqiEnvelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type waqiStation struct {
	Lat float64    `json:"lat"`
	Lon float64    `json:"lon"`
	AQI flexNumber `json:"aqi"`
}

type waqiFeed struct {
	IAQI struct {
		PM25 *struct {
			V *float64 `json:"v"`
		} `json:"pm25"`
	} `json:"iaqi"`
}

// FetchBounds queries the map/bounds endpoint and returns one heat point per station.
func (p *WAQIProvider) FetchBounds(ctx context.Context, b airquality.Bounds) ([]airquality.HeatPoint, error) {
	start := time.Now()
	points, err := p.fetchBounds(ctx, b)
	observe("bounds", start, err)
	return points, err
}

func (p *WAQIProvider) fetchBounds(ctx context.Context, b airquality.Bounds) ([]airquality.HeatPoint, error) {
	latlng := fmt.Sprintf("%g,%g,%g,%g", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)

	env, err := p.get(ctx, "bounds", "/map/bounds/", url.Values{"latlng": {latlng}})
	if err != nil {
		return nil, err
	}

	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || data[0] != '[' {
		return nil, fmt.Errorf("bounds: %w: data is not an array", airquality.ErrUnexpectedPayload)
	}

	var stations []waqiStation
	if err := json.Unmarshal(data, &stations); err != nil {
		return nil, fmt.Errorf("bounds: %w: %v", airquality.ErrUnexpectedPayload, err)
	}

	points := make([]airquality.HeatPoint, 0, len(stations))
	for _, s := range stations {
		points = append(points, airquality.HeatPoint{
			Lat:       s.Lat,
			Lon:       s.Lon,
			Intensity: float64(s.AQI),
		})
	}
	return points, nil
}

// FetchPM25 queries the station feed nearest to loc and returns iaqi.pm25.v.
func (p *WAQIProvider) FetchPM25(ctx context.Context, loc airquality.Location) (float64, error) {
	start := time.Now()
	v, err := p.fetchPM25(ctx, loc)
	observe("feed", start, err)
	return v, err
}

func (p *WAQIProvider) fetchPM25(ctx context.Context, loc airquality.Location) (float64, error) {
	env, err := p.get(ctx, loc.String(), "/feed/"+loc.String()+"/", url.Values{})
	if err != nil {
		return 0, err
	}

	var feed waqiFeed
	if err := json.Unmarshal(env.Data, &feed); err != nil {
		return 0, fmt.Errorf("feed %s: %w: %v", loc.Name, airquality.ErrUnexpectedPayload, err)
	}
	if feed.IAQI.PM25 == nil || feed.IAQI.PM25.V == nil {
		return 0, fmt.Errorf("feed %s: %w", loc.Name, airquality.ErrMissingReading)
	}
	return *feed.IAQI.PM25.V, nil
}

// get performs a GET against path through target's breaker and decodes the
// response envelope.
func (p *WAQIProvider) get(ctx context.Context, target, path string, values url.Values) (waqiEnvelope, error) {
	if p.token == "" {
		return waqiEnvelope{}, fmt.Errorf("waqi api token is not configured")
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values.Set("token", p.token)
		u := fmt.Sprintf("%s%s?%s", p.baseURL, path, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := do(ctx, p.client, p.backoff, p.breakers.get(target), buildRequest)
	if err != nil {
		return waqiEnvelope{}, err
	}
	defer resp.Body.Close()

	var env waqiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return waqiEnvelope{}, fmt.Errorf("%w: %v", airquality.ErrUnexpectedPayload, err)
	}

	if env.Status == "error" {
		var msg string
		_ = json.Unmarshal(env.Data, &msg)
		if isTokenError(msg) {
			return waqiEnvelope{}, fmt.Errorf("%w: %s", ErrInvalidToken, msg)
		}
		return waqiEnvelope{}, fmt.Errorf("%w: %s", ErrProviderStatus, msg)
	}

	return env, nil
}

func isTokenError(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "invalid key") || strings.Contains(msg, "token")
}

func observe(query string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.UpstreamRequests.WithLabelValues(query, outcome).Inc()
	metrics.UpstreamDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
}

// flexNumber decodes a JSON number or a numeric string. WAQI reports
// stations without a current index as "-", which decodes to zero.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			*n = 0
			return nil
		}
		*n = flexNumber(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = flexNumber(v)
	return nil
}
