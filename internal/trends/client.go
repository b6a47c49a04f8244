package trends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	explorePath   = "/trends/api/explore"
	multilinePath = "/trends/api/widgetdata/multiline"

	// MaxQueriesPerRequest is the provider's comparison limit per request.
	MaxQueriesPerRequest = 5

	timeseriesWidgetID = "TIMESERIES"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

// Client fetches interest-over-time data for a group of queries.
type Client interface {
	// InterestOverTime returns a date-indexed table with one column per
	// query. At most MaxQueriesPerRequest queries may be passed.
	InterestOverTime(ctx context.Context, queries []string, timeframe Timeframe) (*InterestTable, error)
}

// ClientConfig holds the settings for the HTTP client.
type ClientConfig struct {
	BaseURL           string
	HostLanguage      string
	TimezoneOffset    int
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// HTTPClient talks to the Google Trends JSON endpoints. Requests are
// rate limited and share a cookie jar, since the provider requires the
// consent cookie it sets on the first visit.
type HTTPClient struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	bootstrapOnce sync.Once
	bootstrapErr  error
}

// NewHTTPClient creates a client for the Trends API.
func NewHTTPClient(cfg ClientConfig, logger *slog.Logger) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("trends: base URL is required")
	}
	if cfg.HostLanguage == "" {
		cfg.HostLanguage = "en-US"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 0.5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("trends: create cookie jar: %w", err)
	}

	return &HTTPClient{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger.With(slog.String("component", "trends_client")),
	}, nil
}

// InterestOverTime implements Client. It resolves a timeseries widget
// token through the explore endpoint and then fetches the multiline
// widget data it points at.
func (c *HTTPClient) InterestOverTime(ctx context.Context, queries []string, timeframe Timeframe) (*InterestTable, error) {
	if len(queries) == 0 {
		return nil, ErrNoQueries
	}
	if len(queries) > MaxQueriesPerRequest {
		return nil, fmt.Errorf("%w: got %d, limit %d", ErrTooManyQueries, len(queries), MaxQueriesPerRequest)
	}

	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}

	widget, err := c.explore(ctx, queries, timeframe)
	if err != nil {
		return nil, err
	}

	table, err := c.fetchMultiline(ctx, widget, queries)
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "interest over time fetched",
		slog.Int("queries", len(queries)),
		slog.Int("points", len(table.Dates)),
		slog.String("timeframe", timeframe.String()),
	)

	return table, nil
}

// ensureSession performs a one-time visit to the Trends front page so
// the provider's session cookie lands in the jar.
func (c *HTTPClient) ensureSession(ctx context.Context) error {
	c.bootstrapOnce.Do(func() {
		if err := c.limiter.Wait(ctx); err != nil {
			c.bootstrapErr = err
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/?geo=US", nil)
		if err != nil {
			c.bootstrapErr = fmt.Errorf("trends: build session request: %w", err)
			return
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			c.bootstrapErr = fmt.Errorf("trends: establish session: %w", err)
			return
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		c.logger.DebugContext(ctx, "trends session established",
			slog.Int("status", resp.StatusCode),
			slog.Int("cookies", len(resp.Cookies())),
		)
	})
	return c.bootstrapErr
}

// exploreWidget is one entry of the explore response's widget list.
type exploreWidget struct {
	ID      string          `json:"id"`
	Token   string          `json:"token"`
	Request json.RawMessage `json:"request"`
}

type exploreResponse struct {
	Widgets []exploreWidget `json:"widgets"`
}

// comparisonItem is one keyword entry in the explore request payload.
type comparisonItem struct {
	Keyword string `json:"keyword"`
	Geo     string `json:"geo"`
	Time    string `json:"time"`
}

type exploreRequest struct {
	ComparisonItem []comparisonItem `json:"comparisonItem"`
	Category       int              `json:"category"`
	Property       string           `json:"property"`
}

// explore resolves the widget token for an interest-over-time request.
func (c *HTTPClient) explore(ctx context.Context, queries []string, timeframe Timeframe) (*exploreWidget, error) {
	items := make([]comparisonItem, len(queries))
	for i, q := range queries {
		items[i] = comparisonItem{Keyword: q, Geo: "", Time: timeframe.String()}
	}

	reqPayload, err := json.Marshal(exploreRequest{ComparisonItem: items, Category: 0, Property: ""})
	if err != nil {
		return nil, fmt.Errorf("trends: marshal explore request: %w", err)
	}

	params := url.Values{}
	params.Set("hl", c.cfg.HostLanguage)
	params.Set("tz", strconv.Itoa(c.cfg.TimezoneOffset))
	params.Set("req", string(reqPayload))

	body, err := c.do(ctx, http.MethodPost, explorePath, params)
	if err != nil {
		return nil, err
	}

	var parsed exploreResponse
	if err := json.Unmarshal(stripJSONPrefix(body), &parsed); err != nil {
		return nil, fmt.Errorf("trends: decode explore response: %w", err)
	}

	for i := range parsed.Widgets {
		if parsed.Widgets[i].ID == timeseriesWidgetID {
			return &parsed.Widgets[i], nil
		}
	}
	return nil, ErrNoTimeseriesWidget
}

// timelinePoint is one row of the multiline widget data.
type timelinePoint struct {
	Time      string `json:"time"`
	Value     []int  `json:"value"`
	HasData   []bool `json:"hasData"`
	IsPartial bool   `json:"isPartial"`
}

type multilineResponse struct {
	Default struct {
		TimelineData []timelinePoint `json:"timelineData"`
	} `json:"default"`
}

// fetchMultiline downloads the widget data and converts it into an
// InterestTable. The provider's partial-period marker is discarded.
func (c *HTTPClient) fetchMultiline(ctx context.Context, widget *exploreWidget, queries []string) (*InterestTable, error) {
	params := url.Values{}
	params.Set("hl", c.cfg.HostLanguage)
	params.Set("tz", strconv.Itoa(c.cfg.TimezoneOffset))
	params.Set("req", string(widget.Request))
	params.Set("token", widget.Token)

	body, err := c.do(ctx, http.MethodGet, multilinePath, params)
	if err != nil {
		return nil, err
	}

	var parsed multilineResponse
	if err := json.Unmarshal(stripJSONPrefix(body), &parsed); err != nil {
		return nil, fmt.Errorf("trends: decode multiline response: %w", err)
	}

	points := parsed.Default.TimelineData
	table := &InterestTable{
		Dates:   make([]time.Time, 0, len(points)),
		Columns: make([]Column, len(queries)),
	}
	for i, q := range queries {
		table.Columns[i] = Column{
			Query:  q,
			Scores: make([]Score, 0, len(points)),
		}
	}

	for _, p := range points {
		sec, err := strconv.ParseInt(p.Time, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("trends: invalid timestamp %q: %w", p.Time, err)
		}
		table.Dates = append(table.Dates, time.Unix(sec, 0).UTC())

		for i := range queries {
			score := Score{}
			if i < len(p.Value) {
				score.Value = p.Value[i]
				score.Valid = true
				if i < len(p.HasData) && !p.HasData[i] {
					score.Valid = false
					score.Value = 0
				}
			}
			table.Columns[i].Scores = append(table.Columns[i].Scores, score)
		}
	}

	return table, nil
}

// do executes one rate-limited request against the Trends API and
// returns the raw response body.
func (c *HTTPClient) do(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := c.cfg.BaseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("trends: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trends: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("trends: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Endpoint: path, Code: resp.StatusCode}
	}

	return body, nil
}

// stripJSONPrefix drops the anti-XSSI prefix the Trends endpoints
// prepend to their JSON bodies, such as ")]}'," or ")]}'\n".
func stripJSONPrefix(body []byte) []byte {
	if i := bytes.IndexAny(body, "{["); i > 0 {
		return body[i:]
	}
	return body
}
