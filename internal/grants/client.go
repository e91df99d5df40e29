package grants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/award-ingestor/internal/clock"
	"github.com/JakeFAU/award-ingestor/internal/metrics"
)

// DefaultBaseURL is the HigherGov grant search endpoint.
const DefaultBaseURL = "https://www.highergov.com/api-external/grant/"

// DefaultPageSize is the number of records requested per page.
const DefaultPageSize = 100

// Config controls how the client talks to the grants API.
type Config struct {
	BaseURL   string
	APIKey    string
	UserAgent string
	PageSize  int
	// PageDelay is slept between consecutive page requests for the same day.
	PageDelay time.Duration
	Timeout   time.Duration
}

// Limiter throttles outbound requests. *ratelimit.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// StatusError reports a non-200 response from the API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("grants api status %d", e.Code)
	}
	return fmt.Sprintf("grants api status %d: %s", e.Code, e.Body)
}

// DayResult is the outcome of paginating one calendar day. Records holds
// everything collected before pagination stopped; Err is set when it stopped
// early because of a failed page.
type DayResult struct {
	Day     string
	Records []Record
	Pages   int
	Err     error
}

// Truncated reports whether pagination was cut short by an error.
func (r DayResult) Truncated() bool {
	return r.Err != nil
}

// Client pages through the grant search endpoint. It is safe for concurrent
// use by multiple day workers; they share one *http.Client.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter Limiter
	logger  *zap.Logger
}

// NewHTTPClient builds the shared transport used for all API calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// NewClient constructs a Client. httpClient and limiter may be nil.
func NewClient(cfg Config, httpClient *http.Client, limiter Limiter, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(cfg.Timeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// FetchDay pages through all awards last modified on day (YYYY-MM-DD).
// Pagination stops when a page is short, next_page is empty, or a request
// fails; in the last case the records from earlier pages are kept and the
// failure is reported in DayResult.Err. No retries are attempted.
func (c *Client) FetchDay(ctx context.Context, day, searchID string) DayResult {
	res := DayResult{Day: day}
	for page := 1; ; page++ {
		records, more, err := c.fetchPage(ctx, day, searchID, page)
		if err != nil {
			c.logger.Warn("page fetch failed; keeping earlier pages",
				zap.String("day", day),
				zap.Int("page", page),
				zap.Int("records_kept", len(res.Records)),
				zap.Error(err),
			)
			res.Err = fmt.Errorf("fetch %s page %d: %w", day, page, err)
			break
		}
		res.Records = append(res.Records, records...)
		res.Pages++
		if !more {
			break
		}
		if err := clock.Pause(ctx, c.cfg.PageDelay); err != nil {
			res.Err = fmt.Errorf("fetch %s after page %d: %w", day, page, err)
			break
		}
	}
	metrics.ObserveDayFetch(res.Truncated())
	c.logger.Debug("day fetched",
		zap.String("day", day),
		zap.Int("pages", res.Pages),
		zap.Int("records", len(res.Records)),
	)
	return res
}

func (c *Client) fetchPage(ctx context.Context, day, searchID string, page int) ([]Record, bool, error) {
	endpoint := c.pageURL(day, searchID, page)
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, endpoint); err != nil {
			metrics.ObserveAPIPage("canceled", 0)
			return nil, false, err //nolint:wrapcheck
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		metrics.ObserveAPIPage("error", 0)
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveAPIPage("error", 0)
		return nil, false, fmt.Errorf("do request: %w", redactKey(err, c.cfg.APIKey))
	}
	defer resp.Body.Close() //nolint:errcheck // body fully consumed below

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.ObserveAPIPage(strconv.Itoa(resp.StatusCode), 0)
		return nil, false, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var body searchPage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		metrics.ObserveAPIPage("decode_error", 0)
		return nil, false, fmt.Errorf("decode page: %w", err)
	}

	records := make([]Record, 0, len(body.Results))
	for _, a := range body.Results {
		records = append(records, a.normalize())
	}
	metrics.ObserveAPIPage("ok", len(records))

	more := len(body.Results) >= c.cfg.PageSize && hasNextPage(body.NextPage)
	return records, more, nil
}

func (c *Client) pageURL(day, searchID string, page int) string {
	u, _ := url.Parse(c.cfg.BaseURL) // validated in NewClient
	q := u.Query()
	q.Set("api_key", c.cfg.APIKey)
	q.Set("search_id", searchID)
	q.Set("last_modified_date", day)
	q.Set("page_size", strconv.Itoa(c.cfg.PageSize))
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// redactKey strips the API key from transport errors, which embed the request URL.
func redactKey(err error, key string) error {
	if key == "" {
		return err
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		uerr.URL = strings.ReplaceAll(uerr.URL, url.QueryEscape(key), "REDACTED")
	}
	return err
}
