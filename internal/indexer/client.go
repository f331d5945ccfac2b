package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"SwapLedger/internal/event"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// Client implements Source against the indexer's HTTP JSON API, retrying
// transient failures with exponential backoff.
type Client struct {
	baseURL     string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiResponse is the indexer's uniform envelope: code 0 means success.
type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type eventListData struct {
	Total int64             `json:"total"`
	List  []json.RawMessage `json:"list"`
}

type tickInfoData struct {
	Ticker  string `json:"ticker"`
	Decimal int32  `json:"decimal"`
}

type bestHeightData struct {
	Height int64 `json:"height"`
}

// EventList fetches one cursor page of module events.
func (c *Client) EventList(ctx context.Context, moduleID string, startHeight int64, cursor, size int64) (*EventPage, error) {
	params := url.Values{}
	params.Set("module", moduleID)
	params.Set("start", strconv.FormatInt(startHeight, 10))
	params.Set("cursor", strconv.FormatInt(cursor, 10))
	params.Set("size", strconv.FormatInt(size, 10))

	var data eventListData
	if err := c.get(ctx, "/v1/indexer/brc20-module/history?"+params.Encode(), &data); err != nil {
		return nil, fmt.Errorf("event list: %w", err)
	}

	page := &EventPage{Total: data.Total, List: make([]*event.OpEvent, 0, len(data.List))}
	for i, raw := range data.List {
		ev, err := event.ParseOpEvent(raw)
		if err != nil {
			return nil, fmt.Errorf("event list item %d (cursor %d): %w", i, cursor, err)
		}
		page.List = append(page.List, ev)
	}
	return page, nil
}

// TickInfo fetches metadata for one tick.
func (c *Client) TickInfo(ctx context.Context, tick string) (*TickInfo, error) {
	var data tickInfoData
	path := "/v1/indexer/brc20/" + url.PathEscape(tick) + "/info"
	if err := c.get(ctx, path, &data); err != nil {
		return nil, fmt.Errorf("tick info %s: %w", tick, err)
	}
	return &TickInfo{Ticker: data.Ticker, Decimal: data.Decimal}, nil
}

// BestHeight fetches the current chain head height.
func (c *Client) BestHeight(ctx context.Context) (int64, error) {
	var data bestHeightData
	if err := c.get(ctx, "/v1/indexer/brc20/bestheight", &data); err != nil {
		return 0, fmt.Errorf("best height: %w", err)
	}
	return data.Height, nil
}

// get performs a GET with retries and exponential backoff. Only transport
// errors and 5xx responses retry; API-level errors (non-zero code) do not.
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	var lastErr error
	delay := c.retryDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		err := c.doGet(ctx, path, out)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("after %d retries: %w", c.maxRetries, lastErr)
}

type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http status %d", e.status)
}

func isRetryable(err error) bool {
	if se, ok := err.(*httpStatusError); ok {
		return se.status >= 500 || se.status == http.StatusTooManyRequests
	}
	if _, ok := err.(*apiError); ok {
		return false
	}
	// Transport-level failures (timeouts, resets) retry.
	return true
}

type apiError struct {
	code int
	msg  string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.code, e.msg)
}

func (c *Client) doGet(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &httpStatusError{status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Code != 0 {
		return &apiError{code: envelope.Code, msg: envelope.Msg}
	}
	return json.Unmarshal(envelope.Data, out)
}
