// Package botapi is the HTTP client for the bot API: the fetchEvents long poll
// plus the REST calls handler actions use to answer.
package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// LibraryVersion is reported in the User-Agent header.
const LibraryVersion = "1.0.0"

const (
	DefaultBaseURL     = "https://botapi.icq.net"
	DefaultTimeout     = 20 * time.Second
	DefaultPollTimeout = 60 * time.Second
	DefaultWrapLength  = 5000

	maxErrorBody = 512
)

// SentRecorder is told about every text message the client sent successfully.
type SentRecorder interface {
	RecordSent(msgID, text string)
}

// Client talks to one bot account. Safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	http       *http.Client
	timeout    time.Duration
	wrapLength int
	limiter    *rate.Limiter
	recorder   SentRecorder
	debug      bool

	name    string
	version string

	mu   sync.RWMutex
	uin  string
	nick string
}

// Option configures a Client.
type Option func(*Client)

func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithHTTPClient replaces the underlying client. Its Timeout should be zero or
// longer than the poll timeout, since fetchEvents holds requests open.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the deadline of ordinary requests. Long polls get it on
// top of the poll timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithWrapLength sets the maximum length, in characters, of one sent message.
func WithWrapLength(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.wrapLength = n
		}
	}
}

// WithSendRate limits outgoing messages to perSecond, allowing bursts of
// burst. A non-positive rate means unlimited.
func WithSendRate(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithSentRecorder(r SentRecorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithAgent sets the application name and version sent in the User-Agent.
func WithAgent(name, version string) Option {
	return func(c *Client) {
		if name != "" {
			c.name = name
		}
		if version != "" {
			c.version = version
		}
	}
}

// WithDebugLogging dumps every request and response at debug level.
func WithDebugLogging() Option {
	return func(c *Client) { c.debug = true }
}

// New creates a client for the bot identified by token.
func New(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
		token:      token,
		timeout:    DefaultTimeout,
		wrapLength: DefaultWrapLength,
		name:       "goicq-bot",
		version:    LibraryVersion,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.debug {
		hc := *c.http
		hc.Transport = newLoggingTransport(hc.Transport, c.token)
		c.http = &hc
	}
	return c, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.baseURL }

// SetIdentity records the bot's own uin and nick, as reported by myInfo.
func (c *Client) SetIdentity(uin, nick string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uin, c.nick = uin, nick
}

// Identity returns the uin and nick set by SetIdentity.
func (c *Client) Identity() (uin, nick string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.uin, c.nick
}

// UserAgent renders the User-Agent header for the current identity.
func (c *Client) UserAgent() string {
	uin, nick := c.Identity()
	return fmt.Sprintf("%s/%s (uin=%s; nick=%s) goicq/%s", c.name, c.version, uin, nick, LibraryVersion)
}

func requestID() string { return uuid.NewString() }

// baseParams returns the r/aimsid pair most endpoints expect.
func (c *Client) baseParams() url.Values {
	v := url.Values{}
	v.Set("r", requestID())
	v.Set("aimsid", c.token)
	return v
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.UserAgent())
	return req, nil
}

// do sends req and returns the body of a 2xx response. Other statuses become
// an *APIError.
func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		desc := strings.TrimSpace(string(data))
		if len(desc) > maxErrorBody {
			desc = desc[:maxErrorBody]
		}
		return nil, &APIError{Method: op, StatusCode: resp.StatusCode, Description: desc}
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, op, path string, params url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.endpoint(path)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, op)
}

func (c *Client) postForm(ctx context.Context, op, path string, form url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint(path), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, op)
}

func (c *Client) postJSON(ctx context.Context, op, path string, body any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, op)
}

// envelope is the wrapper around most WIM responses.
type envelope struct {
	Response struct {
		StatusCode int             `json:"statusCode"`
		StatusText string          `json:"statusText"`
		Data       json.RawMessage `json:"data"`
	} `json:"response"`
}

// unwrap decodes the envelope of body, checks its status and returns data.
func unwrap(op string, body []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	if env.Response.StatusCode != http.StatusOK {
		return nil, &APIError{Method: op, StatusCode: env.Response.StatusCode, Description: env.Response.StatusText}
	}
	return env.Response.Data, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send rate limit: %w", err)
	}
	return nil
}
