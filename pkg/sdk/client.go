// Package sdk is a Go client for the nymph API.
//
// A Client authenticates in one of two modes. ServiceAuth sends the service
// API key and is used for privileged calls such as minting tokens.
// DelegatedAuth acts on behalf of a Discord user: it mints a short-lived
// bearer token through the service key, caches it, and transparently
// re-mints when the server reports the token as bad.
package sdk

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

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/frostu8/nymph/pkg/api"
)

// DefaultRefreshRetries is the number of delegated attempts Send makes
// before giving up.
const DefaultRefreshRetries = 5

// ErrRefreshExhausted is returned when every delegated attempt was rejected
// with BadCredentials.
var ErrRefreshExhausted = errors.New("token refresh retries exhausted")

// UnexpectedResponseError is returned for a non-2xx response whose body is
// not a structured api.Error.
type UnexpectedResponseError struct {
	StatusCode int
	Body       string
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected response %d: %s", e.StatusCode, e.Body)
}

// Request describes one API call. Body, when non-nil, is sent as JSON.
type Request struct {
	Method string
	Path   string
	Body   any
}

// AuthMode decides how a Client authenticates its requests.
type AuthMode interface {
	send(ctx context.Context, c *Client, req *preparedRequest, out any) error
}

// ServiceAuth authenticates with the service API key.
type ServiceAuth struct{}

// DelegatedAuth acts as the Discord user identified by DiscordID.
// DisplayName is used when the user is first provisioned.
type DelegatedAuth struct {
	DiscordID   string
	DisplayName string
}

// cacheKey identifies the user's token in a CredentialCache.
func (d DelegatedAuth) cacheKey() string {
	return discordCacheKey(d.DiscordID)
}

func discordCacheKey(discordID string) string {
	return "discord:" + discordID
}

// ClientOptions configures SDK client construction.
type ClientOptions struct {
	HTTPClient     *http.Client
	Cache          CredentialCache
	RefreshRetries int
	Logger         *zap.Logger
}

// ClientOption mutates ClientOptions.
type ClientOption func(*ClientOptions)

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(opts *ClientOptions) {
		opts.HTTPClient = client
	}
}

// WithCredentialCache overrides the default in-memory token cache.
func WithCredentialCache(cache CredentialCache) ClientOption {
	return func(opts *ClientOptions) {
		opts.Cache = cache
	}
}

// WithRefreshRetries sets how many delegated attempts Send makes.
func WithRefreshRetries(n int) ClientOption {
	return func(opts *ClientOptions) {
		opts.RefreshRetries = n
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(opts *ClientOptions) {
		opts.Logger = logger
	}
}

// Client talks to the nymph API. Clients derived with As share the HTTP
// client and credential cache of their parent.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	cache   CredentialCache
	retries int
	logger  *zap.Logger
	mode    AuthMode
}

// NewClient creates a service-mode client for the API at baseURL using
// apiKey. A memory cache and http.DefaultClient are used unless overridden.
func NewClient(baseURL, apiKey string, optFns ...ClientOption) *Client {
	opts := ClientOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Cache == nil {
		opts.Cache = NewMemoryCache(DefaultCacheSize)
	}
	if opts.RefreshRetries <= 0 {
		opts.RefreshRetries = DefaultRefreshRetries
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    opts.HTTPClient,
		cache:   opts.Cache,
		retries: opts.RefreshRetries,
		logger:  opts.Logger,
		mode:    ServiceAuth{},
	}
}

// As returns a client that acts on behalf of the given Discord user.
func (c *Client) As(discordID, displayName string) *Client {
	derived := *c
	derived.mode = DelegatedAuth{DiscordID: discordID, DisplayName: displayName}
	return &derived
}

// service returns c in service mode.
func (c *Client) service() *Client {
	if _, ok := c.mode.(ServiceAuth); ok {
		return c
	}
	derived := *c
	derived.mode = ServiceAuth{}
	return &derived
}

// Mode reports how c authenticates.
func (c *Client) Mode() AuthMode {
	return c.mode
}

// Send performs req and decodes a 2xx JSON response into out, which may be
// nil. Non-2xx responses with a structured body are returned as *api.Error.
func (c *Client) Send(ctx context.Context, req Request, out any) error {
	prepared, err := c.prepare(req)
	if err != nil {
		return err
	}
	return c.mode.send(ctx, c, prepared, out)
}

func (ServiceAuth) send(ctx context.Context, c *Client, req *preparedRequest, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.do(ctx, req, out, func(h *http.Request) {
		h.Header.Set("X-Api-Key", c.apiKey)
	})
}

func (d DelegatedAuth) send(ctx context.Context, c *Client, req *preparedRequest, out any) error {
	key := d.cacheKey()

	for attempt := 1; attempt <= c.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		token, ok := c.cache.Get(ctx, key)
		if !ok {
			minted, err := c.service().ProxyToken(ctx, d.DiscordID, d.DisplayName)
			if err != nil {
				return fmt.Errorf("mint delegated token: %w", err)
			}
			token = minted
			c.cache.Put(ctx, key, token)
		}

		err := c.do(ctx, req, out, func(h *http.Request) {
			(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(h)
		})
		if err == nil {
			return nil
		}
		if !api.HasCode(err, api.BadCredentials) {
			return err
		}

		c.cache.Invalidate(ctx, key)
		c.logger.Debug("delegated token rejected, refreshing",
			zap.String("discord_id", d.DiscordID),
			zap.Int("attempt", attempt),
			zap.Int("retries", c.retries),
		)
	}

	return fmt.Errorf("%w: gave up after %d attempts", ErrRefreshExhausted, c.retries)
}

// preparedRequest is a Request with its body encoded once so it can be
// replayed across attempts.
type preparedRequest struct {
	method    string
	url       string
	body      []byte
	requestID string
}

func (c *Client) prepare(req Request) (*preparedRequest, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target, err := url.JoinPath(c.baseURL, req.Path)
	if err != nil {
		return nil, fmt.Errorf("invalid request path %q: %w", req.Path, err)
	}

	var body []byte
	if req.Body != nil {
		body, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	return &preparedRequest{
		method:    method,
		url:       target,
		body:      body,
		requestID: uuid.NewString(),
	}, nil
}

// do executes one attempt. Transport failures are returned wrapped and are
// never retried by the caller.
func (c *Client) do(ctx context.Context, req *preparedRequest, out any, authorize func(*http.Request)) error {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-Id", req.requestID)
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.method, req.url, err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr api.Error
		if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.Code == 0 {
			return &UnexpectedResponseError{StatusCode: resp.StatusCode, Body: string(data)}
		}
		return &apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}
