package transcripts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

const (
	// DefaultTimeout is the default HTTP timeout per request.
	DefaultTimeout = 30 * time.Second

	// DefaultRateInterval is the minimum spacing between store requests.
	DefaultRateInterval = 250 * time.Millisecond

	// DefaultPageLimit is the default session listing limit. Listings are
	// one large-limit request per window, never paged.
	DefaultPageLimit = 10000

	// messageIDChunk caps how many session IDs ride on one message
	// request, keeping URLs bounded.
	messageIDChunk = 50
)

// Client is an HTTP client for the upstream transcript store, scoped to
// one bot. It implements interfaces.SessionSource.
type Client struct {
	baseURL    string
	tokenURL   string
	botID      string
	token      string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
	pageLimit  int
	timeout    time.Duration
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client, bypassing credential-based
// transport construction.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateInterval sets the minimum spacing between requests.
func WithRateInterval(interval time.Duration) ClientOption {
	return func(c *Client) {
		if interval > 0 {
			c.limiter = rate.NewLimiter(rate.Every(interval), 1)
		}
	}
}

// WithPageLimit sets the session listing request limit.
func WithPageLimit(limit int) ClientOption {
	return func(c *Client) {
		if limit > 0 {
			c.pageLimit = limit
		}
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithTokenURL sets the OAuth2 token endpoint used in oauth2 auth mode.
func WithTokenURL(tokenURL string) ClientOption {
	return func(c *Client) {
		c.tokenURL = tokenURL
	}
}

// NewClient creates a store client for the given bot credentials. The
// credentials' BaseURL overrides the default; AuthMode selects between a
// static bearer token and an OAuth2 client-credentials exchange.
func NewClient(creds models.StoreCredentials, opts ...ClientOption) (*Client, error) {
	if creds.BotID == "" {
		return nil, fmt.Errorf("bot ID is required")
	}
	if creds.BaseURL == "" {
		return nil, fmt.Errorf("store base URL is required")
	}

	c := &Client{
		baseURL:   strings.TrimRight(creds.BaseURL, "/"),
		botID:     creds.BotID,
		limiter:   rate.NewLimiter(rate.Every(DefaultRateInterval), 1),
		pageLimit: DefaultPageLimit,
		timeout:   DefaultTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		switch creds.AuthMode {
		case AuthModeOAuth2:
			tokenURL := c.tokenURL
			if tokenURL == "" {
				tokenURL = c.baseURL + "/oauth2/token"
			}
			conf := &clientcredentials.Config{
				ClientID:     creds.ClientID,
				ClientSecret: creds.ClientSecret,
				TokenURL:     tokenURL,
			}
			c.httpClient = conf.Client(context.Background())
			c.httpClient.Timeout = c.timeout
		default:
			c.token = creds.ClientSecret
			c.httpClient = &http.Client{Timeout: c.timeout}
		}
	}

	return c, nil
}

// ListSessions returns session headers within the query window. The
// listing is one large-limit request; a store that truncates at the
// limit under-delivers, which the window ladder absorbs by widening.
func (c *Client) ListSessions(ctx context.Context, query interfaces.SessionQuery) ([]models.SessionRecord, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = c.pageLimit
	}

	params := url.Values{}
	params.Set("from", query.From.UTC().Format(time.RFC3339))
	params.Set("to", query.To.UTC().Format(time.RFC3339))
	params.Set("limit", strconv.Itoa(limit))
	if query.ContainmentType != "" {
		params.Set("containmentType", query.ContainmentType)
	}

	var page sessionPage
	if err := c.get(ctx, fmt.Sprintf("/api/v1/bots/%s/sessions", c.botID), params, &page); err != nil {
		return nil, err
	}

	records := make([]models.SessionRecord, 0, len(page.Sessions))
	for _, dto := range page.Sessions {
		records = append(records, dto.toRecord())
	}
	return records, nil
}

// ListMessages hydrates transcripts for the given session IDs within the
// query window. IDs are chunked across requests; messages come back
// grouped by session and ordered by timestamp.
func (c *Client) ListMessages(ctx context.Context, query interfaces.SessionQuery, sessionIDs []string) (map[string][]models.Message, error) {
	result := make(map[string][]models.Message, len(sessionIDs))

	for start := 0; start < len(sessionIDs); start += messageIDChunk {
		end := start + messageIDChunk
		if end > len(sessionIDs) {
			end = len(sessionIDs)
		}

		params := url.Values{}
		params.Set("from", query.From.UTC().Format(time.RFC3339))
		params.Set("to", query.To.UTC().Format(time.RFC3339))
		params.Set("sessionIds", strings.Join(sessionIDs[start:end], ","))

		var page messagePage
		if err := c.get(ctx, fmt.Sprintf("/api/v1/bots/%s/messages", c.botID), params, &page); err != nil {
			return nil, err
		}

		for _, dto := range page.Messages {
			result[dto.SessionID] = append(result[dto.SessionID], dto.toMessage())
		}
	}

	for id := range result {
		msgs := result[id]
		sort.SliceStable(msgs, func(i, j int) bool {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		})
		result[id] = msgs
	}

	return result, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// get performs a GET request against the store.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("url", c.baseURL+path).
			Msg("Transcript store request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("store rejected bot %s (status %d): %w", c.botID, resp.StatusCode, interfaces.ErrInvalidCredentials)

	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return &RateLimitError{RetryAfter: retryAfter(resp)}

	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// retryAfter reads the Retry-After header, defaulting to one second.
func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Second
}
