package thesportsdb

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/footybot-roster/internal/domain/roster"
	"github.com/riskibarqy/footybot-roster/internal/platform/logging"
	"github.com/riskibarqy/footybot-roster/internal/platform/resilience"
	"github.com/riskibarqy/footybot-roster/internal/usecase"
	"golang.org/x/sync/singleflight"
)

const (
	defaultBaseURL      = "https://www.thesportsdb.com/api/v1/json"
	defaultAPIKey       = "3"
	defaultTimeout      = 30 * time.Second
	defaultRetryBackoff = time.Second
	searchPlayersPath   = "/searchplayers.php"
	previewSuffix       = "/preview"
	maxPayloadBytes     = 6 << 20
)

var apiKeySegmentRegex = regexp.MustCompile(`(/json/)[^/?#\s"']+/`)
var errSportsDBTransient = crerr.New("thesportsdb transient failure")

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	maxRetries   int
	retryBackoff time.Duration
	logger       *logging.Logger
	breaker      *resilience.CircuitBreaker
	imageBreaker *resilience.CircuitBreaker
	flight       singleflight.Group
	now          func() time.Time
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = defaultTimeout
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	apiKey := strings.Trim(strings.TrimSpace(cfg.APIKey), "/")
	if apiKey == "" {
		apiKey = defaultAPIKey
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}

	return &Client{
		httpClient:   httpClient,
		baseURL:      baseURL,
		apiKey:       apiKey,
		maxRetries:   max(cfg.MaxRetries, 0),
		retryBackoff: backoff,
		logger:       logger,
		breaker:      resilience.NewCircuitBreaker(cfg.CircuitBreaker),
		imageBreaker: resilience.NewCircuitBreaker(cfg.CircuitBreaker),
		now:          time.Now,
	}
}

// SearchPlayersByTeam returns every player the provider lists for the team
// name. A team the provider does not know yields an empty roster, not an error.
func (c *Client) SearchPlayersByTeam(ctx context.Context, team roster.TeamName) (usecase.ExternalTeamRoster, error) {
	name := strings.TrimSpace(string(team))
	if name == "" {
		return usecase.ExternalTeamRoster{}, fmt.Errorf("%w: team name is required", usecase.ErrInvalidInput)
	}

	var envelope searchPlayersEnvelope
	raw, err := c.doJSON(ctx, searchPlayersPath, "t="+encodeQueryComponent(string(team)), &envelope)
	if err != nil {
		return usecase.ExternalTeamRoster{}, fmt.Errorf("search players team=%q: %w", team, err)
	}

	return usecase.ExternalTeamRoster{
		Team:       team,
		Players:    mapPlayers(envelope.Player),
		RawPayload: buildTeamPayload(team, raw, c.now()),
	}, nil
}

// FetchPlayerImage opens the preview rendition of a player thumbnail. The
// caller owns the returned body. Image failures trip their own breaker and
// never block player searches.
func (c *Client) FetchPlayerImage(ctx context.Context, thumbURL string) (io.ReadCloser, error) {
	previewURL, err := PreviewURL(thumbURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", usecase.ErrInvalidInput, err)
	}
	if err := c.imageBreaker.Allow(); err != nil {
		c.logger.WarnContext(ctx, "thesportsdb circuit breaker rejected image request", "state", c.imageBreaker.State())
		return nil, fmt.Errorf("%w: image provider is temporarily unavailable", usecase.ErrDependencyUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, previewURL, nil)
	if err != nil {
		c.imageBreaker.Record(nil, nil)
		return nil, fmt.Errorf("build image request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		reqErr := fmt.Errorf("%w: send image request: %s", errSportsDBTransient, sanitizeSensitiveText(err.Error()))
		c.imageBreaker.Record(reqErr, isSportsDBCircuitFailure)
		return nil, reqErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()
		statusErr := fmt.Errorf("image status=%d url=%s", resp.StatusCode, previewURL)
		if isRetryableStatus(resp.StatusCode) {
			statusErr = fmt.Errorf("%w: %v", errSportsDBTransient, statusErr)
		}
		c.imageBreaker.Record(statusErr, isSportsDBCircuitFailure)
		return nil, statusErr
	}

	c.imageBreaker.Record(nil, nil)
	return resp.Body, nil
}

// PreviewURL is the reduced-size rendition of a thumbnail URL.
func PreviewURL(thumbURL string) (string, error) {
	thumbURL = strings.TrimSpace(thumbURL)
	if thumbURL == "" {
		return "", fmt.Errorf("thumbnail url is empty")
	}
	parsed, err := url.Parse(thumbURL)
	if err != nil {
		return "", fmt.Errorf("parse thumbnail url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported thumbnail scheme %q", parsed.Scheme)
	}
	return thumbURL + previewSuffix, nil
}

func (c *Client) doJSON(ctx context.Context, path, rawQuery string, target any) ([]byte, error) {
	if err := c.breaker.Allow(); err != nil {
		c.logger.WarnContext(ctx, "thesportsdb circuit breaker rejected request", "state", c.breaker.State())
		return nil, fmt.Errorf("%w: player provider is temporarily unavailable", usecase.ErrDependencyUnavailable)
	}

	fullURL := c.baseURL + "/" + c.apiKey + path
	if rawQuery != "" {
		fullURL += "?" + rawQuery
	}

	out, err, _ := c.flight.Do(path+"?"+rawQuery, func() (any, error) {
		raw, reqErr := c.executeRequest(ctx, fullURL)
		c.breaker.Record(reqErr, isSportsDBCircuitFailure)
		return raw, reqErr
	})
	if err != nil {
		return nil, err
	}

	raw, ok := out.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected response payload type %T", out)
	}

	if err := sonic.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("decode provider payload: %w", err)
	}

	return raw, nil
}

func (c *Client) executeRequest(ctx context.Context, fullURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("%w: send request: %s", errSportsDBTransient, sanitizeSensitiveText(err.Error()))
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
			_ = resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = fmt.Errorf("%w: read response body: %v", errSportsDBTransient, readErr)
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return raw, nil
			case isRetryableStatus(resp.StatusCode):
				lastErr = fmt.Errorf("%w: provider status=%d body=%s", errSportsDBTransient, resp.StatusCode, abbreviateBody(raw))
			default:
				return nil, fmt.Errorf("provider status=%d body=%s", resp.StatusCode, abbreviateBody(raw))
			}
		}

		if attempt == c.maxRetries {
			break
		}
		timer := time.NewTimer(time.Duration(attempt+1) * c.retryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("provider request failed")
	}
	c.logger.WarnContext(ctx, "thesportsdb request failed", "url", redactAPIURL(fullURL), "error", lastErr)
	return nil, lastErr
}

// encodeQueryComponent escapes like a browser's encodeURIComponent, so spaces
// travel as %20 rather than +.
func encodeQueryComponent(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}

func sanitizeSensitiveText(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	return apiKeySegmentRegex.ReplaceAllString(value, "${1}REDACTED/")
}

func redactAPIURL(rawURL string) string {
	return sanitizeSensitiveText(rawURL)
}

func isSportsDBCircuitFailure(err error) bool {
	if err == nil {
		return false
	}
	return stderrors.Is(err, errSportsDBTransient)
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func abbreviateBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= 240 {
		return text
	}
	return text[:240] + "..."
}
