package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/movingbox/storemigrate/internal/errors"
	"github.com/movingbox/storemigrate/internal/logger"
)

const (
	// StrandedPath is appended to the configured endpoint.
	StrandedPath = "/v1/zones/stranded"

	defaultTimeout  = 15 * time.Second
	defaultCacheTTL = 10 * time.Minute
	maxAttempts     = 3
	cacheKey        = "stranded"
)

// HTTPProberConfig configures an HTTPProber.
type HTTPProberConfig struct {
	Endpoint string
	Token    string
	Timeout  time.Duration
	CacheTTL time.Duration
	// BaseClient is wrapped with the bearer token transport; nil uses
	// http.DefaultClient.
	BaseClient *http.Client
	// RetryInterval paces retries after transient failures.
	RetryInterval time.Duration
	Logger        logger.Logger
}

// HTTPProber asks the sync service for stranded zones.
type HTTPProber struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
	cache    *cache.Cache
	limiter  *rate.Limiter
	log      logger.Logger
}

// NewHTTPProber creates an HTTPProber.
func NewHTTPProber(cfg HTTPProberConfig) (*HTTPProber, error) {
	if cfg.Endpoint == "" {
		return nil, errors.Newf("remote endpoint is required").
			Component("remote").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.Token == "" {
		return nil, errors.Newf("remote token is required").
			Component("remote").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Global().Module("remote")
	}

	base := cfg.BaseClient
	if base == nil {
		base = http.DefaultClient
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.Token,
		TokenType:   "Bearer",
	}))
	client.Timeout = cfg.Timeout

	return &HTTPProber{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		timeout:  cfg.Timeout,
		client:   client,
		cache:    cache.New(cfg.CacheTTL, cfg.CacheTTL*2),
		limiter:  rate.NewLimiter(rate.Every(cfg.RetryInterval), 1),
		log:      log,
	}, nil
}

// ProbeForStrandedRemoteState implements Prober. Results are cached for the
// configured TTL.
func (p *HTTPProber) ProbeForStrandedRemoteState(ctx context.Context) (StrandedState, error) {
	if cached, found := p.cache.Get(cacheKey); found {
		if state, ok := cached.(StrandedState); ok {
			p.log.Debug("stranded state cache hit", logger.String("kind", string(state.Kind)))
			return state, nil
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var lastErr error
	for attempt := range maxAttempts {
		if err := p.limiter.Wait(reqCtx); err != nil {
			if lastErr != nil {
				return StrandedState{}, lastErr
			}
			return StrandedState{}, err
		}

		state, err := p.fetch(reqCtx)
		if err == nil {
			p.cache.Set(cacheKey, state, cache.DefaultExpiration)
			return state, nil
		}
		lastErr = err
		if !retryable(err) || reqCtx.Err() != nil {
			return StrandedState{}, err
		}
		p.log.Warn("stranded state probe failed, retrying",
			logger.Int("attempt", attempt+1),
			logger.Int("max_attempts", maxAttempts),
			logger.Error(err))
	}
	return StrandedState{}, lastErr
}

// ClearCache drops the cached result.
func (p *HTTPProber) ClearCache() {
	p.cache.Flush()
}

func (p *HTTPProber) fetch(ctx context.Context) (StrandedState, error) {
	url := p.endpoint + StrandedPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return StrandedState{}, p.networkError(err, url, 0)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return StrandedState{}, p.networkError(err, url, 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return StrandedState{}, p.networkError(err, url, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return StrandedState{}, p.networkError(fmt.Errorf("unexpected status %d", resp.StatusCode), url, resp.StatusCode)
	}

	var state StrandedState
	if err := json.Unmarshal(body, &state); err != nil {
		return StrandedState{}, errors.New(err).
			Component("remote").
			Category(errors.CategoryValidation).
			Context("url", url).
			Build()
	}
	if !state.Kind.Valid() {
		return StrandedState{}, errors.Newf("unknown stranded kind %q", state.Kind).
			Component("remote").
			Category(errors.CategoryValidation).
			Context("url", url).
			Build()
	}
	return state, nil
}

func (p *HTTPProber) networkError(err error, url string, status int) error {
	b := errors.New(err).
		Component("remote").
		Category(errors.CategoryNetwork).
		Context("url", url)
	if status != 0 {
		b = b.Context("status_code", status)
	}
	return b.Build()
}

// retryable reports whether a failed probe is worth repeating: network
// failures, 429 and server errors are; other client errors and bad
// payloads are not.
func retryable(err error) bool {
	var ee *errors.EnhancedError
	if !errors.As(err, &ee) {
		return false
	}
	if ee.Category != errors.CategoryNetwork {
		return false
	}
	if status, ok := ee.GetContext()["status_code"].(int); ok {
		return status == http.StatusTooManyRequests || status >= 500
	}
	return true
}
