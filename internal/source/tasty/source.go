package tasty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff"

	"recipe_importer/internal/domain"
	"recipe_importer/internal/ratelimit"
)

const (
	SourceName  = "tasty"
	SourceTitle = "Tasty (RapidAPI)"
)

// Config holds Tasty source configuration.
type Config struct {
	BaseURL        string
	APIKey         string
	APIHost        string
	PageSize       int
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Source implements service.Source for the Tasty recipes API.
type Source struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	apiHost        string
	pageSize       int
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	gate           *ratelimit.Gate
	logger         *slog.Logger
}

// New creates a new Tasty source. Every outgoing request passes through gate.
func New(cfg Config, gate *ratelimit.Gate, logger *slog.Logger) *Source {
	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		apiHost:        cfg.APIHost,
		pageSize:       cfg.PageSize,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		gate:           gate,
		logger:         logger.With("source", SourceName),
	}
}

// Name returns the checkpoint key of this source.
func (s *Source) Name() string {
	return SourceName
}

// Discover pages through recipes/list until the API runs dry or
// opts.MaxItems candidates were collected. Compilations are ignored.
func (s *Source) Discover(ctx context.Context, opts domain.DiscoverOptions) ([]domain.Candidate, error) {
	var candidates []domain.Candidate
	seen := make(map[int64]struct{})

	for from := 0; ; from += s.pageSize {
		page, err := s.fetchPage(ctx, from, opts.Tag)
		if err != nil {
			return candidates, fmt.Errorf("fetch page from %d: %w", from, err)
		}

		for _, r := range page.Results {
			if r.IsCompilation() {
				continue
			}
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}

			candidates = append(candidates, domain.Candidate{
				ExternalID: strconv.FormatInt(r.ID, 10),
				Name:       r.Name,
			})
			if opts.MaxItems > 0 && len(candidates) >= opts.MaxItems {
				return candidates, nil
			}
		}

		s.logger.Debug("fetched page",
			"from", from,
			"results", len(page.Results),
			"total", len(candidates),
		)

		if len(page.Results) < s.pageSize {
			break
		}
	}

	return candidates, nil
}

// FetchRecipe loads the detail of one recipe and maps it to the domain.
// Unknown ids yield domain.ErrNotFound.
func (s *Source) FetchRecipe(ctx context.Context, externalID string) (*domain.Recipe, error) {
	query := url.Values{}
	query.Set("id", externalID)

	var detail Detail
	if err := s.get(ctx, "recipes/get-more-info", query, &detail); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if detail.ID == 0 && detail.Name == "" {
		return nil, domain.ErrNotFound
	}

	return ToRecipe(&detail), nil
}

func (s *Source) fetchPage(ctx context.Context, from int, tag string) (*ListResponse, error) {
	query := url.Values{}
	query.Set("from", strconv.Itoa(from))
	query.Set("size", strconv.Itoa(s.pageSize))
	if tag != "" {
		query.Set("tags", tag)
	}

	var resp ListResponse
	if err := s.get(ctx, "recipes/list", query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.code)
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	var de *decodeError
	return !errors.As(err, &de)
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return "decode response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func (s *Source) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := fmt.Sprintf("%s/%s?%s", s.baseURL, path, query.Encode())

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = s.initialBackoff
	expBackoff.MaxInterval = s.maxBackoff
	expBackoff.MaxElapsedTime = 0

	retries := uint64(0)
	if s.maxAttempts > 1 {
		retries = uint64(s.maxAttempts - 1)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, retries), ctx)

	attempt := 0
	operation := func() error {
		attempt++
		if err := s.gate.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		err := s.doRequest(ctx, endpoint, out)
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return backoff.Permanent(domain.ErrNotFound)
		}
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		s.logger.Warn("request failed, retrying",
			"path", path,
			"attempt", attempt,
			"backoff", wait,
			"error", err,
		)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		if errors.Is(err, domain.ErrNotFound) || !retryable(err) {
			return err
		}
		return fmt.Errorf("after %d attempts: %w", attempt, err)
	}
	return nil
}

func (s *Source) doRequest(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "RecipeImporter/1.0")
	req.Header.Set("X-RapidAPI-Key", s.apiKey)
	req.Header.Set("X-RapidAPI-Host", s.apiHost)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &decodeError{err: err}
	}

	return nil
}
