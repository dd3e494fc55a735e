package reference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrUpstreamUnavailable marks a reference store that could not be reached
// after the bounded retry budget. It never surfaces on the scoring path; the
// provider simply keeps serving the previous snapshot.
var ErrUpstreamUnavailable = errors.New("reference store unavailable")

const (
	riskDocumentPath     = "/reference/ingredient_risk.yaml"
	allergenDocumentPath = "/reference/allergens.yaml"

	fetchAttempts = 3
)

// Refresher periodically fetches the two reference documents from a remote
// store and swaps the parsed snapshot into a Provider. Fetches go through a
// circuit breaker so a dead store trips fast instead of burning the retry
// budget on every tick.
type Refresher struct {
	client   *http.Client
	cb       *gobreaker.CircuitBreaker
	baseURL  *url.URL
	provider *Provider
	log      *zap.Logger
	interval time.Duration
	backoff  time.Duration
}

// NewRefresher builds a refresher against baseURL. interval controls the
// polling cadence.
func NewRefresher(baseURL string, provider *Provider, interval time.Duration, log *zap.Logger) (*Refresher, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing reference store url: %w", err)
	}

	settings := gobreaker.Settings{
		Name:    "reference-store",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("reference store breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Refresher{
		client:   &http.Client{Timeout: 15 * time.Second},
		cb:       gobreaker.NewCircuitBreaker(settings),
		baseURL:  u,
		provider: provider,
		log:      log,
		interval: interval,
		backoff:  500 * time.Millisecond,
	}, nil
}

// Run polls the remote store until ctx is cancelled. A failed refresh is
// logged and the current snapshot stays in place.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.log.Warn("reference refresh failed, keeping current tables",
					zap.String("version", r.provider.Current().Version()),
					zap.Error(err))
			}
		}
	}
}

// Refresh fetches both reference documents, parses them and, if the version
// is new, atomically publishes the snapshot.
func (r *Refresher) Refresh(ctx context.Context) error {
	var riskRaw, allergenRaw []byte

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		riskRaw, err = r.fetchDocument(gCtx, riskDocumentPath)
		return err
	})
	g.Go(func() error {
		var err error
		allergenRaw, err = r.fetchDocument(gCtx, allergenDocumentPath)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	tables, err := Parse(riskRaw, allergenRaw)
	if err != nil {
		return fmt.Errorf("parsing remote reference data: %w", err)
	}

	current := r.provider.Current()
	if current != nil && current.Version() == tables.Version() {
		return nil
	}

	r.provider.Swap(tables)
	r.log.Info("reference tables updated", zap.String("version", tables.Version()))
	return nil
}

func (r *Refresher) fetchDocument(ctx context.Context, path string) ([]byte, error) {
	docURL := r.baseURL.JoinPath(path).String()

	var lastErr error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		body, err := r.cb.Execute(func() (any, error) {
			return r.fetchOnce(ctx, docURL)
		})
		if err == nil {
			return body.([]byte), nil
		}
		lastErr = err
		if errors.Is(err, gobreaker.ErrOpenState) || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * r.backoff):
		}
	}
	return nil, fmt.Errorf("%w: fetching %s: %v", ErrUpstreamUnavailable, path, lastErr)
}

func (r *Refresher) fetchOnce(ctx context.Context, docURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
