package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/jjenkins/tenders/internal/config"
	"github.com/jjenkins/tenders/internal/model"
)

const (
	DefaultMaxAttempts   = 10
	DefaultRetryInterval = 1 * time.Second
	DefaultRequestDelay  = 1 * time.Second
	defaultTimeout       = 60 * time.Second
	requestDateLayout    = "02012006"
	publicationLayout    = "2006-01-02"
)

// RetryPolicy bounds the attempts made for a single day
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// TransientFetchError is a non-success outcome from the listing API for one day
type TransientFetchError struct {
	Day        time.Time
	StatusCode int // 0 when no response was received
	Attempt    int
	Err        error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("fetch %s attempt %d (status %d): %v",
		e.Day.Format(publicationLayout), e.Attempt, e.StatusCode, e.Err)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// MercadoClient handles communication with the Mercado Publico listing API
type MercadoClient struct {
	client    *http.Client
	baseURL   string
	ticket    string
	retry     RetryPolicy
	delay     time.Duration
	parser    *Parser
	logger    *log.Logger
	errLogger *log.Logger
}

// NewMercadoClient creates a new listing API client
func NewMercadoClient(cfg config.SourceConfig) *MercadoClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retry := RetryPolicy{MaxAttempts: cfg.MaxAttempts, Interval: cfg.RetryInterval}
	if retry.MaxAttempts <= 0 || retry.MaxAttempts > DefaultMaxAttempts {
		retry.MaxAttempts = DefaultMaxAttempts
	}
	if retry.Interval <= 0 {
		retry.Interval = DefaultRetryInterval
	}

	return &MercadoClient{
		client:    &http.Client{Timeout: timeout},
		baseURL:   cfg.BaseURL,
		ticket:    cfg.Ticket,
		retry:     retry,
		delay:     cfg.RequestDelay,
		parser:    NewParser(),
		logger:    log.New(os.Stdout, "", log.LstdFlags),
		errLogger: log.New(os.Stderr, "ERROR: ", log.LstdFlags),
	}
}

// Delay returns the configured pause between daily requests
func (c *MercadoClient) Delay() time.Duration {
	return c.delay
}

// FetchDay retrieves the listing published on day. Transient failures are
// retried according to the retry policy; once exhausted the day yields an
// empty batch and a provenance row carrying the last observed status code.
// A day with zero notices yields one placeholder listing so provenance stays
// consistent. The returned error is non-nil only when ctx is cancelled.
func (c *MercadoClient) FetchDay(ctx context.Context, day time.Time) (model.Provenance, []model.Listing, error) {
	prov := model.Provenance{PublicationDate: day}

	result, status, attempts, err := c.fetchWithRetry(ctx, day)
	prov.ResponseStatus = status
	prov.Attempts = attempts
	if err != nil {
		if ctx.Err() != nil {
			return prov, nil, ctx.Err()
		}
		c.errLogger.Printf("Maximum number of tries reached for %s: %v", day.Format(publicationLayout), err)
		return prov, nil, nil
	}

	prov.ItemCount = result.Count
	prov.CreatedAt = result.CreatedAt
	prov.Version = result.Version

	listings := result.Listings
	if len(listings) == 0 {
		listings = []model.Listing{{}}
	}
	for i := range listings {
		listings[i].PublicationDate = day
		if listings[i].Complete() {
			prov.NumberOrders++
		}
	}

	c.logger.Printf("Data downloaded for %s (status_code=%d, notices=%d)", day.Format("02-01-2006"), status, prov.NumberOrders)
	return prov, listings, nil
}

// fetchWithRetry performs the day's GET with a fixed interval between attempts.
// It returns the parsed payload, the last observed status and the attempts used.
func (c *MercadoClient) fetchWithRetry(ctx context.Context, day time.Time) (*ParseResult, int, int, error) {
	var lastErr error
	status := 0

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, c.retry.Interval); err != nil {
				return nil, status, attempt - 1, err
			}
		}

		result, code, err := c.fetchOnce(ctx, day)
		if code != 0 {
			status = code
		}
		if err == nil {
			return result, status, attempt, nil
		}

		lastErr = &TransientFetchError{Day: day, StatusCode: code, Attempt: attempt, Err: err}
		if ctx.Err() != nil {
			return nil, status, attempt, ctx.Err()
		}
		c.logger.Printf("Status code is %d at try number %d for %s, waiting %s", code, attempt, day.Format(publicationLayout), c.retry.Interval)
	}

	return nil, status, c.retry.MaxAttempts, fmt.Errorf("failed after %d attempts: %w", c.retry.MaxAttempts, lastErr)
}

func (c *MercadoClient) fetchOnce(ctx context.Context, day time.Time) (*ParseResult, int, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid base url: %w", err)
	}
	q := u.Query()
	q.Set("fecha", day.Format(requestDateLayout))
	q.Set("ticket", c.ticket)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, resp.StatusCode, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	result, err := c.parser.Parse(body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return result, resp.StatusCode, nil
}

// sleepCtx waits for d or until ctx is done
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
