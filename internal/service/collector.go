package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jjenkins/tenders/internal/config"
	"github.com/jjenkins/tenders/internal/model"
)

// DayLayout is the date format accepted on the command line (DD-MM-YYYY)
const DayLayout = "02-01-2006"

// DayFetcher retrieves the listing of a single publication day
type DayFetcher interface {
	FetchDay(ctx context.Context, day time.Time) (model.Provenance, []model.Listing, error)
}

// Collection holds the concatenated output of a date range, in day order
type Collection struct {
	Start      time.Time
	End        time.Time
	Provenance []model.Provenance
	Records    []model.Listing
}

// ParseDay parses a DD-MM-YYYY date argument
func ParseDay(value string) (time.Time, error) {
	day, err := time.Parse(DayLayout, value)
	if err != nil {
		return time.Time{}, &config.ConfigurationError{
			Field:  "date",
			Reason: fmt.Sprintf("%q is not a DD-MM-YYYY date", value),
		}
	}
	return day, nil
}

// ParseRange parses both ends of an inclusive date range
func ParseRange(startValue, endValue string) (time.Time, time.Time, error) {
	start, err := ParseDay(startValue)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := ParseDay(endValue)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, &config.ConfigurationError{
			Field:  "date",
			Reason: fmt.Sprintf("end date %s is before initial date %s", endValue, startValue),
		}
	}
	return start, end, nil
}

// Days expands an inclusive range into consecutive calendar days
func Days(start, end time.Time) []time.Time {
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Collector fetches a date range one day at a time with a fixed pause between calls
type Collector struct {
	fetcher DayFetcher
	delay   time.Duration
	logger  *log.Logger
}

// NewCollector creates a Collector pausing delay between daily fetches
func NewCollector(fetcher DayFetcher, delay time.Duration) *Collector {
	return &Collector{
		fetcher: fetcher,
		delay:   delay,
		logger:  log.New(os.Stdout, "", log.LstdFlags),
	}
}

// Collect fetches every day from start to end inclusive, in order. Per-day
// failures are already folded into that day's provenance, so the only error
// is cancellation, which stops before the next day's fetch begins.
func (c *Collector) Collect(ctx context.Context, start, end time.Time) (*Collection, error) {
	days := Days(start, end)
	collection := &Collection{Start: start, End: end}

	c.logger.Printf("Downloading data from %s to %s (included)", start.Format(DayLayout), end.Format(DayLayout))

	for idx, day := range days {
		if err := ctx.Err(); err != nil {
			return collection, err
		}

		c.logger.Printf("[%d/%d] Fetching %s...", idx+1, len(days), day.Format(DayLayout))

		prov, records, err := c.fetcher.FetchDay(ctx, day)
		if err != nil {
			return collection, err
		}
		collection.Provenance = append(collection.Provenance, prov)
		collection.Records = append(collection.Records, records...)

		// Courtesy rate limiting between requests
		if idx < len(days)-1 {
			if err := sleepCtx(ctx, c.delay); err != nil {
				return collection, err
			}
		}
	}

	return collection, nil
}
