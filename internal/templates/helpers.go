// Package templates renders the read-only HTML views of the tender index.
package templates

import (
	"database/sql"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/a-h/templ"

	"github.com/jjenkins/tenders/internal/model"
)

const (
	dateLayout  = "2006-01-02"
	closeLayout = "2006-01-02 15:04"
)

// HomeMetrics holds the figures shown on the landing page
type HomeMetrics struct {
	HasData       bool
	TotalTenders  int
	FailedFetches int
	ByStatus      []model.StatusCount
	LastRun       map[string]string
}

// TenderFilter echoes the list query back into the sort links
type TenderFilter struct {
	SortBy string
	Order  string
	Status int64
}

type tenderColumn struct {
	key   string
	label string
}

var tenderColumns = []tenderColumn{
	{"code", "Code"},
	{"title", "Title"},
	{"status", "Status"},
	{"closes", "Closes"},
	{"published", "Published"},
}

func (f TenderFilter) sortLink(key string) string {
	order := "asc"
	if f.SortBy == key && f.Order != "desc" {
		order = "desc"
	}
	q := url.Values{"sort": {key}, "order": {order}}
	if f.Status != 0 {
		q.Set("status", strconv.FormatInt(f.Status, 10))
	}
	return "/tenders?" + q.Encode()
}

func tenderURL(code string) templ.SafeURL {
	return templ.URL("/tenders/" + url.PathEscape(code))
}

func statusURL(code int64) templ.SafeURL {
	return templ.URL(fmt.Sprintf("/tenders?status=%d", code))
}

func statusLabel(s model.StatusCount) string {
	if s.StatusLabel == "" {
		return "-"
	}
	return s.StatusLabel
}

// metricNames returns the last run's metric names in display order
func metricNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func fetchFailed(f model.FetchLog) bool {
	return f.ResponseStatus != 200
}

func nullString(v sql.NullString) string {
	if !v.Valid {
		return "-"
	}
	return v.String
}

func nullInt(v sql.NullInt64) string {
	if !v.Valid {
		return "-"
	}
	return strconv.FormatInt(v.Int64, 10)
}

func nullDate(v sql.NullTime, layout string) string {
	if !v.Valid {
		return "-"
	}
	return v.Time.Format(layout)
}
