package service

import (
	"database/sql"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/jjenkins/tenders/internal/model"
)

// statusLabels maps the closed status code domain to its label.
// Codes outside the map get a null label rather than an error.
var statusLabels = map[int64]string{
	5:  "Publicada",
	6:  "Cerrada",
	7:  "Desierta",
	8:  "Adjudicada",
	15: "Revocada",
	16: "Suspendida",
}

// NormalizeStats tracks row counts through the normalization steps
type NormalizeStats struct {
	Input      int
	Incomplete int
	Duplicates int
	Output     int
}

// StatusLabel returns the label for code, invalid when the code is unknown
func StatusLabel(code int64) sql.NullString {
	label, ok := statusLabels[code]
	return sql.NullString{String: label, Valid: ok}
}

// Normalize cleans raw listings. The steps run in a fixed order:
// drop incomplete rows, keep the last row per external code under the
// (publication date, close date, status code) ordering, canonicalize the
// title, then derive the status label.
func Normalize(raw []model.Listing) ([]model.Listing, NormalizeStats) {
	stats := NormalizeStats{Input: len(raw)}

	complete := make([]model.Listing, 0, len(raw))
	for _, l := range raw {
		if !l.Complete() {
			stats.Incomplete++
			continue
		}
		complete = append(complete, l)
	}

	clean := dropDuplicates(complete)
	stats.Duplicates = len(complete) - len(clean)

	for i := range clean {
		clean[i].Title.String = NormalizeTitle(clean[i].Title.String)
		clean[i].StatusLabel = StatusLabel(clean[i].StatusCode.Int64)
	}

	stats.Output = len(clean)
	return clean, stats
}

// dropDuplicates sorts by (publication date, close date, status code) and
// keeps the last occurrence of every external code, preserving sorted order
func dropDuplicates(listings []model.Listing) []model.Listing {
	sorted := make([]model.Listing, len(listings))
	copy(sorted, listings)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.PublicationDate.Equal(b.PublicationDate) {
			return a.PublicationDate.Before(b.PublicationDate)
		}
		if !a.CloseDate.Time.Equal(b.CloseDate.Time) {
			return a.CloseDate.Time.Before(b.CloseDate.Time)
		}
		return a.StatusCode.Int64 < b.StatusCode.Int64
	})

	seen := make(map[string]bool, len(sorted))
	kept := make([]model.Listing, 0, len(sorted))
	for i := len(sorted) - 1; i >= 0; i-- {
		code := sorted[i].Code()
		if seen[code] {
			continue
		}
		seen[code] = true
		kept = append(kept, sorted[i])
	}

	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

// asciiFold decomposes accented characters and drops anything outside ASCII
var asciiFold = transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
	return r > unicode.MaxASCII
})))

// NormalizeTitle folds a title to plain ASCII, capitalizes it (first
// character upper, the rest lower) and removes apostrophes
func NormalizeTitle(title string) string {
	folded, _, err := transform.String(asciiFold, title)
	if err != nil {
		folded = title
	}

	folded = strings.ToLower(folded)
	if r, size := utf8.DecodeRuneInString(folded); size > 0 {
		folded = string(unicode.ToUpper(r)) + folded[size:]
	}

	return strings.ReplaceAll(folded, "'", "")
}
