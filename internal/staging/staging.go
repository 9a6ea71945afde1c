// Package staging persists pipeline datasets as delimited files between stages.
//
// Each stage directory holds two datasets per processed date range: a records
// file and a provenance file, named by the inclusive span they cover. A later
// stage reads every file with the dataset prefix and concatenates them.
package staging

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jjenkins/tenders/internal/model"
)

const (
	RecordsPrefix    = "data-tender-index_list-from"
	ProvenancePrefix = "info-tender-index_list-from"

	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05"
	byteOrderMark   = "\ufeff"
)

var (
	rawColumns      = []string{"CodigoExterno", "Nombre", "CodigoEstado", "FechaCierre", "FechaPublicacion"}
	labelledColumns = []string{"CodigoExterno", "Nombre", "CodigoEstado", "Estado", "FechaCierre", "FechaPublicacion"}
	infoColumns     = []string{"Cantidad", "FechaCreacion", "Version", "FechaPublicacion", "ResponseStatusCode", "NumberOrders", "Attempts"}
)

// Stage is one staging directory. Labelled stages carry the Estado column.
type Stage struct {
	Dir      string
	Labelled bool
}

// FileName builds the conventional name of a staged file
func FileName(prefix string, from, to time.Time) string {
	return fmt.Sprintf("%s-%s-to-%s.csv", prefix, from.Format(dateLayout), to.Format(dateLayout))
}

// WriteRecords stores listings covering from..to and returns the file path
func (s Stage) WriteRecords(records []model.Listing, from, to time.Time) (string, error) {
	columns := rawColumns
	if s.Labelled {
		columns = labelledColumns
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		row := []string{
			nullString(r.ExternalCode),
			nullString(r.Title),
			nullInt(r.StatusCode),
		}
		if s.Labelled {
			row = append(row, nullString(r.StatusLabel))
		}
		row = append(row, nullTime(r.CloseDate), dateString(r.PublicationDate))
		rows = append(rows, row)
	}

	return s.write(FileName(RecordsPrefix, from, to), columns, rows)
}

// WriteProvenance stores provenance rows covering from..to and returns the file path
func (s Stage) WriteProvenance(rows []model.Provenance, from, to time.Time) (string, error) {
	out := make([][]string, 0, len(rows))
	for _, p := range rows {
		out = append(out, []string{
			strconv.Itoa(p.ItemCount),
			p.CreatedAt,
			p.Version,
			dateString(p.PublicationDate),
			strconv.Itoa(p.ResponseStatus),
			strconv.Itoa(p.NumberOrders),
			strconv.Itoa(p.Attempts),
		})
	}

	return s.write(FileName(ProvenancePrefix, from, to), infoColumns, out)
}

func (s Stage) write(name string, header []string, rows [][]string) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create staging dir %s: %w", s.Dir, err)
	}

	path := filepath.Join(s.Dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("failed to write header to %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	return path, nil
}

// Files lists staged files with the given prefix in name order
func (s Stage) Files(prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.Dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasPrefix(e.Name(), prefix) {
			files = append(files, filepath.Join(s.Dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// ReadRecords concatenates every staged records file
func (s Stage) ReadRecords() ([]model.Listing, error) {
	files, err := s.Files(RecordsPrefix)
	if err != nil {
		return nil, err
	}

	var records []model.Listing
	for _, path := range files {
		err := readCSV(path, func(row map[string]string) error {
			l, err := parseListing(row)
			if err != nil {
				return err
			}
			records = append(records, l)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return records, nil
}

// ReadProvenance reads every staged provenance file and keeps one row per
// publication day. Files are read oldest first, so the newest fetch of a
// day wins. Rows are returned in publication date order.
func (s Stage) ReadProvenance() ([]model.Provenance, error) {
	files, err := s.Files(ProvenancePrefix)
	if err != nil {
		return nil, err
	}
	if err := sortByModTime(files); err != nil {
		return nil, err
	}

	byDay := make(map[string]model.Provenance)
	for _, path := range files {
		err := readCSV(path, func(row map[string]string) error {
			p, err := parseProvenance(row)
			if err != nil {
				return err
			}
			byDay[dateString(p.PublicationDate)] = p
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	rows := make([]model.Provenance, 0, len(byDay))
	for _, p := range byDay {
		rows = append(rows, p)
	}
	sort.Slice(rows, func(a, b int) bool {
		return rows[a].PublicationDate.Before(rows[b].PublicationDate)
	})
	return rows, nil
}

// sortByModTime orders paths oldest first, keeping name order for ties
func sortByModTime(paths []string) error {
	modTimes := make(map[string]time.Time, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		modTimes[path] = info.ModTime()
	}
	sort.SliceStable(paths, func(a, b int) bool {
		return modTimes[paths[a]].Before(modTimes[paths[b]])
	})
	return nil
}

func (s Stage) Clear() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.Dir, err)
	}

	var removed []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := os.Remove(filepath.Join(s.Dir, e.Name())); err != nil {
			return removed, fmt.Errorf("failed to delete %s: %w", e.Name(), err)
		}
		removed = append(removed, e.Name())
	}
	return removed, nil
}

// readCSV calls fn with every data row keyed by header name
func readCSV(path string, fn func(map[string]string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], byteOrderMark)
	}

	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(rec) {
				row[name] = rec[i]
			}
		}
		if err := fn(row); err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}
	}
}

func parseListing(row map[string]string) (model.Listing, error) {
	var l model.Listing

	l.ExternalCode = toNullString(row["CodigoExterno"])
	l.Title = toNullString(row["Nombre"])
	l.StatusLabel = toNullString(row["Estado"])

	if v := strings.TrimSpace(row["CodigoEstado"]); v != "" {
		// Older files carry pandas floats such as "5.0"
		code, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return l, fmt.Errorf("invalid CodigoEstado %q: %w", v, err)
		}
		l.StatusCode = sql.NullInt64{Int64: int64(code), Valid: true}
	}

	if v := strings.TrimSpace(row["FechaCierre"]); v != "" {
		t, err := parseTimestamp(v)
		if err != nil {
			return l, fmt.Errorf("invalid FechaCierre %q: %w", v, err)
		}
		l.CloseDate = sql.NullTime{Time: t, Valid: true}
	}

	pub, err := parseTimestamp(strings.TrimSpace(row["FechaPublicacion"]))
	if err != nil {
		return l, fmt.Errorf("invalid FechaPublicacion %q: %w", row["FechaPublicacion"], err)
	}
	l.PublicationDate = pub

	return l, nil
}

func parseProvenance(row map[string]string) (model.Provenance, error) {
	var p model.Provenance

	pub, err := parseTimestamp(strings.TrimSpace(row["FechaPublicacion"]))
	if err != nil {
		return p, fmt.Errorf("invalid FechaPublicacion %q: %w", row["FechaPublicacion"], err)
	}
	p.PublicationDate = pub
	p.CreatedAt = row["FechaCreacion"]
	p.Version = row["Version"]

	ints := []struct {
		column string
		target *int
	}{
		{"Cantidad", &p.ItemCount},
		{"ResponseStatusCode", &p.ResponseStatus},
		{"NumberOrders", &p.NumberOrders},
		{"Attempts", &p.Attempts},
	}
	for _, field := range ints {
		v := strings.TrimSpace(row[field.column])
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, fmt.Errorf("invalid %s %q: %w", field.column, v, err)
		}
		*field.target = int(n)
	}

	return p, nil
}

func parseTimestamp(v string) (time.Time, error) {
	for _, layout := range []string{timestampLayout, dateLayout, "2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp")
}

func toNullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullString(v sql.NullString) string {
	if !v.Valid {
		return ""
	}
	return v.String
}

func nullInt(v sql.NullInt64) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatInt(v.Int64, 10)
}

func nullTime(v sql.NullTime) string {
	if !v.Valid {
		return ""
	}
	// Staged timestamps carry no zone and are always UTC
	return v.Time.UTC().Format(timestampLayout)
}

func dateString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
