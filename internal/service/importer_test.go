package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjenkins/tenders/internal/staging"
	"github.com/jjenkins/tenders/internal/store"
)

// fakeSource serves per-day payloads keyed by the fecha query parameter
type fakeSource struct {
	mu       sync.Mutex
	payloads map[string]string
}

func (f *fakeSource) set(fecha, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads[fecha] = body
}

func (f *fakeSource) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	body, ok := f.payloads[r.URL.Query().Get("fecha")]
	f.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	fmt.Fprint(w, body)
}

func noticeJSON(code, title string, status int) string {
	return fmt.Sprintf(`{"CodigoExterno": %q, "Nombre": %q, "CodigoEstado": %d, "FechaCierre": "2022-02-01T15:00:00"}`, code, title, status)
}

func payload(notices ...string) string {
	list := ""
	for i, n := range notices {
		if i > 0 {
			list += ","
		}
		list += n
	}
	return fmt.Sprintf(`{"Cantidad": %d, "FechaCreacion": "2022-01-05T00:00:00", "Version": "v1", "Listado": [%s]}`, len(notices), list)
}

type pipeline struct {
	importer *Importer
	tenders  *store.TenderStore
	fetches  *store.FetchStore
	metrics  *MetricsService
}

func newPipeline(t *testing.T, sourceURL string) *pipeline {
	t.Helper()
	dir := t.TempDir()

	db, err := store.NewDB(store.SQLite, filepath.Join(dir, "tenders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := testSourceConfig(sourceURL)
	cfg.MaxAttempts = 2
	client := NewMercadoClient(cfg)

	p := &pipeline{
		tenders: store.NewTenderStore(db, store.SQLite, "tender_index_list"),
		fetches: store.NewFetchStore(db, store.SQLite, "tender_index_list"),
	}
	p.metrics = NewMetricsService(p.tenders, p.fetches, store.NewMetricStore(db, store.SQLite, "tender_index_list"))
	p.importer = NewImporter(
		NewCollector(client, 0),
		staging.Stage{Dir: filepath.Join(dir, "raw")},
		staging.Stage{Dir: filepath.Join(dir, "interim"), Labelled: true},
		p.tenders, p.fetches, p.metrics,
	)
	return p
}

func TestSync_EndToEnd(t *testing.T) {
	src := &fakeSource{payloads: map[string]string{
		"01012022": payload(
			noticeJSON("A1", "ADQUISICIÓN de café", 5),
			noticeJSON("B1", "Servicio de aseo", 5),
		),
		"02012022": payload(
			noticeJSON("A1", "ADQUISICIÓN de café", 6),
			`{"CodigoExterno": "Z0", "Nombre": "Sin cierre", "CodigoEstado": 5, "FechaCierre": null}`,
		),
		"03012022": payload(),
	}}
	srv := httptest.NewServer(src)
	defer srv.Close()

	p := newPipeline(t, srv.URL)
	ctx := context.Background()
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2022, 1, 4, 0, 0, 0, 0, time.UTC)

	stats, err := p.importer.Sync(ctx, start, end)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Extract.Days)
	assert.Equal(t, 3, stats.Extract.Succeeded)
	assert.Equal(t, 1, stats.Extract.Failed)

	assert.Equal(t, 2, stats.Transform.Incomplete, "missing close date and empty day placeholder")
	assert.Equal(t, 1, stats.Transform.Duplicates)
	assert.Equal(t, 2, stats.Transform.Output)

	assert.Equal(t, 2, stats.Load.Inserted)
	assert.Equal(t, 0, stats.Load.Upserted)
	assert.Equal(t, 4, stats.Load.Fetches)

	a1, err := p.tenders.GetByCode(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), a1.StatusCode.Int64)
	assert.Equal(t, "Cerrada", a1.StatusLabel.String)
	assert.Equal(t, "Adquisicion de cafe", a1.Title.String)

	failed, err := p.fetches.CountFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	require.NotNil(t, stats.Metrics)
	assert.Equal(t, 2, stats.Metrics.TotalTenders)
	latest, err := p.metrics.GetLatestMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", latest["total_tenders"])
	assert.Equal(t, "1", latest["status_6_Cerrada"])
}

func TestSync_RerunIsIdempotent(t *testing.T) {
	src := &fakeSource{payloads: map[string]string{
		"01012022": payload(noticeJSON("A1", "Compra", 5), noticeJSON("B1", "Otra", 5)),
	}}
	srv := httptest.NewServer(src)
	defer srv.Close()

	p := newPipeline(t, srv.URL)
	ctx := context.Background()
	day := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

	first, err := p.importer.Sync(ctx, day, day)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Load.Inserted)

	second, err := p.importer.Sync(ctx, day, day)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Load.Inserted)
	assert.Equal(t, 0, second.Load.Upserted)
	assert.Equal(t, 2, second.Load.Unchanged)

	// A status change on the source becomes a single upsert
	src.set("01012022", payload(noticeJSON("A1", "Compra", 8), noticeJSON("B1", "Otra", 5)))
	third, err := p.importer.Sync(ctx, day, day)
	require.NoError(t, err)
	assert.Equal(t, 0, third.Load.Inserted)
	assert.Equal(t, 1, third.Load.Upserted)

	a1, err := p.tenders.GetByCode(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Adjudicada", a1.StatusLabel.String)

	count, err := p.tenders.CountTenders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestTransform_NoRawData(t *testing.T) {
	p := newPipeline(t, "http://127.0.0.1:0")

	stats, err := p.importer.Transform(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Input)
	assert.Empty(t, stats.RecordsFile)
}

func TestLoad_EmptyInterimStage(t *testing.T) {
	p := newPipeline(t, "http://127.0.0.1:0")

	stats, err := p.importer.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
	assert.NotEmpty(t, stats.RunID)
}

func TestExtract_RequiresCollector(t *testing.T) {
	imp := NewImporter(nil, staging.Stage{Dir: t.TempDir()}, staging.Stage{Dir: t.TempDir()}, nil, nil, nil)
	_, err := imp.Extract(context.Background(), time.Now(), time.Now())
	assert.Error(t, err)
}
