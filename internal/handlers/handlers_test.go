package handlers

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjenkins/tenders/internal/model"
	"github.com/jjenkins/tenders/internal/service"
	"github.com/jjenkins/tenders/internal/store"
)

type fixture struct {
	app     *fiber.App
	tenders *store.TenderStore
	fetches *store.FetchStore
	metrics *store.MetricStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := store.NewDB(store.SQLite, filepath.Join(t.TempDir(), "tenders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	f := &fixture{
		tenders: store.NewTenderStore(db, store.SQLite, "tender_index_list"),
		fetches: store.NewFetchStore(db, store.SQLite, "tender_index_list"),
		metrics: store.NewMetricStore(db, store.SQLite, "tender_index_list"),
	}
	require.NoError(t, f.tenders.EnsureSchema(ctx))
	require.NoError(t, f.fetches.EnsureSchema(ctx))
	require.NoError(t, f.metrics.EnsureSchema(ctx))

	f.app = fiber.New()
	f.app.Get("/", HomeHandler(f.tenders, f.fetches, service.NewMetricsService(f.tenders, f.fetches, f.metrics)))
	f.app.Get("/tenders", TendersHandler(f.tenders))
	f.app.Get("/tenders/:code", TenderDetailHandler(f.tenders))
	f.app.Get("/fetches", FetchesHandler(f.fetches))
	return f
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	mk := func(code, title string, status int64, pubDay int) model.Listing {
		return model.Listing{
			ExternalCode:    sql.NullString{String: code, Valid: true},
			Title:           sql.NullString{String: title, Valid: true},
			StatusCode:      sql.NullInt64{Int64: status, Valid: true},
			StatusLabel:     service.StatusLabel(status),
			CloseDate:       sql.NullTime{Time: time.Date(2022, 2, 1, 15, 0, 0, 0, time.UTC), Valid: true},
			PublicationDate: time.Date(2022, 1, pubDay, 0, 0, 0, 0, time.UTC),
		}
	}

	result, err := f.tenders.Apply(ctx, []model.Listing{
		mk("1509-5-L122", "Compra de insumos <clinicos>", 5, 1),
		mk("2222-1-LE22", "Servicio de aseo", 6, 2),
		mk("3333-9-LP22", "Obras menores", 6, 3),
	})
	require.NoError(t, err)
	require.Empty(t, result.Failures)

	require.NoError(t, f.fetches.SaveFetches(ctx, "run-1", []model.Provenance{
		{ItemCount: 1, PublicationDate: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), ResponseStatus: 200, NumberOrders: 1, Attempts: 1},
		{PublicationDate: time.Date(2022, 1, 4, 0, 0, 0, 0, time.UTC), ResponseStatus: 500, Attempts: 10},
	}))
	require.NoError(t, f.metrics.Store(ctx, "run-1", "inserted", "3", time.Now()))
}

func (f *fixture) get(t *testing.T, target string) (*http.Response, *goquery.Document) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)

	resp, err := f.app.Test(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)
	return resp, doc
}

func TestHome_Empty(t *testing.T) {
	f := newFixture(t)

	resp, doc := f.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, doc.Find("p.empty").Length())
}

func TestHome_WithData(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	resp, doc := f.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "3", doc.Find("#total-tenders").Text())
	assert.Equal(t, "1", doc.Find("#failed-fetches").Text())
	assert.Equal(t, 2, doc.Find("#by-status tbody tr").Length())
	assert.Contains(t, doc.Find("#last-run").Text(), "inserted: 3")
}

func TestTenders_SortAndFilter(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	_, doc := f.get(t, "/tenders?sort=code&order=asc")
	rows := doc.Find("#tenders-body tr.tender")
	require.Equal(t, 3, rows.Length())
	assert.Equal(t, "1509-5-L122", rows.First().Find("td a").Text())
	assert.Equal(t, "Compra de insumos <clinicos>", rows.First().Find("td").Eq(1).Text())

	_, doc = f.get(t, "/tenders?status=6")
	rows = doc.Find("#tenders-body tr.tender")
	assert.Equal(t, 2, rows.Length())
	rows.Each(func(_ int, s *goquery.Selection) {
		assert.Equal(t, "Cerrada", s.Find("td").Eq(2).Text())
	})
}

func TestTenders_HTMXReturnsRowsOnly(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	req := httptest.NewRequest(http.MethodGet, "/tenders?sort=title", nil)
	req.Header.Set("HX-Request", "true")
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	// Bare rows are dropped by an HTML parser outside a table, so inspect the markup
	assert.NotContains(t, string(body), "<nav>")
	assert.Equal(t, 3, strings.Count(string(body), `<tr class="tender">`))
}

func TestTenders_InvalidStatus(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.get(t, "/tenders?status=abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTenderDetail(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	resp, doc := f.get(t, "/tenders/2222-1-LE22")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Servicio de aseo", doc.Find("#title").Text())
	assert.Equal(t, "6", doc.Find("#status-code").Text())
	assert.Equal(t, "Cerrada", doc.Find("#status").Text())
	assert.Equal(t, "2022-01-02", doc.Find("#published").Text())

	resp, _ = f.get(t, "/tenders/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFetches(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	resp, doc := f.get(t, "/fetches")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	rows := doc.Find("#fetches tbody tr")
	require.Equal(t, 2, rows.Length())
	assert.True(t, rows.First().HasClass("failed"))
	assert.Equal(t, "2022-01-04", rows.First().Find("td").First().Text())
}
