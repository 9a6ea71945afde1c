package service

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjenkins/tenders/internal/model"
)

func rawListing(code, title string, status int64, closeDay, pubDay int) model.Listing {
	return model.Listing{
		ExternalCode:    sql.NullString{String: code, Valid: code != ""},
		Title:           sql.NullString{String: title, Valid: title != ""},
		StatusCode:      sql.NullInt64{Int64: status, Valid: true},
		CloseDate:       sql.NullTime{Time: time.Date(2022, 2, closeDay, 12, 0, 0, 0, time.UTC), Valid: true},
		PublicationDate: time.Date(2022, 1, pubDay, 0, 0, 0, 0, time.UTC),
	}
}

func TestNormalize_KeepsLatestObservation(t *testing.T) {
	raw := []model.Listing{
		rawListing("A1", "Compra", 6, 10, 2),
		rawListing("A1", "Compra", 5, 10, 1),
	}

	clean, stats := Normalize(raw)
	require.Len(t, clean, 1)
	assert.Equal(t, int64(6), clean[0].StatusCode.Int64)
	assert.Equal(t, "Cerrada", clean[0].StatusLabel.String)
	assert.Equal(t, 1, stats.Duplicates)
}

func TestNormalize_TieBreaksOnCloseDateThenStatus(t *testing.T) {
	raw := []model.Listing{
		rawListing("A1", "Compra", 8, 10, 1),
		rawListing("A1", "Compra", 5, 12, 1),
		rawListing("B1", "Otra", 8, 10, 1),
		rawListing("B1", "Otra", 7, 10, 1),
	}

	clean, _ := Normalize(raw)
	require.Len(t, clean, 2)

	byCode := map[string]int64{}
	for _, l := range clean {
		byCode[l.Code()] = l.StatusCode.Int64
	}
	assert.Equal(t, int64(5), byCode["A1"], "later close date wins")
	assert.Equal(t, int64(8), byCode["B1"], "higher status wins on equal dates")
}

func TestNormalize_DropsIncompleteRows(t *testing.T) {
	missingClose := rawListing("C1", "Sin cierre", 5, 1, 1)
	missingClose.CloseDate = sql.NullTime{}
	missingStatus := rawListing("C2", "Sin estado", 5, 1, 1)
	missingStatus.StatusCode = sql.NullInt64{}

	raw := []model.Listing{
		rawListing("", "Sin codigo", 5, 1, 1),
		rawListing("C3", "", 5, 1, 1),
		missingClose,
		missingStatus,
		{PublicationDate: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)},
		rawListing("OK", "Completa", 5, 1, 1),
	}

	clean, stats := Normalize(raw)
	require.Len(t, clean, 1)
	assert.Equal(t, "OK", clean[0].Code())
	assert.Equal(t, NormalizeStats{Input: 6, Incomplete: 5, Duplicates: 0, Output: 1}, stats)
}

func TestNormalize_EmptyInput(t *testing.T) {
	clean, stats := Normalize(nil)
	assert.Empty(t, clean)
	assert.Equal(t, 0, stats.Output)
}

func TestNormalize_UnknownStatusHasNullLabel(t *testing.T) {
	clean, _ := Normalize([]model.Listing{rawListing("X9", "Rara", 99, 1, 1)})
	require.Len(t, clean, 1)
	assert.False(t, clean[0].StatusLabel.Valid)
	assert.Equal(t, int64(99), clean[0].StatusCode.Int64)
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	raw := []model.Listing{rawListing("A1", "ADQUISICIÓN", 5, 1, 1)}
	Normalize(raw)
	assert.Equal(t, "ADQUISICIÓN", raw[0].Title.String)
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ADQUISICIÓN DE EQUIPOS", "Adquisicion de equipos"},
		{"compra de café", "Compra de cafe"},
		{"O'HIGGINS servicio", "Ohiggins servicio"},
		{"Ñandú", "Nandu"},
		{"  espacios", "  espacios"},
		{"", ""},
		{"日本 insumos", " insumos"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTitle(tt.in))
		})
	}
}

func TestStatusLabel(t *testing.T) {
	want := map[int64]string{
		5: "Publicada", 6: "Cerrada", 7: "Desierta",
		8: "Adjudicada", 15: "Revocada", 16: "Suspendida",
	}
	for code, label := range want {
		got := StatusLabel(code)
		assert.True(t, got.Valid)
		assert.Equal(t, label, got.String)
	}
	assert.False(t, StatusLabel(1).Valid)
}
