package service

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjenkins/tenders/internal/model"
)

func codes(listings []model.Listing) []string {
	out := make([]string, 0, len(listings))
	for _, l := range listings {
		out = append(out, l.Code())
	}
	return out
}

func storedStatus(code int64) sql.NullInt64 {
	return sql.NullInt64{Int64: code, Valid: true}
}

func TestReconcile(t *testing.T) {
	clean := []model.Listing{
		rawListing("N2", "Nueva", 5, 1, 1),
		rawListing("C2", "Cambia", 8, 1, 1),
		rawListing("U1", "Igual", 5, 1, 1),
		rawListing("N1", "Nueva", 5, 1, 1),
		rawListing("C1", "Cambia", 6, 1, 1),
	}
	stored := map[string]sql.NullInt64{
		"U1": storedStatus(5),
		"C1": storedStatus(5),
		"C2": storedStatus(6),
		"Z9": storedStatus(7),
	}

	cs := Reconcile(clean, stored)

	assert.Equal(t, []string{"N2", "N1"}, codes(cs.Insert), "inserts keep incoming order")
	assert.Equal(t, []string{"C1", "C2"}, codes(cs.Upsert), "upserts are ordered by code")
	assert.Equal(t, 1, cs.Unchanged)
}

func TestReconcile_NullStoredStatusIsChanged(t *testing.T) {
	cs := Reconcile(
		[]model.Listing{rawListing("A1", "Compra", 5, 1, 1)},
		map[string]sql.NullInt64{"A1": {}},
	)
	require.Len(t, cs.Upsert, 1)
	assert.Empty(t, cs.Insert)
}

func TestReconcile_EmptyStore(t *testing.T) {
	clean := []model.Listing{rawListing("A1", "Compra", 5, 1, 1)}
	cs := Reconcile(clean, nil)
	assert.Len(t, cs.Insert, 1)
	assert.Empty(t, cs.Upsert)
}

func TestReconcile_NoChanges(t *testing.T) {
	clean := []model.Listing{rawListing("A1", "Otro titulo", 5, 3, 3)}
	cs := Reconcile(clean, map[string]sql.NullInt64{"A1": storedStatus(5)})

	// Title or date changes alone do not trigger a write
	assert.Empty(t, cs.Insert)
	assert.Empty(t, cs.Upsert)
	assert.Equal(t, 1, cs.Unchanged)
}
