package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	body := []byte(`{
		"Cantidad": 2,
		"FechaCreacion": "2022-01-04T10:11:12.123",
		"Version": "v1",
		"Listado": [
			{"CodigoExterno": "1509-5-L122", "Nombre": "Compra de insumos", "CodigoEstado": 5, "FechaCierre": "2022-02-01T15:00:00"},
			{"CodigoExterno": "2222-1-LE22", "Nombre": "Servicio de aseo", "CodigoEstado": 6, "FechaCierre": null}
		]
	}`)

	result, err := NewParser().Parse(body)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Count)
	assert.Equal(t, "2022-01-04T10:11:12.123", result.CreatedAt)
	assert.Equal(t, "v1", result.Version)
	require.Len(t, result.Listings, 2)

	first := result.Listings[0]
	assert.Equal(t, "1509-5-L122", first.Code())
	assert.Equal(t, int64(5), first.StatusCode.Int64)
	require.True(t, first.CloseDate.Valid)
	assert.True(t, first.CloseDate.Time.Equal(time.Date(2022, 2, 1, 15, 0, 0, 0, time.UTC)))
	assert.True(t, first.Complete())

	second := result.Listings[1]
	assert.False(t, second.CloseDate.Valid)
	assert.False(t, second.Complete())
}

func TestParse_MissingFieldsStayNull(t *testing.T) {
	result, err := NewParser().Parse([]byte(`{"Cantidad": 1, "Listado": [{"Nombre": "Sin codigo"}]}`))
	require.NoError(t, err)
	require.Len(t, result.Listings, 1)

	l := result.Listings[0]
	assert.False(t, l.ExternalCode.Valid)
	assert.False(t, l.StatusCode.Valid)
	assert.True(t, l.Title.Valid)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"Cantidad": `},
		{"missing count", `{"Listado": []}`},
		{"html error page", `<html>Service Unavailable</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().Parse([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestParseCloseDate(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
	}{
		{"2022-02-01T15:00:00", true},
		{"2022-02-01T15:00:00.5", true},
		{"2022-02-01T15:00:00Z", true},
		{"2022-02-01 15:00:00", true},
		{"", false},
		{"mañana", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.valid, parseCloseDate(tt.in).Valid, tt.in)
	}
}
