package service

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jjenkins/tenders/internal/model"
)

// closeDateLayouts are the timestamp shapes seen in FechaCierre
var closeDateLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// ParseResult contains the fields extracted from one day's listing payload
type ParseResult struct {
	Count     int
	CreatedAt string
	Version   string
	Listings  []model.Listing
}

// listingResponse represents the API response for licitaciones.json?fecha=
type listingResponse struct {
	Cantidad      *int     `json:"Cantidad"`
	FechaCreacion string   `json:"FechaCreacion"`
	Version       string   `json:"Version"`
	Listado       []notice `json:"Listado"`
}

type notice struct {
	CodigoExterno *string `json:"CodigoExterno"`
	Nombre        *string `json:"Nombre"`
	CodigoEstado  *int64  `json:"CodigoEstado"`
	FechaCierre   *string `json:"FechaCierre"`
}

// Parser decodes listing payloads
type Parser struct{}

// NewParser creates a new Parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes a listing payload. Payloads without the Cantidad field are
// rejected as malformed. Missing notice fields stay null.
func (p *Parser) Parse(content []byte) (*ParseResult, error) {
	var resp listingResponse
	if err := json.Unmarshal(content, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse listing response: %w", err)
	}
	if resp.Cantidad == nil {
		return nil, fmt.Errorf("failed to parse listing response: missing Cantidad")
	}

	result := &ParseResult{
		Count:     *resp.Cantidad,
		CreatedAt: resp.FechaCreacion,
		Version:   resp.Version,
		Listings:  make([]model.Listing, 0, len(resp.Listado)),
	}

	for _, n := range resp.Listado {
		var l model.Listing
		if n.CodigoExterno != nil {
			l.ExternalCode = sql.NullString{String: *n.CodigoExterno, Valid: true}
		}
		if n.Nombre != nil {
			l.Title = sql.NullString{String: *n.Nombre, Valid: true}
		}
		if n.CodigoEstado != nil {
			l.StatusCode = sql.NullInt64{Int64: *n.CodigoEstado, Valid: true}
		}
		if n.FechaCierre != nil {
			l.CloseDate = parseCloseDate(*n.FechaCierre)
		}
		result.Listings = append(result.Listings, l)
	}

	return result, nil
}

// parseCloseDate returns a null time for blank or unrecognized values
func parseCloseDate(s string) sql.NullTime {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullTime{}
	}
	for _, layout := range closeDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return sql.NullTime{Time: t, Valid: true}
		}
	}
	return sql.NullTime{}
}
