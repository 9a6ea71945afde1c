package model

import "time"

// Provenance is the audit record of fetching one publication day
type Provenance struct {
	ItemCount       int
	CreatedAt       string
	Version         string
	PublicationDate time.Time
	ResponseStatus  int
	NumberOrders    int
	Attempts        int
}

// FetchLog is a provenance row persisted by a load run
type FetchLog struct {
	Provenance
	RunID      string
	RecordedAt time.Time
}
