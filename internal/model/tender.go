package model

import (
	"database/sql"
	"time"
)

// Listing represents one tender notice as observed on one publication day.
// Null fields mark values that were missing from the source payload.
type Listing struct {
	ExternalCode    sql.NullString
	Title           sql.NullString
	StatusCode      sql.NullInt64
	StatusLabel     sql.NullString
	CloseDate       sql.NullTime
	PublicationDate time.Time
}

// Complete reports whether every field required for storage is present
func (l Listing) Complete() bool {
	return l.ExternalCode.Valid && l.ExternalCode.String != "" &&
		l.Title.Valid && l.Title.String != "" &&
		l.StatusCode.Valid &&
		l.CloseDate.Valid
}

// Code returns the business key, empty when missing
func (l Listing) Code() string {
	return l.ExternalCode.String
}

// Tender represents the stored, current state of a tender notice
type Tender struct {
	ID              int64
	ExternalCode    string
	Title           sql.NullString
	StatusCode      sql.NullInt64
	StatusLabel     sql.NullString
	CloseDate       sql.NullTime
	PublicationDate sql.NullTime
}

// StatusCount is the number of stored tenders carrying one status label
type StatusCount struct {
	StatusCode  int64
	StatusLabel string
	Count       int
}
