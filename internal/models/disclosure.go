package models

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"
)

// CandidateDisclosure is a single row parsed from the exchange's daily
// announcements page. It carries everything known about a disclosure
// before the PDF has been fetched.
type CandidateDisclosure struct {
	IssuerCode     string    `json:"issuer_code"` // e.g. "BHP", up to 10 chars
	CompanyName    string    `json:"company_name,omitempty"`
	Title          string    `json:"title"`
	PublishedAt    time.Time `json:"published_at"`
	DocumentURL    string    `json:"document_url"`
	PriceSensitive bool      `json:"price_sensitive"`
	PageCount      int       `json:"page_count,omitempty"` // as reported by the listing, 0 if absent
	FileSize       string    `json:"file_size,omitempty"`  // as reported by the listing, e.g. "243KB"
}

// Identity returns the natural identity of the disclosure: issuer code,
// publication date (day precision) and title. Two listing rows with the
// same triple are the same disclosure even if their URLs differ.
func (c *CandidateDisclosure) Identity() DisclosureIdentity {
	return DisclosureIdentity{
		IssuerCode: c.IssuerCode,
		Date:       c.PublishedAt.Format("2006-01-02"),
		Title:      c.Title,
	}
}

// DisclosureIdentity uniquely identifies a disclosure across runs.
type DisclosureIdentity struct {
	IssuerCode string `json:"issuer_code"`
	Date       string `json:"date"` // YYYY-MM-DD
	Title      string `json:"title"`
}

// Key returns a stable hex digest of the identity triple, used as the
// storage key for the disclosure record.
func (id DisclosureIdentity) Key() string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%s|%s", id.IssuerCode, id.Date, id.Title)))
	return hex.EncodeToString(sum[:])
}

// Disclosure is the persisted record for one regulatory disclosure as it
// moves through the pipeline. Stage timestamps are nil until the stage
// has completed for this document.
type Disclosure struct {
	ID             string    `json:"id" badgerhold:"key"` // DisclosureIdentity.Key()
	IssuerCode     string    `json:"issuer_code" badgerhold:"index"`
	CompanyName    string    `json:"company_name,omitempty"`
	Title          string    `json:"title"`
	PublishedAt    time.Time `json:"published_at"`
	DocumentURL    string    `json:"document_url"`
	PriceSensitive bool      `json:"price_sensitive"`

	// Acquisition
	StorageKey string     `json:"storage_key,omitempty"` // object store key of the raw PDF
	ByteSize   int64      `json:"byte_size,omitempty"`
	AcquiredAt *time.Time `json:"acquired_at,omitempty"`

	// Conversion
	PageCount   int        `json:"page_count,omitempty"`
	Text        string     `json:"text,omitempty"`
	ConvertedAt *time.Time `json:"converted_at,omitempty"`

	// Enrichment
	EnrichedAt *time.Time `json:"enriched_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Issuer is a listed entity referenced by disclosures.
type Issuer struct {
	Code      string    `json:"code" badgerhold:"key"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScanReport summarizes one pass over the listing page.
type ScanReport struct {
	Candidates          []CandidateDisclosure `json:"candidates"`
	RowsSkipped         int                   `json:"rows_skipped"` // malformed rows dropped during parsing
	PriceSensitiveCount int                   `json:"price_sensitive_count"`
	FetchedAt           time.Time             `json:"fetched_at"`
}
