package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/praeco/internal/interfaces"
	"github.com/ternarybob/praeco/internal/models"
)

// Repository persists disclosures, issuers, enrichment results and
// market snapshots in BadgerDB. All writes are upserts keyed by the
// record's natural identity, so repeating a pipeline run is safe.
type Repository struct {
	db     *BadgerDB
	logger arbor.ILogger
}

var _ interfaces.Repository = (*Repository)(nil)

// NewRepository creates a repository backed by the given connection.
func NewRepository(db *BadgerDB, logger arbor.ILogger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// UpsertDisclosure stores or updates a disclosure record by identity key.
func (r *Repository) UpsertDisclosure(doc *models.Disclosure) error {
	if doc.ID == "" {
		return fmt.Errorf("disclosure has no ID")
	}

	now := time.Now()
	if doc.CreatedAt.IsZero() {
		if existing, err := r.GetDisclosure(doc.ID); err == nil && existing != nil {
			doc.CreatedAt = existing.CreatedAt
		} else {
			doc.CreatedAt = now
		}
	}
	doc.UpdatedAt = now

	if err := r.db.Store().Upsert(doc.ID, doc); err != nil {
		return fmt.Errorf("failed to upsert disclosure %s: %w", doc.ID, err)
	}

	r.logger.Debug().
		Str("id", doc.ID).
		Str("issuer", doc.IssuerCode).
		Str("title", doc.Title).
		Msg("Disclosure upserted")

	return nil
}

// GetDisclosure retrieves a disclosure by identity key. Returns
// (nil, nil) when the record does not exist.
func (r *Repository) GetDisclosure(id string) (*models.Disclosure, error) {
	var doc models.Disclosure
	if err := r.db.Store().Get(id, &doc); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get disclosure %s: %w", id, err)
	}
	return &doc, nil
}

// ListDisclosuresByIssuer returns all stored disclosures for one issuer.
func (r *Repository) ListDisclosuresByIssuer(issuerCode string) ([]models.Disclosure, error) {
	var docs []models.Disclosure
	err := r.db.Store().Find(&docs, badgerhold.Where("IssuerCode").Eq(issuerCode))
	if err != nil {
		return nil, fmt.Errorf("failed to list disclosures for %s: %w", issuerCode, err)
	}
	return docs, nil
}

// UpsertIssuer stores or updates an issuer by code.
func (r *Repository) UpsertIssuer(issuer *models.Issuer) error {
	if issuer.Code == "" {
		return fmt.Errorf("issuer has no code")
	}
	issuer.UpdatedAt = time.Now()

	if err := r.db.Store().Upsert(issuer.Code, issuer); err != nil {
		return fmt.Errorf("failed to upsert issuer %s: %w", issuer.Code, err)
	}
	return nil
}

// GetIssuer retrieves an issuer by code. Returns (nil, nil) when absent.
func (r *Repository) GetIssuer(code string) (*models.Issuer, error) {
	var issuer models.Issuer
	if err := r.db.Store().Get(code, &issuer); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get issuer %s: %w", code, err)
	}
	return &issuer, nil
}

// UpsertEnrichment stores or updates the analysis for a disclosure.
func (r *Repository) UpsertEnrichment(result *models.EnrichmentResult) error {
	if result.DisclosureID == "" {
		return fmt.Errorf("enrichment result has no disclosure ID")
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}

	if err := r.db.Store().Upsert(result.DisclosureID, result); err != nil {
		return fmt.Errorf("failed to upsert enrichment for %s: %w", result.DisclosureID, err)
	}

	r.logger.Debug().
		Str("disclosure_id", result.DisclosureID).
		Str("sentiment", string(result.Sentiment)).
		Bool("fallback", result.Fallback).
		Msg("Enrichment upserted")

	return nil
}

// GetEnrichment retrieves the analysis for a disclosure. Returns
// (nil, nil) when absent.
func (r *Repository) GetEnrichment(disclosureID string) (*models.EnrichmentResult, error) {
	var result models.EnrichmentResult
	if err := r.db.Store().Get(disclosureID, &result); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get enrichment for %s: %w", disclosureID, err)
	}
	return &result, nil
}

// UpsertMarketSnapshot stores or updates the market snapshot for a
// disclosure.
func (r *Repository) UpsertMarketSnapshot(snapshot *models.MarketSnapshot) error {
	if snapshot.DisclosureID == "" {
		return fmt.Errorf("market snapshot has no disclosure ID")
	}
	if snapshot.FetchedAt.IsZero() {
		snapshot.FetchedAt = time.Now()
	}

	if err := r.db.Store().Upsert(snapshot.DisclosureID, snapshot); err != nil {
		return fmt.Errorf("failed to upsert market snapshot for %s: %w", snapshot.DisclosureID, err)
	}
	return nil
}

// GetMarketSnapshot retrieves the market snapshot for a disclosure.
// Returns (nil, nil) when absent.
func (r *Repository) GetMarketSnapshot(disclosureID string) (*models.MarketSnapshot, error) {
	var snapshot models.MarketSnapshot
	if err := r.db.Store().Get(disclosureID, &snapshot); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get market snapshot for %s: %w", disclosureID, err)
	}
	return &snapshot, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}
