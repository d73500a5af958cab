package interfaces

import "github.com/ternarybob/praeco/internal/models"

// Repository persists pipeline output. Writes are idempotent upserts
// keyed by the disclosure identity so re-running a batch never creates
// duplicates.
type Repository interface {
	UpsertDisclosure(doc *models.Disclosure) error
	GetDisclosure(id string) (*models.Disclosure, error)
	ListDisclosuresByIssuer(issuerCode string) ([]models.Disclosure, error)

	UpsertIssuer(issuer *models.Issuer) error
	GetIssuer(code string) (*models.Issuer, error)

	UpsertEnrichment(result *models.EnrichmentResult) error
	GetEnrichment(disclosureID string) (*models.EnrichmentResult, error)

	UpsertMarketSnapshot(snapshot *models.MarketSnapshot) error
	GetMarketSnapshot(disclosureID string) (*models.MarketSnapshot, error)

	Close() error
}
