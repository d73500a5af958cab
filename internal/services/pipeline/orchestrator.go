// Package pipeline coordinates the disclosure processing stages: scan,
// acquire, convert, enrich, market data and persistence.
package pipeline

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/interfaces"
	"github.com/ternarybob/praeco/internal/models"
)

// ListingScanner produces candidate disclosures from the daily listing.
type ListingScanner interface {
	Scan(ctx context.Context) (*models.ScanReport, error)
}

// DocumentAcquirer downloads and stores one disclosure PDF.
type DocumentAcquirer interface {
	Acquire(ctx context.Context, candidate *models.CandidateDisclosure) models.AcquireOutcome
}

// DocumentConverter turns PDF bytes into plain text.
type DocumentConverter interface {
	Convert(ctx context.Context, pdfContent []byte) models.ConvertOutcome
}

// Enricher analyzes converted disclosure text.
type Enricher interface {
	Enrich(ctx context.Context, disclosureID, title, text string) *models.EnrichmentResult
}

// MarketFetcher resolves market metrics for an issuer.
type MarketFetcher interface {
	FetchMetrics(ctx context.Context, disclosureID, issuerCode string) models.MarketOutcome
}

// Orchestrator runs candidate disclosures through the pipeline. Each
// document is isolated: a stage failure records the error and moves on,
// and everything produced before the failure is persisted.
type Orchestrator struct {
	scanner   ListingScanner
	acquirer  DocumentAcquirer
	converter DocumentConverter
	enricher  Enricher
	market    MarketFetcher
	store     interfaces.ObjectStore
	repo      interfaces.Repository
	maxConcur int
	logger    arbor.ILogger
}

var _ interfaces.PipelineRunner = (*Orchestrator)(nil)

// NewOrchestrator wires the pipeline stages together.
func NewOrchestrator(
	cfg *common.PipelineConfig,
	scanner ListingScanner,
	acquirer DocumentAcquirer,
	converter DocumentConverter,
	enricher Enricher,
	market MarketFetcher,
	store interfaces.ObjectStore,
	repo interfaces.Repository,
	logger arbor.ILogger,
) *Orchestrator {
	maxConcur := cfg.MaxConcurrentDocuments
	if maxConcur < 1 {
		maxConcur = 1
	}
	return &Orchestrator{
		scanner:   scanner,
		acquirer:  acquirer,
		converter: converter,
		enricher:  enricher,
		market:    market,
		store:     store,
		repo:      repo,
		maxConcur: maxConcur,
		logger:    logger,
	}
}

// Run scans the listing and processes every candidate. The only error
// this returns is an unavailable listing; per-document failures are
// recorded in the stats.
func (o *Orchestrator) Run(ctx context.Context, trigger models.RunTrigger) (*models.RunStats, error) {
	stats := &models.RunStats{StartedAt: time.Now()}

	report, err := o.scanner.Scan(ctx)
	if err != nil {
		return nil, models.NewStageError(models.StageScan, models.KindScanUnavailable, err)
	}

	stats.Seen = len(report.Candidates)

	o.logger.Info().
		Str("trigger", string(trigger)).
		Int("candidates", stats.Seen).
		Int("rows_skipped", report.RowsSkipped).
		Msg("Pipeline run started")

	o.RunBatch(ctx, report.Candidates, stats)

	stats.EndedAt = time.Now()

	o.logger.Info().
		Int("acquired", stats.Acquired).
		Int("already_acquired", stats.AlreadyAcquired).
		Int("enriched", stats.Enriched).
		Int("failed", stats.Failed).
		Str("duration", stats.Duration().String()).
		Msg("Pipeline run finished")

	return stats, nil
}

// RunBatch processes candidates concurrently, bounded by the configured
// document limit.
func (o *Orchestrator) RunBatch(ctx context.Context, candidates []models.CandidateDisclosure, stats *models.RunStats) {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.maxConcur)

	for i := range candidates {
		candidate := &candidates[i]
		group.Go(func() error {
			o.processCandidate(groupCtx, candidate, stats)
			return nil
		})
	}

	group.Wait()
}

// processCandidate runs one disclosure through acquire, convert, enrich
// and market stages, persisting progress after each stage so partial
// results survive later failures.
func (o *Orchestrator) processCandidate(ctx context.Context, candidate *models.CandidateDisclosure, stats *models.RunStats) {
	id := candidate.Identity().Key()

	existing, err := o.repo.GetDisclosure(id)
	if err != nil {
		o.recordFailure(stats, candidate,
			models.NewStageError(models.StagePersist, models.KindPersistence, err))
		return
	}
	if existing != nil && existing.EnrichedAt != nil {
		o.logger.Debug().
			Str("issuer", candidate.IssuerCode).
			Str("title", candidate.Title).
			Msg("Disclosure already processed, skipping")
		stats.Add(func(s *models.RunStats) { s.AlreadyAcquired++ })
		return
	}

	doc := o.mergeCandidate(existing, candidate, id)
	if err := o.repo.UpsertDisclosure(doc); err != nil {
		o.recordFailure(stats, candidate,
			models.NewStageError(models.StagePersist, models.KindPersistence, err))
		return
	}
	if err := o.repo.UpsertIssuer(&models.Issuer{Code: doc.IssuerCode, Name: doc.CompanyName}); err != nil {
		o.logger.Warn().Err(err).Str("issuer", doc.IssuerCode).Msg("Failed to upsert issuer")
	}

	// Market data is independent of the document stages, so fetch it
	// in parallel with acquisition and conversion.
	marketCh := make(chan models.MarketOutcome, 1)
	go func() {
		marketCh <- o.market.FetchMetrics(ctx, id, candidate.IssuerCode)
	}()
	defer func() {
		o.recordMarket(<-marketCh, doc, stats)
	}()

	pdfContent, ok := o.acquireStage(ctx, candidate, doc, stats)
	if !ok {
		return
	}

	if !o.convertStage(ctx, pdfContent, doc, candidate, stats) {
		return
	}

	o.enrichStage(ctx, doc, candidate, stats)
}

// mergeCandidate folds fresh listing data into an existing record, or
// starts a new one.
func (o *Orchestrator) mergeCandidate(existing *models.Disclosure, candidate *models.CandidateDisclosure, id string) *models.Disclosure {
	if existing == nil {
		return &models.Disclosure{
			ID:             id,
			IssuerCode:     candidate.IssuerCode,
			CompanyName:    candidate.CompanyName,
			Title:          candidate.Title,
			PublishedAt:    candidate.PublishedAt,
			DocumentURL:    candidate.DocumentURL,
			PriceSensitive: candidate.PriceSensitive,
			PageCount:      candidate.PageCount,
		}
	}
	existing.DocumentURL = candidate.DocumentURL
	existing.PriceSensitive = candidate.PriceSensitive
	return existing
}

// acquireStage downloads the PDF, or recovers the bytes of a document
// acquired by an earlier run that never finished converting.
func (o *Orchestrator) acquireStage(ctx context.Context, candidate *models.CandidateDisclosure, doc *models.Disclosure, stats *models.RunStats) ([]byte, bool) {
	outcome := o.acquirer.Acquire(ctx, candidate)

	switch outcome.Status {
	case models.AcquireFailed:
		o.recordFailure(stats, candidate, outcome.Err)
		return nil, false

	case models.AcquireSkipped:
		stats.Add(func(s *models.RunStats) { s.AlreadyAcquired++ })
		doc.StorageKey = outcome.StorageKey
		if doc.Text != "" {
			// Converted in an earlier run; nothing left to fetch
			return nil, true
		}
		data, err := o.store.Get(ctx, outcome.StorageKey)
		if err != nil {
			o.recordFailure(stats, candidate,
				models.NewStageError(models.StageAcquire, models.KindPersistence, err))
			return nil, false
		}
		return data, true

	default:
		stats.Add(func(s *models.RunStats) { s.Acquired++ })
		now := time.Now()
		doc.StorageKey = outcome.StorageKey
		doc.ByteSize = outcome.ByteSize
		doc.AcquiredAt = &now
		if err := o.repo.UpsertDisclosure(doc); err != nil {
			o.recordFailure(stats, candidate,
				models.NewStageError(models.StagePersist, models.KindPersistence, err))
			return nil, false
		}
		return outcome.Data, true
	}
}

// convertStage extracts text unless the record already carries it.
func (o *Orchestrator) convertStage(ctx context.Context, pdfContent []byte, doc *models.Disclosure, candidate *models.CandidateDisclosure, stats *models.RunStats) bool {
	if doc.Text != "" {
		return true
	}

	outcome := o.converter.Convert(ctx, pdfContent)
	if outcome.Err != nil {
		o.recordFailure(stats, candidate, outcome.Err)
		return false
	}

	now := time.Now()
	doc.Text = outcome.Text
	doc.PageCount = outcome.PageCount
	doc.ConvertedAt = &now
	if err := o.repo.UpsertDisclosure(doc); err != nil {
		o.recordFailure(stats, candidate,
			models.NewStageError(models.StagePersist, models.KindPersistence, err))
		return false
	}

	stats.Add(func(s *models.RunStats) { s.Converted++ })
	return true
}

// enrichStage analyzes the text and persists the result. Enrichment
// itself cannot fail (it falls back to neutral); only persistence can.
func (o *Orchestrator) enrichStage(ctx context.Context, doc *models.Disclosure, candidate *models.CandidateDisclosure, stats *models.RunStats) {
	result := o.enricher.Enrich(ctx, doc.ID, doc.Title, doc.Text)

	if err := o.repo.UpsertEnrichment(result); err != nil {
		o.recordFailure(stats, candidate,
			models.NewStageError(models.StagePersist, models.KindPersistence, err))
		return
	}

	now := time.Now()
	doc.EnrichedAt = &now
	if err := o.repo.UpsertDisclosure(doc); err != nil {
		o.recordFailure(stats, candidate,
			models.NewStageError(models.StagePersist, models.KindPersistence, err))
		return
	}

	stats.Add(func(s *models.RunStats) {
		s.Enriched++
		if result.Fallback {
			s.EnrichFallbacks++
		}
	})
}

// recordMarket persists the market outcome gathered for the document.
// Unavailable data is not a failure; it simply leaves no snapshot.
func (o *Orchestrator) recordMarket(outcome models.MarketOutcome, doc *models.Disclosure, stats *models.RunStats) {
	if !outcome.Available {
		o.logger.Debug().
			Str("issuer", doc.IssuerCode).
			Str("reason", outcome.Reason).
			Msg("Market data unavailable")
		return
	}

	if err := o.repo.UpsertMarketSnapshot(outcome.Snapshot); err != nil {
		o.logger.Warn().Err(err).Str("issuer", doc.IssuerCode).Msg("Failed to persist market snapshot")
		return
	}
	stats.Add(func(s *models.RunStats) { s.MarketMatched++ })
}

func (o *Orchestrator) recordFailure(stats *models.RunStats, candidate *models.CandidateDisclosure, se *models.StageError) {
	o.logger.Warn().
		Str("issuer", candidate.IssuerCode).
		Str("title", candidate.Title).
		Str("stage", string(se.Stage)).
		Str("kind", string(se.Kind)).
		Err(se.Err).
		Msg("Document processing failed")
	stats.RecordError(candidate.IssuerCode, candidate.Title, se)
}
