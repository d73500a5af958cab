package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/models"
)

// --- stubs ---

type stubScanner struct {
	report *models.ScanReport
	err    error
}

func (s *stubScanner) Scan(ctx context.Context) (*models.ScanReport, error) {
	return s.report, s.err
}

type stubAcquirer struct {
	mu       sync.Mutex
	outcomes map[string]models.AcquireOutcome // keyed by issuer code
}

func (a *stubAcquirer) Acquire(ctx context.Context, c *models.CandidateDisclosure) models.AcquireOutcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	if outcome, ok := a.outcomes[c.IssuerCode]; ok {
		return outcome
	}
	return models.AcquireOutcome{
		Status:     models.AcquireFetched,
		StorageKey: "disclosures/" + c.IssuerCode + ".pdf",
		Data:       []byte("%PDF-1.7"),
		ByteSize:   8,
	}
}

type stubConverter struct {
	failAll bool
}

func (c *stubConverter) Convert(ctx context.Context, pdfContent []byte) models.ConvertOutcome {
	if c.failAll {
		return models.ConvertOutcome{
			Err: models.NewStageError(models.StageConvert, models.KindConversionFailed, errors.New("corrupt document")),
		}
	}
	return models.ConvertOutcome{Text: "extracted text", PageCount: 2}
}

type stubEnricher struct {
	fallback bool
}

func (e *stubEnricher) Enrich(ctx context.Context, disclosureID, title, text string) *models.EnrichmentResult {
	if e.fallback {
		return models.NeutralEnrichment(disclosureID, "model unavailable")
	}
	return &models.EnrichmentResult{
		DisclosureID: disclosureID,
		Summary:      "summary of " + title,
		Sentiment:    models.SentimentBullish,
		KeyInsights:  []string{"insight"},
		Confidence:   0.8,
		CreatedAt:    time.Now(),
	}
}

type stubMarket struct {
	unavailable bool
}

func (m *stubMarket) FetchMetrics(ctx context.Context, disclosureID, issuerCode string) models.MarketOutcome {
	if m.unavailable {
		return models.MarketUnavailable("ticker not found")
	}
	return models.MarketOutcome{
		Available: true,
		Snapshot: &models.MarketSnapshot{
			DisclosureID: disclosureID,
			IssuerCode:   issuerCode,
			Price:        42,
			FetchedAt:    time.Now(),
		},
	}
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return key, nil
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[key], nil
}

// memRepo is an in-memory Repository.
type memRepo struct {
	mu          sync.Mutex
	disclosures map[string]*models.Disclosure
	issuers     map[string]*models.Issuer
	enrichments map[string]*models.EnrichmentResult
	snapshots   map[string]*models.MarketSnapshot
	upserts     int
}

func newMemRepo() *memRepo {
	return &memRepo{
		disclosures: make(map[string]*models.Disclosure),
		issuers:     make(map[string]*models.Issuer),
		enrichments: make(map[string]*models.EnrichmentResult),
		snapshots:   make(map[string]*models.MarketSnapshot),
	}
}

func (r *memRepo) UpsertDisclosure(doc *models.Disclosure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *doc
	r.disclosures[doc.ID] = &clone
	r.upserts++
	return nil
}

func (r *memRepo) GetDisclosure(id string) (*models.Disclosure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc, ok := r.disclosures[id]; ok {
		clone := *doc
		return &clone, nil
	}
	return nil, nil
}

func (r *memRepo) ListDisclosuresByIssuer(issuerCode string) ([]models.Disclosure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var docs []models.Disclosure
	for _, doc := range r.disclosures {
		if doc.IssuerCode == issuerCode {
			docs = append(docs, *doc)
		}
	}
	return docs, nil
}

func (r *memRepo) UpsertIssuer(issuer *models.Issuer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issuers[issuer.Code] = issuer
	return nil
}

func (r *memRepo) GetIssuer(code string) (*models.Issuer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.issuers[code], nil
}

func (r *memRepo) UpsertEnrichment(result *models.EnrichmentResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enrichments[result.DisclosureID] = result
	return nil
}

func (r *memRepo) GetEnrichment(disclosureID string) (*models.EnrichmentResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enrichments[disclosureID], nil
}

func (r *memRepo) UpsertMarketSnapshot(snapshot *models.MarketSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[snapshot.DisclosureID] = snapshot
	return nil
}

func (r *memRepo) GetMarketSnapshot(disclosureID string) (*models.MarketSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshots[disclosureID], nil
}

func (r *memRepo) Close() error { return nil }

// --- helpers ---

func candidates(codes ...string) []models.CandidateDisclosure {
	published := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	var out []models.CandidateDisclosure
	for _, code := range codes {
		out = append(out, models.CandidateDisclosure{
			IssuerCode:  code,
			Title:       code + " Announcement",
			PublishedAt: published,
			DocumentURL: "https://example.com/" + code + ".pdf",
		})
	}
	return out
}

type fixture struct {
	scanner   *stubScanner
	acquirer  *stubAcquirer
	converter *stubConverter
	enricher  *stubEnricher
	market    *stubMarket
	store     *memStore
	repo      *memRepo
}

func newFixture(codes ...string) *fixture {
	return &fixture{
		scanner: &stubScanner{report: &models.ScanReport{
			Candidates: candidates(codes...),
			FetchedAt:  time.Now(),
		}},
		acquirer:  &stubAcquirer{outcomes: map[string]models.AcquireOutcome{}},
		converter: &stubConverter{},
		enricher:  &stubEnricher{},
		market:    &stubMarket{},
		store:     newMemStore(),
		repo:      newMemRepo(),
	}
}

func (f *fixture) orchestrator() *Orchestrator {
	return NewOrchestrator(
		&common.PipelineConfig{MaxConcurrentDocuments: 2},
		f.scanner, f.acquirer, f.converter, f.enricher, f.market,
		f.store, f.repo,
		arbor.NewLogger(),
	)
}

// --- tests ---

func TestRunProcessesAllCandidates(t *testing.T) {
	f := newFixture("BHP", "CBA", "NAB")

	stats, err := f.orchestrator().Run(context.Background(), models.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Seen)
	assert.Equal(t, 3, stats.Acquired)
	assert.Equal(t, 3, stats.Converted)
	assert.Equal(t, 3, stats.Enriched)
	assert.Equal(t, 3, stats.MarketMatched)
	assert.Zero(t, stats.Failed)

	assert.Len(t, f.repo.disclosures, 3)
	assert.Len(t, f.repo.enrichments, 3)
	assert.Len(t, f.repo.snapshots, 3)
	assert.Len(t, f.repo.issuers, 3)

	for _, doc := range f.repo.disclosures {
		assert.NotNil(t, doc.AcquiredAt)
		assert.NotNil(t, doc.ConvertedAt)
		assert.NotNil(t, doc.EnrichedAt)
		assert.Equal(t, "extracted text", doc.Text)
	}
}

func TestRunScanUnavailableFailsRun(t *testing.T) {
	f := newFixture()
	f.scanner.err = errors.New("listing fetch failed")

	_, err := f.orchestrator().Run(context.Background(), models.TriggerScheduled)
	require.Error(t, err)

	se := models.AsStageError(err)
	require.NotNil(t, se)
	assert.Equal(t, models.StageScan, se.Stage)
	assert.Equal(t, models.KindScanUnavailable, se.Kind)
}

func TestRunIsolatesDocumentFailures(t *testing.T) {
	f := newFixture("BHP", "BAD", "NAB")
	f.acquirer.outcomes["BAD"] = models.AcquireOutcome{
		Status: models.AcquireFailed,
		Err:    models.NewStageError(models.StageAcquire, models.KindFetchTimeout, context.DeadlineExceeded),
	}

	stats, err := f.orchestrator().Run(context.Background(), models.TriggerManual)
	require.NoError(t, err, "a failed document must not fail the run")

	assert.Equal(t, 2, stats.Enriched)
	assert.Equal(t, 1, stats.Failed)
	require.Len(t, stats.Errors, 1)
	assert.Equal(t, "BAD", stats.Errors[0].IssuerCode)
	assert.Equal(t, models.KindFetchTimeout, stats.Errors[0].Kind)

	// the failed document still has its listing data persisted
	badID := candidates("BAD")[0].Identity().Key()
	doc, _ := f.repo.GetDisclosure(badID)
	require.NotNil(t, doc)
	assert.Nil(t, doc.AcquiredAt)
}

func TestRunPersistsProgressBeforeFailure(t *testing.T) {
	f := newFixture("BHP")
	f.converter.failAll = true

	stats, err := f.orchestrator().Run(context.Background(), models.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Acquired)
	assert.Zero(t, stats.Converted)
	assert.Equal(t, 1, stats.Failed)

	id := candidates("BHP")[0].Identity().Key()
	doc, _ := f.repo.GetDisclosure(id)
	require.NotNil(t, doc)
	assert.NotNil(t, doc.AcquiredAt, "acquisition must be persisted even when conversion fails")
	assert.Nil(t, doc.ConvertedAt)
	assert.Equal(t, 1, stats.MarketMatched, "market data is independent of conversion")
}

func TestRunSkipsFullyProcessedDocuments(t *testing.T) {
	f := newFixture("BHP")

	orch := f.orchestrator()
	_, err := orch.Run(context.Background(), models.TriggerManual)
	require.NoError(t, err)

	firstUpserts := f.repo.upserts

	stats, err := orch.Run(context.Background(), models.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.AlreadyAcquired)
	assert.Zero(t, stats.Acquired)
	assert.Zero(t, stats.Enriched)
	assert.Equal(t, firstUpserts, f.repo.upserts, "rerunning a processed document must not rewrite it")
}

func TestRunResumesPartiallyProcessedDocument(t *testing.T) {
	f := newFixture("BHP")
	candidate := candidates("BHP")[0]
	id := candidate.Identity().Key()

	// first run fails at conversion
	f.converter.failAll = true
	orch := f.orchestrator()
	_, err := orch.Run(context.Background(), models.TriggerManual)
	require.NoError(t, err)

	// the PDF is now in the object store, so the next run skips the fetch
	key := "disclosures/BHP.pdf"
	f.store.Put(context.Background(), key, []byte("%PDF-1.7"), "application/pdf")
	f.acquirer.outcomes["BHP"] = models.AcquireOutcome{
		Status:     models.AcquireSkipped,
		StorageKey: key,
	}
	f.converter.failAll = false

	stats, err := orch.Run(context.Background(), models.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.AlreadyAcquired)
	assert.Equal(t, 1, stats.Converted)
	assert.Equal(t, 1, stats.Enriched)

	doc, _ := f.repo.GetDisclosure(id)
	require.NotNil(t, doc)
	assert.NotNil(t, doc.EnrichedAt)
	assert.Equal(t, "extracted text", doc.Text)
}

func TestRunRecordsEnrichmentFallback(t *testing.T) {
	f := newFixture("BHP")
	f.enricher.fallback = true

	stats, err := f.orchestrator().Run(context.Background(), models.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Enriched, "fallback still completes the stage")
	assert.Equal(t, 1, stats.EnrichFallbacks)
	assert.Zero(t, stats.Failed)

	id := candidates("BHP")[0].Identity().Key()
	enrichment, _ := f.repo.GetEnrichment(id)
	require.NotNil(t, enrichment)
	assert.True(t, enrichment.Fallback)
	assert.Equal(t, models.SentimentNeutral, enrichment.Sentiment)
}

func TestRunMarketUnavailableIsNotAFailure(t *testing.T) {
	f := newFixture("BHP")
	f.market.unavailable = true

	stats, err := f.orchestrator().Run(context.Background(), models.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Enriched)
	assert.Zero(t, stats.MarketMatched)
	assert.Zero(t, stats.Failed)
	assert.Empty(t, f.repo.snapshots)
}
