// Package acquirer downloads disclosure PDFs through a rendered browser
// session and stores them in the object store.
package acquirer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/semaphore"

	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/interfaces"
	"github.com/ternarybob/praeco/internal/models"
)

var pdfMagic = []byte("%PDF")

// Service acquires disclosure documents. Concurrent fetches are capped
// by a weighted semaphore so the shared browser is never oversubscribed.
type Service struct {
	fetcher      interfaces.PageFetcher
	store        interfaces.ObjectStore
	sem          *semaphore.Weighted
	fetchTimeout time.Duration
	logger       arbor.ILogger
}

// NewService creates an acquirer from configuration.
func NewService(cfg *common.AcquirerConfig, fetcher interfaces.PageFetcher, store interfaces.ObjectStore, logger arbor.ILogger) *Service {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Service{
		fetcher:      fetcher,
		store:        store,
		sem:          semaphore.NewWeighted(int64(maxConcurrent)),
		fetchTimeout: common.Duration(cfg.FetchTimeout, 45*time.Second),
		logger:       logger,
	}
}

// StorageKey returns the object store key for a candidate's PDF:
// disclosures/YYYY/MM/{CODE}_{identity-hash}.pdf. The key depends only
// on the identity triple, so repeated runs address the same object.
func StorageKey(candidate *models.CandidateDisclosure) string {
	return fmt.Sprintf("disclosures/%s/%s_%s.pdf",
		candidate.PublishedAt.Format("2006/01"),
		candidate.IssuerCode,
		candidate.Identity().Key())
}

// Acquire downloads the candidate's PDF and stores it. A document
// already present in the object store is skipped without fetching.
func (s *Service) Acquire(ctx context.Context, candidate *models.CandidateDisclosure) models.AcquireOutcome {
	key := StorageKey(candidate)

	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return failed(models.KindPersistence, models.StagePersist, err)
	}
	if exists {
		s.logger.Debug().
			Str("issuer", candidate.IssuerCode).
			Str("key", key).
			Msg("Document already acquired, skipping fetch")
		return models.AcquireOutcome{Status: models.AcquireSkipped, StorageKey: key}
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return failed(models.KindFetchTimeout, models.StageAcquire, err)
	}
	defer s.sem.Release(1)

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	data, err := s.fetcher.Fetch(fetchCtx, candidate.DocumentURL)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return failed(models.KindFetchTimeout, models.StageAcquire, err)
		case errors.Is(err, ErrNotPDF):
			return failed(models.KindUnexpectedContentType, models.StageAcquire, err)
		default:
			return failed(models.KindTransientNetwork, models.StageAcquire, err)
		}
	}

	if !bytes.HasPrefix(data, pdfMagic) {
		return failed(models.KindUnexpectedContentType, models.StageAcquire,
			fmt.Errorf("response is not a PDF (%d bytes)", len(data)))
	}

	if _, err := s.store.Put(ctx, key, data, "application/pdf"); err != nil {
		return failed(models.KindPersistence, models.StagePersist, err)
	}

	s.logger.Info().
		Str("issuer", candidate.IssuerCode).
		Str("title", candidate.Title).
		Str("key", key).
		Int("bytes", len(data)).
		Msg("Document acquired")

	return models.AcquireOutcome{
		Status:     models.AcquireFetched,
		StorageKey: key,
		Data:       data,
		ByteSize:   int64(len(data)),
	}
}

func failed(kind models.ErrorKind, stage models.Stage, err error) models.AcquireOutcome {
	return models.AcquireOutcome{
		Status: models.AcquireFailed,
		Err:    models.NewStageError(stage, kind, err),
	}
}
