package acquirer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/models"
)

// stubFetcher returns canned bytes or blocks until the context expires.
type stubFetcher struct {
	data  []byte
	err   error
	block bool
	delay time.Duration

	active    int64
	maxActive int64
	calls     int64
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	atomic.AddInt64(&f.calls, 1)
	active := atomic.AddInt64(&f.active, 1)
	defer atomic.AddInt64(&f.active, -1)

	for {
		max := atomic.LoadInt64(&f.maxActive)
		if active <= max || atomic.CompareAndSwapInt64(&f.maxActive, max, active) {
			break
		}
	}

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.data, f.err
}

func (f *stubFetcher) Close() error { return nil }

// memStore is an in-memory object store.
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

func testCandidate(code, title string) *models.CandidateDisclosure {
	return &models.CandidateDisclosure{
		IssuerCode:  code,
		Title:       title,
		PublishedAt: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
		DocumentURL: "https://example.com/" + code + ".pdf",
	}
}

func newTestAcquirer(fetcher *stubFetcher, store *memStore, maxConcurrent int) *Service {
	return NewService(&common.AcquirerConfig{
		MaxConcurrent: maxConcurrent,
		FetchTimeout:  "200ms",
	}, fetcher, store, arbor.NewLogger())
}

func TestAcquireStoresPDF(t *testing.T) {
	pdf := []byte("%PDF-1.7 fake content")
	fetcher := &stubFetcher{data: pdf}
	store := newMemStore()
	svc := newTestAcquirer(fetcher, store, 2)

	candidate := testCandidate("BHP", "Quarterly Activities Report")
	outcome := svc.Acquire(context.Background(), candidate)

	require.Equal(t, models.AcquireFetched, outcome.Status)
	assert.Equal(t, int64(len(pdf)), outcome.ByteSize)
	assert.Equal(t, pdf, outcome.Data)

	stored, _ := store.Get(context.Background(), outcome.StorageKey)
	assert.Equal(t, pdf, stored)
	assert.Contains(t, outcome.StorageKey, "disclosures/2026/09/BHP_")
}

func TestAcquireSkipsExistingDocument(t *testing.T) {
	fetcher := &stubFetcher{data: []byte("%PDF-1.7")}
	store := newMemStore()
	svc := newTestAcquirer(fetcher, store, 2)

	candidate := testCandidate("BHP", "Quarterly Activities Report")

	first := svc.Acquire(context.Background(), candidate)
	require.Equal(t, models.AcquireFetched, first.Status)

	second := svc.Acquire(context.Background(), candidate)
	assert.Equal(t, models.AcquireSkipped, second.Status)
	assert.Equal(t, first.StorageKey, second.StorageKey)
	assert.Equal(t, int64(1), atomic.LoadInt64(&fetcher.calls), "skipped documents must not be fetched")
}

func TestAcquireRejectsNonPDF(t *testing.T) {
	fetcher := &stubFetcher{data: []byte("<html>terms and conditions</html>")}
	svc := newTestAcquirer(fetcher, newMemStore(), 2)

	outcome := svc.Acquire(context.Background(), testCandidate("CBA", "Dividend"))

	require.Equal(t, models.AcquireFailed, outcome.Status)
	require.NotNil(t, outcome.Err)
	assert.Equal(t, models.KindUnexpectedContentType, outcome.Err.Kind)
	assert.Equal(t, models.StageAcquire, outcome.Err.Stage)
}

func TestAcquireTimesOut(t *testing.T) {
	fetcher := &stubFetcher{block: true}
	svc := newTestAcquirer(fetcher, newMemStore(), 2)

	outcome := svc.Acquire(context.Background(), testCandidate("NAB", "Trading Halt"))

	require.Equal(t, models.AcquireFailed, outcome.Status)
	require.NotNil(t, outcome.Err)
	assert.Equal(t, models.KindFetchTimeout, outcome.Err.Kind)
}

func TestAcquireBoundsConcurrency(t *testing.T) {
	fetcher := &stubFetcher{data: []byte("%PDF-1.7"), delay: 20 * time.Millisecond}
	store := newMemStore()
	svc := newTestAcquirer(fetcher, store, 2)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			candidate := testCandidate("BHP", string(rune('A'+i)))
			svc.Acquire(context.Background(), candidate)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&fetcher.maxActive), int64(2),
		"no more than the configured number of fetches may run at once")
	assert.Equal(t, int64(10), atomic.LoadInt64(&fetcher.calls))
}

func TestStorageKeyIsStable(t *testing.T) {
	a := testCandidate("BHP", "Quarterly Activities Report")
	b := testCandidate("BHP", "Quarterly Activities Report")
	b.DocumentURL = "https://example.com/other-url.pdf"

	assert.Equal(t, StorageKey(a), StorageKey(b),
		"storage key depends on identity, not URL")
}
