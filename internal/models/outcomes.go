package models

// AcquireStatus classifies the result of a document acquisition attempt.
type AcquireStatus string

const (
	AcquireFetched AcquireStatus = "fetched"  // PDF downloaded and stored
	AcquireSkipped AcquireStatus = "skipped"  // already held in the object store
	AcquireFailed  AcquireStatus = "failed"   // see Err for stage and kind
)

// AcquireOutcome is the result of acquiring one disclosure document.
type AcquireOutcome struct {
	Status     AcquireStatus `json:"status"`
	StorageKey string        `json:"storage_key,omitempty"`
	Data       []byte        `json:"-"` // raw PDF bytes, nil when skipped or failed
	ByteSize   int64         `json:"byte_size,omitempty"`
	Err        *StageError   `json:"-"`
}

// ConvertOutcome is the result of converting a PDF to plain text.
type ConvertOutcome struct {
	Text      string      `json:"text"`
	PageCount int         `json:"page_count"`
	Err       *StageError `json:"-"`
}
