package interfaces

import (
	"context"

	"github.com/ternarybob/praeco/internal/models"
)

// PipelineRunner executes one full scan-and-process pass. The scheduler
// depends on this interface so runs can be stubbed in tests.
type PipelineRunner interface {
	// Run scans the listing and processes every candidate disclosure.
	// A per-document failure does not fail the run; stats record it.
	Run(ctx context.Context, trigger models.RunTrigger) (*models.RunStats, error)
}
