// Package converter turns acquired PDF documents into plain text for
// enrichment. Uses pdfcpu for Go-native PDF processing.
package converter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/praeco/internal/models"
)

// Service converts PDF bytes to page-separated plain text.
type Service struct {
	tempDir string
	logger  arbor.ILogger
}

// NewService creates a converter with a scratch directory for pdfcpu
// processing.
func NewService(logger arbor.ILogger) *Service {
	tempDir := filepath.Join(os.TempDir(), "praeco-pdf")
	os.MkdirAll(tempDir, 0755)

	return &Service{
		tempDir: tempDir,
		logger:  logger,
	}
}

// Convert extracts text from pdfContent. Pages are joined with
// "--- Page N ---" separators. A corrupt or unreadable document yields
// a ConversionFailed outcome with zero-length text; it never panics or
// blocks the batch.
func (s *Service) Convert(ctx context.Context, pdfContent []byte) models.ConvertOutcome {
	if len(pdfContent) == 0 {
		return conversionFailed(fmt.Errorf("empty document"))
	}

	// pdfcpu works on files, so bridge through the scratch directory.
	// Names are unique per call because conversions run concurrently.
	id := uuid.NewString()
	tempFile := filepath.Join(s.tempDir, fmt.Sprintf("convert_%s.pdf", id))
	if err := os.WriteFile(tempFile, pdfContent, 0644); err != nil {
		return conversionFailed(fmt.Errorf("failed to write temp PDF file: %w", err))
	}
	defer os.Remove(tempFile)

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return conversionFailed(fmt.Errorf("failed to read PDF: %w", err))
	}
	pageCount := pdfCtx.PageCount
	if pageCount == 0 {
		return conversionFailed(fmt.Errorf("document has no pages"))
	}

	outDir := filepath.Join(s.tempDir, fmt.Sprintf("pages_%s", id))
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return conversionFailed(fmt.Errorf("failed to create extraction directory: %w", err))
	}
	defer os.RemoveAll(outDir)

	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		return conversionFailed(fmt.Errorf("failed to extract content: %w", err))
	}

	pageTexts := make(map[int]string)
	files, _ := os.ReadDir(outDir)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(file.Name(), "Content_page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(content)
		}
	}

	var builder strings.Builder
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		if pageNum > 1 {
			builder.WriteString(fmt.Sprintf("\n\n--- Page %d ---\n\n", pageNum))
		}
		builder.WriteString(strings.TrimSpace(pageTexts[pageNum]))
	}

	text := builder.String()

	s.logger.Debug().
		Int("pages", pageCount).
		Int("chars", len(text)).
		Msg("Document converted")

	return models.ConvertOutcome{
		Text:      text,
		PageCount: pageCount,
	}
}

func conversionFailed(err error) models.ConvertOutcome {
	return models.ConvertOutcome{
		Err: models.NewStageError(models.StageConvert, models.KindConversionFailed, err),
	}
}
