package converter

import (
	"bytes"
	"context"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/praeco/internal/models"
)

// buildPDF generates a small PDF with the given number of pages.
func buildPDF(t *testing.T, pages int) []byte {
	t.Helper()

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetFont("Helvetica", "", 12)
	for i := 0; i < pages; i++ {
		doc.AddPage()
		doc.Cell(40, 10, "Quarterly activities report body text")
	}

	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

func TestConvertSinglePage(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	outcome := svc.Convert(context.Background(), buildPDF(t, 1))

	require.Nil(t, outcome.Err)
	assert.Equal(t, 1, outcome.PageCount)
}

func TestConvertMultiPageSeparators(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	outcome := svc.Convert(context.Background(), buildPDF(t, 3))

	require.Nil(t, outcome.Err)
	assert.Equal(t, 3, outcome.PageCount)
	assert.Contains(t, outcome.Text, "--- Page 2 ---")
	assert.Contains(t, outcome.Text, "--- Page 3 ---")
	assert.NotContains(t, outcome.Text, "--- Page 1 ---",
		"the first page has no leading separator")
}

func TestConvertCorruptDocument(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	tests := []struct {
		name    string
		content []byte
	}{
		{"garbage bytes", []byte("this is not a pdf at all")},
		{"empty input", nil},
		{"truncated header", []byte("%PDF-1.7")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := svc.Convert(context.Background(), tt.content)

			require.NotNil(t, outcome.Err)
			assert.Equal(t, models.KindConversionFailed, outcome.Err.Kind)
			assert.Equal(t, models.StageConvert, outcome.Err.Stage)
			assert.Empty(t, outcome.Text)
			assert.Zero(t, outcome.PageCount)
		})
	}
}
