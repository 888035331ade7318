package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func layerDataset() Dataset {
	return Dataset{
		Title:   "Bid layers 2026-03",
		Notes:   []string{"sha256 abc123"},
		Headers: []string{"layer", "command"},
		Widths:  []float64{1, 4},
		Rows: []map[string]string{
			{"layer": "1", "command": "AWARD PAIRING P100"},
			{"layer": "2", "command": `PREFER LAYOVER "SEA, PDX"`},
		},
		CreatedAt: time.Date(2026, 2, 20, 9, 0, 0, 0, time.UTC),
	}
}

func TestCSVExporterRender(t *testing.T) {
	body, err := NewCSVExporter().Render(layerDataset())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	assert.Equal(t, []string{
		"# sha256 abc123",
		"layer,command",
		"1,AWARD PAIRING P100",
		`2,"PREFER LAYOVER ""SEA, PDX"""`,
	}, lines)

	plain, err := (&CSVExporter{}).Render(layerDataset())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(plain), "layer,command\n"))

	_, err = NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
}

func TestPDFExporterIsByteStable(t *testing.T) {
	first, err := NewPDFExporter().Render(layerDataset())
	require.NoError(t, err)
	second, err := NewPDFExporter().Render(layerDataset())
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(first, []byte("%PDF")))
	assert.Equal(t, first, second)

	_, err = NewPDFExporter().Render(Dataset{})
	require.Error(t, err)
}

func TestColumnWidthsFillPage(t *testing.T) {
	widths := columnWidths(Dataset{Headers: []string{"a", "b", "c"}, Widths: []float64{1, 3}})

	require.Len(t, widths, 3)
	assert.InDelta(t, pageWidth, widths[0]+widths[1]+widths[2], 1e-9)
	assert.InDelta(t, widths[0]*3, widths[1], 1e-9)
	assert.InDelta(t, widths[0], widths[2], 1e-9)
}
