package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() Dataset {
	d := Dataset{Title: "Issues", Headers: []string{"ID", "Title", "Status"}}
	d.Append("1", "Broken handpump", "submitted")
	d.Append("2", "=HYPERLINK(\"x\")", "resolved")
	return d
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sample())
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Equal(t, "ID,Title,Status", string(lines[0]))
	assert.Equal(t, "1,Broken handpump,submitted", string(lines[1]))
	assert.Contains(t, string(lines[2]), "'=HYPERLINK")
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)

	_, err = NewCSVExporter().Render(Dataset{Headers: []string{"a"}, Rows: [][]string{{"1", "2"}}})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	d := sample()
	for i := 0; i < 120; i++ {
		d.Append("n", "a very long description that should be truncated before it overflows the cell", "in_progress")
	}
	out, err := NewPDFExporter().Render(d)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
