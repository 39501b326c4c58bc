package document

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRead_Markdown(t *testing.T) {
	path := write(t, "sow.MD", "# Architecture\nLambda and DynamoDB\n")

	text, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "# Architecture\nLambda and DynamoDB\n", text)
}

func TestRead_Failures(t *testing.T) {
	tests := []struct {
		name   string
		path   func(t *testing.T) string
		target error
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.md") }, ErrDocumentRead},
		{"unsupported", func(t *testing.T) string { return write(t, "sow.docx", "x") }, ErrUnsupportedFormat},
		{"empty", func(t *testing.T) string { return write(t, "sow.txt", " \n\t") }, ErrEmptyDocument},
		{"not a pdf", func(t *testing.T) string { return write(t, "sow.pdf", "plain text") }, ErrDocumentRead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(tt.path(t))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
			assert.ErrorIs(t, err, ErrDocumentRead)
		})
	}
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("a.pdf"))
	assert.True(t, Supported("a.Markdown"))
	assert.True(t, Supported("dir.v2/a.txt"))
	assert.False(t, Supported("a.docx"))
	assert.False(t, Supported("README"))
}
