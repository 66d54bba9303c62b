package formatter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubContent struct {
	jsonErr error
}

func (stubContent) ToText() (string, error)     { return "plain", nil }
func (stubContent) ToMarkdown() (string, error) { return "# md", nil }
func (s stubContent) ToJSON() ([]byte, error) {
	if s.jsonErr != nil {
		return nil, s.jsonErr
	}
	return []byte(`{"ok":true}`), nil
}

func TestFormat(t *testing.T) {
	for format, want := range map[string]string{
		"text":     "plain",
		"markdown": "# md",
		"json":     `{"ok":true}`,
	} {
		got, err := Format(stubContent{}, format)
		require.NoError(t, err, format)
		assert.Equal(t, want, got, format)
	}

	_, err := Format(stubContent{}, "csv")
	assert.EqualError(t, err, "unsupported output format: csv")

	_, err = Format(stubContent{jsonErr: errors.New("boom")}, "json")
	assert.EqualError(t, err, "boom")
}

func TestInferFromExtension(t *testing.T) {
	assert.Equal(t, "markdown", InferFromExtension("note.MD"))
	assert.Equal(t, "json", InferFromExtension("out/result.json"))
	assert.Equal(t, "text", InferFromExtension("a.txt"))
	assert.Equal(t, "", InferFromExtension("report.csv"))
}
