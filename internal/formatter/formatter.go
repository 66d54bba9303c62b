package formatter

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Content is anything a command can print in more than one format.
type Content interface {
	ToText() (string, error)
	ToMarkdown() (string, error)
	ToJSON() ([]byte, error)
}

// Formats lists the accepted values of Format.
var Formats = []string{"text", "markdown", "json"}

func Format(content Content, format string) (string, error) {
	switch format {
	case "text":
		return content.ToText()
	case "markdown":
		return content.ToMarkdown()
	case "json":
		b, err := content.ToJSON()
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

// InferFromExtension infers output format from file extension
func InferFromExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".md", ".markdown":
		return "markdown"
	case ".json":
		return "json"
	case ".txt":
		return "text"
	default:
		return ""
	}
}
