package publish

import (
	"errors"
	"fmt"
	"strings"

	"recipost/internal/content"
	"recipost/internal/media"
	"recipost/internal/selectors"
)

// Mode selects the terminal action of an attempt.
type Mode string

const (
	ModePublish Mode = "publish"
	ModeDraft   Mode = "draft"
)

// ParseMode accepts "publish" or "draft".
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModePublish:
		return ModePublish, nil
	case ModeDraft:
		return ModeDraft, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidContent, s)
}

// ErrInvalidContent marks content rejected before any browser work.
var ErrInvalidContent = errors.New("invalid content")

// PreparedContent is the normalized bundle the controller fills in.
type PreparedContent struct {
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	MediaPaths []string `json:"mediaPaths"`
}

// Normalize returns a copy with the title truncated to limit. The body is
// kept verbatim.
func (pc PreparedContent) Normalize(titleLimit int) PreparedContent {
	out := pc
	out.Title = content.TruncateTitle(pc.Title, titleLimit)
	out.MediaPaths = append([]string(nil), pc.MediaPaths...)
	return out
}

// Validate checks the content against the platform limits: a non-empty
// title, a body within the limit and a well-formed media set.
func (pc PreparedContent) Validate(l selectors.Limits) error {
	if strings.TrimSpace(pc.Title) == "" {
		return fmt.Errorf("%w: empty title", ErrInvalidContent)
	}
	if strings.TrimSpace(pc.Body) == "" {
		return fmt.Errorf("%w: empty body", ErrInvalidContent)
	}
	if err := content.CheckBody(pc.Body, l.Body); err != nil {
		return err
	}
	if err := media.CheckPaths(pc.MediaPaths, l.Images); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	return nil
}
