package content

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"recipost/internal/selectors"
	"recipost/internal/uiaction"
)

// ErrBodyTooLong is returned when the body exceeds the platform limit. The
// body is never truncated.
var ErrBodyTooLong = errors.New("body exceeds platform limit")

// FieldError reports which field could not be filled.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("failed to fill %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// CheckBody returns ErrBodyTooLong when body has more than limit runes.
func CheckBody(body string, limit int) error {
	if n := utf8.RuneCountInString(body); n > limit {
		return fmt.Errorf("%w: %d > %d characters", ErrBodyTooLong, n, limit)
	}
	return nil
}

// Filler writes the title and body into the editor.
type Filler struct {
	engine  *uiaction.Engine
	profile *selectors.Profile
	timeout time.Duration
	logger  *zap.Logger
}

// NewFiller creates a Filler; timeout bounds each locator lookup.
func NewFiller(engine *uiaction.Engine, profile *selectors.Profile, timeout time.Duration, logger *zap.Logger) *Filler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filler{engine: engine, profile: profile, timeout: timeout, logger: logger}
}

// Fill validates the body before touching the page, then types the title
// (truncated by TruncateTitle) and the body verbatim.
func (f *Filler) Fill(ctx context.Context, title, body string) error {
	if err := CheckBody(body, f.profile.Limits.Body); err != nil {
		return err
	}
	title = TruncateTitle(title, f.profile.Limits.Title)

	if err := f.fill(ctx, "title", selectors.TitleInput, title); err != nil {
		return err
	}
	if err := f.fill(ctx, "body", selectors.BodyEditor, body); err != nil {
		return err
	}
	f.logger.Info("content filled", zap.Int("title_chars", utf8.RuneCountInString(title)), zap.Int("body_chars", utf8.RuneCountInString(body)))
	return nil
}

func (f *Filler) fill(ctx context.Context, field, locator, text string) error {
	h, err := f.engine.Locate(ctx, f.profile.Locator(locator), f.timeout)
	if err != nil {
		return &FieldError{Field: field, Err: err}
	}
	if err := f.engine.Type(h, text); err != nil {
		return &FieldError{Field: field, Err: err}
	}
	return nil
}
