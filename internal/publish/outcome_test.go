package publish

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"recipost/internal/content"
	"recipost/internal/login"
	"recipost/internal/media"
	"recipost/internal/uiaction"
)

func TestClassify(t *testing.T) {
	notFound := &uiaction.NotFoundError{Locator: uiaction.Locator{Name: "upload_input"}, Timeout: time.Second}
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ""},
		{context.Canceled, Cancelled},
		{fmt.Errorf("failed to navigate: %w", context.DeadlineExceeded), Cancelled},
		{fmt.Errorf("%w: waited 2m0s", login.ErrLoginTimeout), LoginTimeout},
		{&media.UploadError{Reason: "upload input missing", Cause: notFound}, UploadFailed},
		{&content.FieldError{Field: "body", Err: content.ErrBodyTooLong}, BodyTooLong},
		{fmt.Errorf("%w: no marker", ErrVerifySubmit), VerifySubmitFailed},
		{&content.FieldError{Field: "title", Err: notFound}, ElementNotFound},
		{&uiaction.InteractionError{Action: "click", Cause: uiaction.ErrDisabled}, InteractionFailed},
		{fmt.Errorf("%w: empty title", ErrInvalidContent), InvalidContent},
		{fmt.Errorf("%w: exec failed", ErrBrowserUnavailable), BrowserUnavailable},
		{errors.New("something else"), Internal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Draft ")
	assert.NoError(t, err)
	assert.Equal(t, ModeDraft, m)
	_, err = ParseMode("schedule")
	assert.ErrorIs(t, err, ErrInvalidContent)
}
