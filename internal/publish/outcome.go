package publish

import (
	"context"
	"errors"

	"recipost/internal/content"
	"recipost/internal/login"
	"recipost/internal/media"
	"recipost/internal/uiaction"
)

// Kind tags an Outcome.
type Kind string

const (
	Published Kind = "published"
	Drafted   Kind = "drafted"
	Failed    Kind = "failed"
)

// ErrorKind classifies why an attempt failed.
type ErrorKind string

const (
	ElementNotFound    ErrorKind = "ElementNotFound"
	InteractionFailed  ErrorKind = "InteractionFailed"
	LoginTimeout       ErrorKind = "LoginTimeout"
	UploadFailed       ErrorKind = "UploadFailed"
	BodyTooLong        ErrorKind = "BodyTooLong"
	VerifySubmitFailed ErrorKind = "VerifySubmitFailed"
	Cancelled          ErrorKind = "Cancelled"
	InvalidContent     ErrorKind = "InvalidContent"
	BrowserUnavailable ErrorKind = "BrowserUnavailable"
	Internal           ErrorKind = "Internal"
)

var (
	// ErrVerifySubmit means the submit click happened but no success marker
	// followed.
	ErrVerifySubmit = errors.New("submit not confirmed")
	// ErrBrowserUnavailable means no page could be opened.
	ErrBrowserUnavailable = errors.New("browser unavailable")
)

// Outcome is the terminal result of one attempt. ScreenshotPath always names
// a file that existed when Run returned.
type Outcome struct {
	Kind           Kind      `json:"kind"`
	URL            string    `json:"url,omitempty"`
	Stage          string    `json:"stage,omitempty"`
	ErrorKind      ErrorKind `json:"errorKind,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	ScreenshotPath string    `json:"screenshotPath"`
	AttemptID      string    `json:"attemptId"`
	Mode           Mode      `json:"mode"`
	Title          string    `json:"title,omitempty"`
}

// OK reports whether the attempt reached its terminal action.
func (o Outcome) OK() bool {
	return o.Kind != Failed
}

// Classify maps an error to its ErrorKind. Wrapping order matters: an upload
// that failed because its input was missing is an upload failure.
func Classify(err error) ErrorKind {
	var (
		upload   *media.UploadError
		notFound *uiaction.NotFoundError
		interact *uiaction.InteractionError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Cancelled
	case errors.Is(err, login.ErrLoginTimeout):
		return LoginTimeout
	case errors.As(err, &upload):
		return UploadFailed
	case errors.Is(err, content.ErrBodyTooLong):
		return BodyTooLong
	case errors.Is(err, ErrVerifySubmit):
		return VerifySubmitFailed
	case errors.As(err, &notFound):
		return ElementNotFound
	case errors.As(err, &interact):
		return InteractionFailed
	case errors.Is(err, ErrInvalidContent):
		return InvalidContent
	case errors.Is(err, ErrBrowserUnavailable):
		return BrowserUnavailable
	default:
		return Internal
	}
}
