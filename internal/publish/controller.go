package publish

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"recipost/internal/content"
	"recipost/internal/login"
	"recipost/internal/media"
	"recipost/internal/screenshot"
	"recipost/internal/selectors"
	"recipost/internal/session"
	"recipost/internal/uiaction"
)

// State is a controller state. Its name labels the screenshot taken on
// entry.
type State string

const (
	Start          State = "Start"
	LoggingIn      State = "LoggingIn"
	UploadingMedia State = "UploadingMedia"
	FillingContent State = "FillingContent"
	Publishing     State = "Publishing"
	SavingDraft    State = "SavingDraft"
	Done           State = "Done"
	ErrorCaptured  State = "ErrorCaptured"
)

// Stages reported for failures outside the state machine proper.
const (
	StageValidate     = "Validate"
	StageCancelled    = "Cancelled"
	StageVerifySubmit = "VerifySubmit"
)

// PageOpener opens one fresh page per attempt.
type PageOpener interface {
	OpenPage(ctx context.Context) (uiaction.Page, error)
}

// ProfileSource yields the current selector profile.
type ProfileSource interface {
	Current() *selectors.Profile
}

// Options tunes the controller's bounded waits.
type Options struct {
	AccountKey        string
	LocateTimeout     time.Duration
	UploadItemTimeout time.Duration
	VerifyTimeout     time.Duration
	LoginWait         time.Duration
	LoginCheckTimeout time.Duration
	Poll              time.Duration
	// Interactive is false for headless browsers.
	Interactive bool
	// OnTransition observes each state entered with its screenshot.
	OnTransition func(state State, screenshotPath string)
}

func (o *Options) setDefaults() {
	if o.AccountKey == "" {
		o.AccountKey = "default"
	}
	if o.LocateTimeout <= 0 {
		o.LocateTimeout = 15 * time.Second
	}
	if o.UploadItemTimeout <= 0 {
		o.UploadItemTimeout = 60 * time.Second
	}
	if o.VerifyTimeout <= 0 {
		o.VerifyTimeout = 20 * time.Second
	}
}

// Controller runs publish attempts. Attempts must not overlap for the same
// account; callers serialise them.
type Controller struct {
	opener   PageOpener
	profiles ProfileSource
	sessions *session.Store
	shots    *screenshot.Store
	opts     Options
	logger   *zap.Logger
	newID    func() string
}

// NewController creates a Controller.
func NewController(opener PageOpener, profiles ProfileSource, sessions *session.Store, shots *screenshot.Store, opts Options, logger *zap.Logger) *Controller {
	opts.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		opener:   opener,
		profiles: profiles,
		sessions: sessions,
		shots:    shots,
		opts:     opts,
		logger:   logger,
		newID:    func() string { return uuid.NewString() },
	}
}

// attempt is the state of one Run.
type attempt struct {
	c       *Controller
	id      string
	mode    Mode
	profile *selectors.Profile
	engine  *uiaction.Engine
	state   State
	shot    string
	logger  *zap.Logger
}

// Run drives one attempt from login to the confirmed terminal action. It
// never panics and never returns without a screenshot: every failure,
// cancellation included, becomes a Failed outcome. The page is closed on
// return.
func (c *Controller) Run(ctx context.Context, pc PreparedContent, mode Mode) (out Outcome) {
	id := c.newID()
	profile := c.profiles.Current()
	a := &attempt{
		c:       c,
		id:      id,
		mode:    mode,
		profile: profile,
		state:   Start,
		logger:  c.logger.With(zap.String("attempt", shortID(id)), zap.String("mode", string(mode))),
	}

	pc = pc.Normalize(profile.Limits.Title)
	if mode != ModePublish && mode != ModeDraft {
		return a.early(StageValidate, fmt.Errorf("%w: unknown mode %q", ErrInvalidContent, mode))
	}
	if err := pc.Validate(profile.Limits); err != nil {
		return a.early(StageValidate, err)
	}

	page, err := c.opener.OpenPage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return a.early(StageCancelled, ctx.Err())
		}
		return a.early(string(Start), fmt.Errorf("%w: %v", ErrBrowserUnavailable, err))
	}
	defer func() {
		if err := page.Close(); err != nil {
			a.logger.Debug("failed to close page", zap.Error(err))
		}
	}()
	a.engine = uiaction.New(page, c.shots,
		uiaction.WithAttempt(id),
		uiaction.WithPoll(c.opts.Poll),
		uiaction.WithLogger(a.logger))

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("attempt panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			out = a.fail(fmt.Errorf("internal error: %v", r))
		}
	}()

	a.logger.Info("attempt started", zap.String("title", pc.Title), zap.Int("media", len(pc.MediaPaths)))
	out = a.run(ctx, pc)
	out.Title = pc.Title
	return out
}

func (a *attempt) run(ctx context.Context, pc PreparedContent) Outcome {
	c := a.c

	a.transition(LoggingIn)
	gate := login.NewGate(a.engine, a.profile, c.sessions, login.Options{
		Wait:         c.opts.LoginWait,
		CheckTimeout: c.opts.LoginCheckTimeout,
		Interactive:  c.opts.Interactive,
	}, a.logger)
	if _, err := gate.Ensure(ctx, c.opts.AccountKey); err != nil {
		return a.fail(err)
	}

	a.transition(UploadingMedia)
	if err := a.engine.Navigate(ctx, a.profile.URLs.Publish); err != nil {
		return a.fail(err)
	}
	uploader := media.NewUploader(a.engine, a.profile, media.Options{
		LocateTimeout: c.opts.LocateTimeout,
		ItemTimeout:   c.opts.UploadItemTimeout,
	}, a.logger)
	if err := uploader.Upload(ctx, pc.MediaPaths); err != nil {
		return a.fail(err)
	}

	a.transition(FillingContent)
	filler := content.NewFiller(a.engine, a.profile, c.opts.LocateTimeout, a.logger)
	if err := filler.Fill(ctx, pc.Title, pc.Body); err != nil {
		return a.fail(err)
	}

	var (
		url string
		err error
	)
	if a.mode == ModePublish {
		a.transition(Publishing)
		url, err = a.submit(ctx, selectors.PublishButton, selectors.PublishSuccess, a.profile.PublishedURLPatterns)
	} else {
		a.transition(SavingDraft)
		_, err = a.submit(ctx, selectors.DraftButton, selectors.DraftSuccess, a.profile.DraftURLPatterns)
	}
	if err != nil {
		return a.fail(err)
	}

	a.transition(Done)
	if err := gate.Capture(c.opts.AccountKey); err != nil {
		a.logger.Warn("failed to refresh stored session", zap.Error(err))
	}

	out := Outcome{Kind: Drafted, ScreenshotPath: a.shot, AttemptID: a.id, Mode: a.mode}
	if a.mode == ModePublish {
		out.Kind = Published
		out.URL = url
	}
	a.logger.Info("attempt finished", zap.String("kind", string(out.Kind)), zap.String("screenshot", out.ScreenshotPath))
	return out
}

// submit clicks the action and waits for the page to change in response:
// the URL moving to a matching pattern, or the success marker appearing.
// A marker or URL that was already there before the click confirms nothing;
// a marker visible beforehand only counts once it has gone and come back.
// It returns the URL when a URL pattern confirmed the submit.
func (a *attempt) submit(ctx context.Context, button, marker string, urlPatterns []string) (string, error) {
	h, err := a.engine.Locate(ctx, a.profile.Locator(button), a.c.opts.LocateTimeout)
	if err != nil {
		return "", err
	}

	success := a.profile.Locator(marker)
	urlBefore := a.engine.URL()
	markerAbsent := !a.engine.Present(success)
	if !markerAbsent {
		a.logger.Debug("success marker visible before submit", zap.String("marker", marker))
	}

	if err := a.engine.Click(h); err != nil {
		return "", err
	}

	var confirmedURL string
	err = a.engine.WaitUntil(ctx, a.c.opts.VerifyTimeout, func() bool {
		if u := a.engine.URL(); u != urlBefore && selectors.MatchesAny(u, urlPatterns) {
			confirmedURL = u
			return true
		}
		if !a.engine.Present(success) {
			markerAbsent = true
			return false
		}
		return markerAbsent
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: no new %s within %s after clicking %s", ErrVerifySubmit, marker, a.c.opts.VerifyTimeout, button)
	}
	return confirmedURL, nil
}

// transition screenshots the page, tagged with the target state, then
// enters it.
func (a *attempt) transition(to State) {
	a.shot = a.engine.Screenshot(string(to))
	a.logger.Debug("transition", zap.String("from", string(a.state)), zap.String("to", string(to)))
	a.state = to
	if a.c.opts.OnTransition != nil {
		a.c.opts.OnTransition(to, a.shot)
	}
}

// fail enters ErrorCaptured and builds the Failed outcome around one last
// screenshot of the page as it was when the failure surfaced.
func (a *attempt) fail(err error) Outcome {
	kind := Classify(err)
	stage := string(a.state)
	switch kind {
	case Cancelled:
		stage = StageCancelled
	case VerifySubmitFailed:
		stage = StageVerifySubmit
	}

	a.transition(ErrorCaptured)
	shot := a.engine.Screenshot("Failed-" + stage)
	a.logger.Warn("attempt failed", zap.String("stage", stage), zap.String("kind", string(kind)), zap.Error(err), zap.String("screenshot", shot))
	return Outcome{
		Kind:           Failed,
		Stage:          stage,
		ErrorKind:      kind,
		Reason:         err.Error(),
		ScreenshotPath: shot,
		AttemptID:      a.id,
		Mode:           a.mode,
	}
}

// early fails an attempt that never got a page; the screenshot is a
// placeholder.
func (a *attempt) early(stage string, err error) Outcome {
	kind := Classify(err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		stage = StageCancelled
	}
	shot := a.c.shots.Placeholder(a.id, "Failed-"+stage, err.Error())
	a.logger.Warn("attempt rejected", zap.String("stage", stage), zap.String("kind", string(kind)), zap.Error(err))
	return Outcome{
		Kind:           Failed,
		Stage:          stage,
		ErrorKind:      kind,
		Reason:         err.Error(),
		ScreenshotPath: shot,
		AttemptID:      a.id,
		Mode:           a.mode,
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
