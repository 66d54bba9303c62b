package uiaction

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"recipost/internal/screenshot"
	"recipost/internal/session"
)

const defaultPoll = 250 * time.Millisecond

// Engine performs resilient UI actions against one page.
type Engine struct {
	page    Page
	shots   *screenshot.Store
	attempt string
	poll    time.Duration
	logger  *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithAttempt tags screenshots with the attempt id.
func WithAttempt(id string) Option {
	return func(e *Engine) { e.attempt = id }
}

// WithPoll sets the interval between element probes.
func WithPoll(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.poll = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine for page.
func New(page Page, shots *screenshot.Store, opts ...Option) *Engine {
	e := &Engine{page: page, shots: shots, poll: defaultPoll, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Attempt returns the attempt id screenshots are tagged with.
func (e *Engine) Attempt() string {
	return e.attempt
}

// Locate tries each alternative in order until one matches, polling until
// timeout. Transient render delays are absorbed here.
func (e *Engine) Locate(ctx context.Context, loc Locator, timeout time.Duration) (*Handle, error) {
	var lastErr error
	var found *Handle
	err := e.WaitUntil(ctx, timeout, func() bool {
		h, err := e.probe(loc)
		if err != nil {
			lastErr = err
		}
		found = h
		return h != nil
	})
	if err == nil {
		e.logger.Debug("located", zap.String("locator", loc.Name), zap.Stringer("selector", found.Selector))
		return found, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, &NotFoundError{Locator: loc, Timeout: timeout, Cause: lastErr}
}

func (e *Engine) probe(loc Locator) (*Handle, error) {
	var firstErr error
	for _, sel := range loc.Alternatives {
		el, err := e.page.Find(sel)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if el != nil {
			return &Handle{Locator: loc, Selector: sel, Element: el}, nil
		}
	}
	return nil, firstErr
}

// Present reports, without waiting, whether any alternative is visible.
func (e *Engine) Present(loc Locator) bool {
	for _, sel := range loc.Alternatives {
		el, err := e.page.Find(sel)
		if err != nil || el == nil {
			continue
		}
		if visible, err := el.Visible(); err == nil && visible {
			return true
		}
	}
	return false
}

// Count returns the match count of the first alternative that matches
// anything.
func (e *Engine) Count(loc Locator) int {
	for _, sel := range loc.Alternatives {
		n, err := e.page.Count(sel)
		if err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// Click clicks the element; a disabled control is a rejection.
func (e *Engine) Click(h *Handle) error {
	disabled, err := h.Element.Disabled()
	if err != nil {
		return &InteractionError{Action: "click", Locator: h.Locator, Cause: err}
	}
	if disabled {
		return &InteractionError{Action: "click", Locator: h.Locator, Cause: ErrDisabled}
	}
	if err := h.Element.Click(); err != nil {
		return &InteractionError{Action: "click", Locator: h.Locator, Cause: err}
	}
	return nil
}

// Type replaces the element's content with text.
func (e *Engine) Type(h *Handle, text string) error {
	if err := h.Element.Type(text); err != nil {
		return &InteractionError{Action: "type into", Locator: h.Locator, Cause: err}
	}
	return nil
}

// SetFiles sets all paths on a file input in one batch, preserving order.
func (e *Engine) SetFiles(h *Handle, paths []string) error {
	if err := h.Element.SetFiles(paths); err != nil {
		return &InteractionError{Action: "set files on", Locator: h.Locator, Cause: err}
	}
	return nil
}

// WaitUntil polls cond until it holds, the timeout elapses (ErrWaitTimeout)
// or ctx is done (ctx.Err()). cond is evaluated once before the first tick.
func (e *Engine) WaitUntil(ctx context.Context, timeout time.Duration, cond func() bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cond() {
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if cond() {
				return nil
			}
			return ErrWaitTimeout
		case <-ticker.C:
			if cond() {
				return nil
			}
		}
	}
}

// Navigate loads url in the page.
func (e *Engine) Navigate(ctx context.Context, url string) error {
	if err := e.page.Navigate(ctx, url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// URL returns the current page URL, or "" when the page cannot tell.
func (e *Engine) URL() string {
	u, err := e.page.URL()
	if err != nil {
		return ""
	}
	return u
}

// Screenshot captures the page under label and returns the file path. It
// never fails: when the page cannot render, a placeholder image is written.
func (e *Engine) Screenshot(label string) string {
	data, err := e.page.Screenshot()
	if err != nil {
		e.logger.Warn("screenshot failed, writing placeholder", zap.String("label", label), zap.Error(err))
		return e.shots.Placeholder(e.attempt, label, err.Error())
	}
	path, err := e.shots.Save(e.attempt, label, data)
	if err != nil {
		e.logger.Warn("failed to save screenshot", zap.String("label", label), zap.Error(err))
		return e.shots.Placeholder(e.attempt, label, err.Error())
	}
	e.logger.Debug("screenshot", zap.String("label", label), zap.String("path", path))
	return path
}

// ExportState captures the page's storage for the session store.
func (e *Engine) ExportState() (session.State, error) {
	return e.page.ExportState()
}

// ImportState restores a stored session into the page.
func (e *Engine) ImportState(ctx context.Context, state session.State) error {
	return e.page.ImportState(ctx, state)
}
