package login

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"recipost/internal/selectors"
	"recipost/internal/session"
	"recipost/internal/uiaction"
)

// State is a LoginGate state.
type State string

const (
	NoSession          State = "NoSession"
	HasValidSession    State = "HasValidSession"
	AwaitingHumanLogin State = "AwaitingHumanLogin"
	SessionCaptured    State = "SessionCaptured"
	Ready              State = "Ready"
	TimedOut           State = "TimedOut"
)

// ErrLoginTimeout means no human completed the login within the bound. It is
// fatal for the attempt and never retried.
var ErrLoginTimeout = errors.New("login not completed in time")

const (
	defaultWait  = 120 * time.Second
	defaultCheck = 10 * time.Second
)

// Options configures a Gate.
type Options struct {
	// Wait bounds the human login step.
	Wait time.Duration
	// CheckTimeout bounds the stored-session validity check.
	CheckTimeout time.Duration
	// Interactive is false for headless browsers, which cannot show the
	// login surface to anyone.
	Interactive bool
	// OnState observes every state entered, in order.
	OnState func(State)
}

// Gate makes sure the page is authenticated before a publish attempt.
type Gate struct {
	engine  *uiaction.Engine
	profile *selectors.Profile
	store   *session.Store
	opts    Options
	logger  *zap.Logger
	now     func() time.Time
}

// NewGate creates a Gate.
func NewGate(engine *uiaction.Engine, profile *selectors.Profile, store *session.Store, opts Options, logger *zap.Logger) *Gate {
	if opts.Wait <= 0 {
		opts.Wait = defaultWait
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = defaultCheck
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{engine: engine, profile: profile, store: store, opts: opts, logger: logger, now: time.Now}
}

// Ensure returns Ready once the page holds a valid session for accountKey.
// A stored session is restored and checked first; only when it is missing or
// stale does the gate wait for a human login, and a successful login is
// saved before returning. On timeout it returns TimedOut and ErrLoginTimeout
// and persists nothing.
func (g *Gate) Ensure(ctx context.Context, accountKey string) (State, error) {
	stored, err := g.store.Load(accountKey)
	if err != nil {
		return NoSession, fmt.Errorf("failed to load session: %w", err)
	}

	if stored != nil && !stored.Storage.Empty() {
		valid, err := g.checkStored(ctx, stored)
		if err != nil {
			return NoSession, err
		}
		if valid {
			g.enter(HasValidSession)
			g.enter(Ready)
			return Ready, nil
		}
		g.logger.Info("stored session is no longer valid", zap.String("account", accountKey),
			zap.Time("captured_at", stored.CapturedAt))
	}
	g.enter(NoSession)

	if !g.opts.Interactive {
		g.enter(TimedOut)
		return TimedOut, fmt.Errorf("%w: no valid session and the browser is headless; run `recipost login` with a visible browser", ErrLoginTimeout)
	}
	return g.awaitHuman(ctx, accountKey)
}

// Capture saves the page's current storage as the session for accountKey.
func (g *Gate) Capture(accountKey string) error {
	state, err := g.engine.ExportState()
	if err != nil {
		return fmt.Errorf("failed to export browser state: %w", err)
	}
	sess := &session.Session{AccountKey: accountKey, CapturedAt: g.now().UTC(), Storage: state}
	if err := g.store.Save(sess); err != nil {
		return err
	}
	return nil
}

// checkStored restores the session and loads an authenticated page. A
// redirect to the login surface, or a visible login marker, means stale.
func (g *Gate) checkStored(ctx context.Context, stored *session.Session) (bool, error) {
	if err := g.engine.ImportState(ctx, stored.Storage); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		g.logger.Warn("failed to restore session", zap.Error(err))
		return false, nil
	}
	if err := g.engine.Navigate(ctx, g.profile.URLs.Home); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, err
	}

	var verdict *bool
	decide := func(v bool) bool { verdict = &v; return true }
	authMarker := g.profile.Locator(selectors.AuthenticatedMarker)
	loginMarker := g.profile.Locator(selectors.LoginMarker)

	err := g.engine.WaitUntil(ctx, g.opts.CheckTimeout, func() bool {
		if g.onLoginSurface() || g.engine.Present(loginMarker) {
			return decide(false)
		}
		if g.engine.Present(authMarker) {
			return decide(true)
		}
		return false
	})
	switch {
	case err == nil:
		return *verdict, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	default:
		// no marker either way: trust the URL
		return !g.onLoginSurface() && selectors.MatchesAny(g.engine.URL(), g.profile.HomeURLPatterns), nil
	}
}

func (g *Gate) awaitHuman(ctx context.Context, accountKey string) (State, error) {
	g.enter(AwaitingHumanLogin)
	if err := g.engine.Navigate(ctx, g.profile.URLs.Login); err != nil {
		if ctx.Err() != nil {
			return AwaitingHumanLogin, ctx.Err()
		}
		return AwaitingHumanLogin, err
	}
	g.logger.Info("waiting for login in the browser window", zap.String("account", accountKey), zap.Duration("timeout", g.opts.Wait))

	authMarker := g.profile.Locator(selectors.AuthenticatedMarker)
	err := g.engine.WaitUntil(ctx, g.opts.Wait, func() bool {
		if g.onLoginSurface() {
			return false
		}
		return g.engine.Present(authMarker) || selectors.MatchesAny(g.engine.URL(), g.profile.HomeURLPatterns)
	})
	if err != nil {
		if ctx.Err() != nil {
			return AwaitingHumanLogin, ctx.Err()
		}
		g.enter(TimedOut)
		return TimedOut, fmt.Errorf("%w: waited %s", ErrLoginTimeout, g.opts.Wait)
	}

	g.enter(SessionCaptured)
	if err := g.Capture(accountKey); err != nil {
		return SessionCaptured, err
	}
	g.logger.Info("login captured", zap.String("account", accountKey))
	g.enter(Ready)
	return Ready, nil
}

func (g *Gate) onLoginSurface() bool {
	return selectors.MatchesAny(g.engine.URL(), g.profile.LoginURLPatterns)
}

func (g *Gate) enter(s State) {
	g.logger.Debug("login state", zap.String("state", string(s)))
	if g.opts.OnState != nil {
		g.opts.OnState(s)
	}
}
