package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"recipost/internal/browser"
	"recipost/internal/caption"
	"recipost/internal/config"
	"recipost/internal/download"
	"recipost/internal/history"
	"recipost/internal/logging"
	"recipost/internal/login"
	"recipost/internal/pipeline"
	"recipost/internal/publish"
	"recipost/internal/recipe"
	"recipost/internal/screenshot"
	"recipost/internal/selectors"
	"recipost/internal/session"
	"recipost/internal/uiaction"
)

// app holds what every command shares: config, logger and the stores under
// the data directory.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	profiles *selectors.Source
	sessions *session.Store
	shots    *screenshot.Store
	history  *history.Store
}

func newApp(requireLLM bool) (*app, error) {
	cfg, err := loadConfig(requireLLM)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return nil, err
	}
	profiles, err := selectors.NewSource(cfg.Selectors, logger.Named("selectors"))
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:      cfg,
		logger:   logger,
		profiles: profiles,
		sessions: session.NewStore(cfg.SessionsDir()),
		shots:    screenshot.NewStore(cfg.ScreenshotsDir(), logger.Named("screenshot")),
	}, nil
}

func (a *app) Close() {
	if a.history != nil {
		a.history.Close()
	}
	_ = a.logger.Sync()
}

// History opens the attempt history once per process.
func (a *app) History() (*history.Store, error) {
	if a.history != nil {
		return a.history, nil
	}
	store, err := history.Open(a.cfg.HistoryPath())
	if err != nil {
		return nil, err
	}
	a.history = store
	return store, nil
}

// Pipeline wires extraction and captioning, plus download, the publish
// controller and history when withPublisher is set.
func (a *app) Pipeline(withPublisher bool) (*pipeline.Pipeline, error) {
	cfg := a.cfg
	render := func(ctx context.Context, url string) (string, error) {
		res, err := browser.RenderHTML(ctx, cfg.Browser(), url, cfg.Timeouts.RenderFetch)
		if err != nil {
			return "", err
		}
		return res.HTML, nil
	}

	deps := pipeline.Deps{
		Extractor:  recipe.NewExtractor(&http.Client{Timeout: cfg.Timeouts.Fetch}, render, a.logger.Named("recipe")),
		Captioner:  caption.New(cfg.Caption(), a.logger.Named("caption")),
		Profiles:   a.profiles,
		AccountKey: cfg.Account,
	}
	if withPublisher {
		store, err := a.History()
		if err != nil {
			return nil, err
		}
		deps.History = store
		deps.Media = download.New(cfg.MediaDir(), nil, a.logger.Named("download"), download.WithYTDLP(cfg.YTDLP))
		deps.Publisher = publish.NewController(
			&browser.Opener{Config: cfg.Browser(), Logger: a.logger.Named("browser")},
			a.profiles, a.sessions, a.shots, cfg.Controller(), a.logger.Named("publish"),
		)
	}
	return pipeline.New(deps, a.logger.Named("pipeline")), nil
}

// Login opens a visible browser and runs the login gate on its own, so the
// QR-code step can happen before any publish.
func (a *app) Login(ctx context.Context, onState func(login.State)) (login.State, error) {
	bcfg := a.cfg.Browser()
	bcfg.Headless = false
	opener := &browser.Opener{Config: bcfg, Logger: a.logger.Named("browser")}
	page, err := opener.OpenPage(ctx)
	if err != nil {
		return login.NoSession, fmt.Errorf("%w: %v", publish.ErrBrowserUnavailable, err)
	}
	defer page.Close()

	id := "login-" + uuid.NewString()
	logger := a.logger.Named("login").With(zap.String("attempt", id))
	engine := uiaction.New(page, a.shots,
		uiaction.WithAttempt(id),
		uiaction.WithPoll(a.cfg.Timeouts.PollEvery),
		uiaction.WithLogger(logger))
	gate := login.NewGate(engine, a.profiles.Current(), a.sessions, login.Options{
		Wait:         a.cfg.Timeouts.LoginWait,
		CheckTimeout: a.cfg.Timeouts.LoginCheck,
		Interactive:  true,
		OnState:      onState,
	}, logger)

	state, err := gate.Ensure(ctx, a.cfg.Account)
	if err != nil {
		engine.Screenshot("Login-" + string(state))
		return state, err
	}
	return state, nil
}

// historyList prints attempt records.
type historyList []history.Record

func (h historyList) ToText() (string, error) {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FINISHED\tMODE\tKIND\tSTAGE\tTITLE\tURL/REASON")
	for _, r := range h {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.FinishedAt.Local().Format("2006-01-02 15:04"), r.Mode, r.Kind, r.Stage, r.Title, h.detail(r))
	}
	if err := tw.Flush(); err != nil {
		return "", err
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (h historyList) ToMarkdown() (string, error) {
	var b strings.Builder
	b.WriteString("| finished | mode | kind | stage | title | url / reason |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, r := range h {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			r.FinishedAt.Local().Format("2006-01-02 15:04"), r.Mode, r.Kind, r.Stage,
			strings.ReplaceAll(r.Title, "|", "\\|"), strings.ReplaceAll(h.detail(r), "|", "\\|"))
	}
	return b.String(), nil
}

func (h historyList) ToJSON() ([]byte, error) {
	if h == nil {
		h = historyList{}
	}
	return json.MarshalIndent(h, "", "  ")
}

func (historyList) detail(r history.Record) string {
	if r.Kind == string(publish.Failed) {
		return fmt.Sprintf("[%s] %s", r.ErrorKind, r.Reason)
	}
	return r.URL
}
