package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"recipost/internal/caption"
	"recipost/internal/history"
	"recipost/internal/publish"
	"recipost/internal/recipe"
)

// Extractor turns a recipe page into structured data.
type Extractor interface {
	Extract(ctx context.Context, url string) (*recipe.ExtractedRecipe, error)
}

// Captioner writes the note title and body.
type Captioner interface {
	Generate(ctx context.Context, r *recipe.ExtractedRecipe, limits caption.Limits) (*caption.Result, *caption.Details, error)
}

// MediaFetcher downloads the media a note is published with.
type MediaFetcher interface {
	Media(ctx context.Context, r *recipe.ExtractedRecipe, maxImages int) ([]string, error)
}

// Publisher runs one publish attempt.
type Publisher interface {
	Run(ctx context.Context, pc publish.PreparedContent, mode publish.Mode) publish.Outcome
}

// Recorder stores finished attempts.
type Recorder interface {
	Add(ctx context.Context, r history.Record) error
}

// Deps are the collaborators of a Pipeline. Publisher, Media and History
// may be nil for a pipeline that only drafts.
type Deps struct {
	Extractor  Extractor
	Captioner  Captioner
	Media      MediaFetcher
	Publisher  Publisher
	History    Recorder
	Profiles   publish.ProfileSource
	AccountKey string
}

// ErrPublishDisabled means Run was called on a draft-only pipeline.
var ErrPublishDisabled = errors.New("publishing is not configured")

// Pipeline chains extraction, caption generation, media download and the
// publish controller.
type Pipeline struct {
	deps   Deps
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Pipeline.
func New(deps Deps, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{deps: deps, logger: logger, now: time.Now}
}

// Draft extracts the recipe and generates the note. It never opens the
// publishing site.
func (p *Pipeline) Draft(ctx context.Context, rawURL string) (*Draft, error) {
	d, _, err := p.draft(ctx, rawURL)
	return d, err
}

func (p *Pipeline) draft(ctx context.Context, rawURL string) (*Draft, *recipe.ExtractedRecipe, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, nil, errors.New("missing url")
	}
	target := recipe.NormalizeURL(rawURL)
	limits := p.deps.Profiles.Current().Limits

	logger := p.logger.With(zap.String("url", target))
	logger.Info("extracting recipe")
	r, err := p.deps.Extractor.Extract(ctx, target)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to extract recipe: %w", err)
	}

	logger.Info("generating caption", zap.String("title", r.Title), zap.Int("images", len(r.ImageURLs)), zap.Bool("video", r.VideoURL != ""))
	res, details, err := p.deps.Captioner.Generate(ctx, r, caption.Limits{Title: limits.Title, Body: limits.Body})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate caption: %w", err)
	}

	if r.URL == "" {
		r.URL = target
	}
	images := r.ImageURLs
	if limits.Images > 0 && len(images) > limits.Images {
		images = images[:limits.Images]
	}
	d := &Draft{
		SourceURL:   r.URL,
		SourceTitle: r.Title,
		Title:       res.Title,
		Body:        res.Body,
		VideoURL:    r.VideoURL,
		ImageURLs:   images,
		ImageLimit:  limits.Images,
	}
	if details != nil {
		d.Ingredients = details.Ingredients
		d.Steps = details.Steps
	}
	return d, r, nil
}

// Run generates the note, downloads its media and hands it to the publish
// controller in the given mode. Errors before the controller runs are
// returned as errors; once it runs, the result is its Outcome, which is also
// recorded in history.
func (p *Pipeline) Run(ctx context.Context, rawURL string, mode publish.Mode) (*Report, error) {
	if p.deps.Publisher == nil || p.deps.Media == nil {
		return nil, ErrPublishDisabled
	}
	started := p.now()

	d, r, err := p.draft(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	paths, err := p.deps.Media.Media(ctx, r, p.deps.Profiles.Current().Limits.Images)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	p.logger.Info("media ready", zap.Int("files", len(paths)), zap.String("mode", string(mode)))

	out := p.deps.Publisher.Run(ctx, publish.PreparedContent{
		Title:      d.Title,
		Body:       d.Body,
		MediaPaths: paths,
	}, mode)

	p.record(d, out, started)
	return &Report{Draft: d, MediaPaths: paths, Outcome: out}, nil
}

func (p *Pipeline) record(d *Draft, out publish.Outcome, started time.Time) {
	if p.deps.History == nil {
		return
	}
	title := out.Title
	if title == "" {
		title = d.Title
	}
	rec := history.Record{
		ID:             out.AttemptID,
		AccountKey:     p.deps.AccountKey,
		SourceURL:      d.SourceURL,
		Mode:           string(out.Mode),
		Kind:           string(out.Kind),
		Stage:          out.Stage,
		ErrorKind:      string(out.ErrorKind),
		Reason:         out.Reason,
		URL:            out.URL,
		ScreenshotPath: out.ScreenshotPath,
		Title:          title,
		StartedAt:      started,
		FinishedAt:     p.now(),
	}
	// the attempt is over; a cancelled ctx must not lose its record
	if err := p.deps.History.Add(context.Background(), rec); err != nil {
		p.logger.Warn("failed to record attempt", zap.String("attempt", out.AttemptID), zap.Error(err))
	}
}
