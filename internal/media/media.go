package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"recipost/internal/selectors"
	"recipost/internal/uiaction"
)

var (
	imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true}
	videoExts = map[string]bool{".mp4": true, ".mov": true, ".m4v": true, ".webm": true, ".mkv": true}
)

// IsVideo reports whether path has a video extension.
func IsVideo(path string) bool {
	return videoExts[strings.ToLower(filepath.Ext(path))]
}

// IsImage reports whether path has an image extension.
func IsImage(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}

// UploadError means the media never finished processing on the platform, or
// could not be handed to it.
type UploadError struct {
	Reason string
	Cause  error
}

func (e *UploadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("upload failed: %s: %v", e.Reason, e.Cause)
	}
	return "upload failed: " + e.Reason
}

func (e *UploadError) Unwrap() error { return e.Cause }

// CheckPaths validates a media set: 1..maxImages images, or exactly one
// video, all existing files.
func CheckPaths(paths []string, maxImages int) error {
	if len(paths) == 0 {
		return errors.New("no media files")
	}
	videos := 0
	for _, p := range paths {
		switch {
		case IsVideo(p):
			videos++
		case IsImage(p):
		default:
			return fmt.Errorf("unsupported media file %s", filepath.Base(p))
		}
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("media file %s: %w", p, err)
		}
		if info.IsDir() {
			return fmt.Errorf("media path %s is a directory", p)
		}
	}
	if videos > 0 && len(paths) != 1 {
		return errors.New("a video must be uploaded on its own")
	}
	if videos == 0 && maxImages > 0 && len(paths) > maxImages {
		return fmt.Errorf("%d images exceed the limit of %d", len(paths), maxImages)
	}
	return nil
}

// Options bounds the uploader's waits.
type Options struct {
	LocateTimeout time.Duration // each control lookup
	ItemTimeout   time.Duration // each item's processed marker
}

// Uploader attaches media files and waits until the platform has processed
// them.
type Uploader struct {
	engine  *uiaction.Engine
	profile *selectors.Profile
	opts    Options
	logger  *zap.Logger
}

// NewUploader creates an Uploader.
func NewUploader(engine *uiaction.Engine, profile *selectors.Profile, opts Options, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{engine: engine, profile: profile, opts: opts, logger: logger}
}

// Upload selects the matching tab, sets every file in one batch and waits for
// each item's processed marker. A single video also waits for its cover
// frame. Any missing marker or visible failure marker fails the upload.
func (u *Uploader) Upload(ctx context.Context, paths []string) error {
	if err := CheckPaths(paths, u.profile.Limits.Images); err != nil {
		return &UploadError{Reason: "invalid media", Cause: err}
	}
	video := IsVideo(paths[0])

	abs := make([]string, len(paths))
	for i, p := range paths {
		a, err := filepath.Abs(p)
		if err != nil {
			return &UploadError{Reason: "invalid media path", Cause: err}
		}
		abs[i] = a
	}

	tab := selectors.ImageTab
	if video {
		tab = selectors.VideoTab
	}
	if err := u.selectTab(ctx, tab); err != nil {
		return err
	}

	input, err := u.engine.Locate(ctx, u.profile.Locator(selectors.UploadInput), u.opts.LocateTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &UploadError{Reason: "upload input missing", Cause: err}
	}
	if err := u.engine.SetFiles(input, abs); err != nil {
		return &UploadError{Reason: "file chooser rejected files", Cause: err}
	}
	u.logger.Info("media attached", zap.Int("files", len(abs)), zap.Bool("video", video))

	if video {
		return u.waitVideo(ctx)
	}
	return u.waitImages(ctx, len(abs))
}

// selectTab clicks the tab when it exists. Some layouts open on the right
// tab and render none.
func (u *Uploader) selectTab(ctx context.Context, name string) error {
	h, err := u.engine.Locate(ctx, u.profile.Locator(name), u.opts.LocateTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		u.logger.Debug("upload tab not found, continuing", zap.String("tab", name))
		return nil
	}
	if err := u.engine.Click(h); err != nil {
		return &UploadError{Reason: "failed to select " + name, Cause: err}
	}
	return nil
}

func (u *Uploader) waitImages(ctx context.Context, n int) error {
	ready := u.profile.Locator(selectors.MediaItemReady)
	for i := 0; i < n; i++ {
		if err := u.waitMarker(ctx, func() bool { return u.engine.Count(ready) >= i+1 }); err != nil {
			return u.itemError(err, fmt.Sprintf("image %d of %d not processed within %s", i+1, n, u.opts.ItemTimeout))
		}
		u.logger.Debug("image processed", zap.Int("index", i+1), zap.Int("total", n))
	}
	return nil
}

func (u *Uploader) waitVideo(ctx context.Context) error {
	processed := u.profile.Locator(selectors.VideoProcessed)
	if err := u.waitMarker(ctx, func() bool { return u.engine.Present(processed) }); err != nil {
		return u.itemError(err, fmt.Sprintf("video not processed within %s", u.opts.ItemTimeout))
	}
	cover := u.profile.Locator(selectors.VideoCoverReady)
	if err := u.waitMarker(ctx, func() bool { return u.engine.Present(cover) }); err != nil {
		return u.itemError(err, fmt.Sprintf("video cover not ready within %s", u.opts.ItemTimeout))
	}
	u.logger.Debug("video processed")
	return nil
}

var errItemFailed = errors.New("platform reported a failed item")

// waitMarker waits for done, failing early when a failure marker shows.
func (u *Uploader) waitMarker(ctx context.Context, done func() bool) error {
	failed := u.profile.Locator(selectors.MediaItemFailed)
	sawFailure := false
	err := u.engine.WaitUntil(ctx, u.opts.ItemTimeout, func() bool {
		if u.engine.Present(failed) {
			sawFailure = true
			return true
		}
		return done()
	})
	if err != nil {
		return err
	}
	if sawFailure {
		return errItemFailed
	}
	return nil
}

func (u *Uploader) itemError(err error, timeoutReason string) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, errItemFailed):
		return &UploadError{Reason: "platform rejected media", Cause: err}
	default:
		return &UploadError{Reason: timeoutReason, Cause: err}
	}
}
