package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"recipost/internal/recipe"
)

// ErrNoMedia means neither a video nor any image could be downloaded.
var ErrNoMedia = errors.New("no image or video could be downloaded")

// ErrImageTooLarge means an image exceeded the size cap and was skipped.
var ErrImageTooLarge = errors.New("image too large")

const (
	maxImageBytes      = 20 << 20
	defaultConcurrency = 4
)

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Downloader fetches recipe media into a local directory.
type Downloader struct {
	client      *http.Client
	dir         string
	ytDLP       string
	concurrency int
	maxBytes    int64
	logger      *zap.Logger
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithYTDLP sets the yt-dlp binary used for videos.
func WithYTDLP(bin string) Option {
	return func(d *Downloader) {
		if bin != "" {
			d.ytDLP = bin
		}
	}
}

// WithMaxImageBytes caps the size of one image. Larger images are skipped.
func WithMaxImageBytes(n int64) Option {
	return func(d *Downloader) {
		if n > 0 {
			d.maxBytes = n
		}
	}
}

// WithConcurrency bounds parallel image downloads.
func WithConcurrency(n int) Option {
	return func(d *Downloader) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// New creates a Downloader writing into dir.
func New(dir string, client *http.Client, logger *zap.Logger, opts ...Option) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Downloader{client: client, dir: dir, ytDLP: "yt-dlp", concurrency: defaultConcurrency, maxBytes: maxImageBytes, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Media downloads what a note should carry: the video when the page has
// one, otherwise up to maxImages images. A failed video download falls back
// to the images.
func (d *Downloader) Media(ctx context.Context, r *recipe.ExtractedRecipe, maxImages int) ([]string, error) {
	if r.VideoURL != "" {
		p, err := d.Video(ctx, r.VideoURL)
		if err == nil {
			return []string{p}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		d.logger.Warn("video download failed, using images", zap.String("video", r.VideoURL), zap.Error(err))
	}
	urls := r.ImageURLs
	if maxImages > 0 && len(urls) > maxImages {
		urls = urls[:maxImages]
	}
	return d.Images(ctx, urls, r.URL)
}

// Images downloads urls concurrently. Failed downloads are skipped; the
// result keeps the input order. It fails only when nothing was downloaded.
func (d *Downloader) Images(ctx context.Context, urls []string, referer string) ([]string, error) {
	if len(urls) == 0 {
		return nil, ErrNoMedia
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media dir: %w", err)
	}

	paths := make([]string, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			p, err := d.image(gctx, u, referer)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				d.logger.Warn("image download failed", zap.String("url", u), zap.Error(err))
				return nil
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []string
	for _, p := range paths {
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoMedia
	}
	d.logger.Info("images downloaded", zap.Int("ok", len(out)), zap.Int("requested", len(urls)))
	return out, nil
}

func (d *Downloader) image(ctx context.Context, rawURL, referer string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	for k, v := range imageHeaders {
		req.Header.Set(k, v)
	}
	if ref := refererOf(referer); ref != "" {
		req.Header.Set("Referer", ref)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	if resp.ContentLength > d.maxBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrImageTooLarge, resp.ContentLength)
	}
	// one byte past the cap tells a full image from a truncated one
	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > d.maxBytes {
		return "", fmt.Errorf("%w: more than %d bytes", ErrImageTooLarge, d.maxBytes)
	}

	ext := ImageExt(rawURL)
	if ext == "webp" || strings.HasPrefix(resp.Header.Get("Content-Type"), "image/webp") {
		if converted, err := webpToJPEG(data); err == nil {
			data, ext = converted, "jpg"
		} else {
			d.logger.Debug("keeping webp as is", zap.String("url", rawURL), zap.Error(err))
			ext = "webp"
		}
	}

	p := filepath.Join(d.dir, uuid.NewString()+"."+ext)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}
	return p, nil
}

// Video downloads rawURL with yt-dlp and returns the local .mp4 path.
func (d *Downloader) Video(ctx context.Context, rawURL string) (string, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create media dir: %w", err)
	}
	p := filepath.Join(d.dir, uuid.NewString()+".mp4")
	cmd := exec.CommandContext(ctx, d.ytDLP,
		"--quiet", "--no-warnings", "--no-check-certificate", "--no-playlist",
		"-f", "mp4/best", "-o", p, rawURL)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("failed to download video: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if info, err := os.Stat(p); err != nil || info.Size() == 0 {
		return "", fmt.Errorf("video download produced no file")
	}
	return p, nil
}

// ImageExt derives a safe extension from an image URL: jpg, jpeg, png or
// webp, defaulting to jpg.
func ImageExt(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	ext := strings.TrimPrefix(path.Ext(p), ".")
	if len(ext) > 4 {
		ext = ext[:4]
	}
	ext = strings.ToLower(nonAlnum.ReplaceAllString(ext, ""))
	switch ext {
	case "jpg", "jpeg", "png", "webp":
		return ext
	}
	return "jpg"
}

func webpToJPEG(data []byte) ([]byte, error) {
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 92}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func refererOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/"
}

var imageHeaders = map[string]string{
	"User-Agent":         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Accept":             "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8",
	"Accept-Language":    "zh-CN,zh;q=0.9,en;q=0.8",
	"Sec-Ch-Ua":          `"Chromium";v="122", "Not(A:Brand";v="24", "Google Chrome";v="122"`,
	"Sec-Ch-Ua-Mobile":   "?0",
	"Sec-Ch-Ua-Platform": `"Windows"`,
	"Sec-Fetch-Dest":     "image",
	"Sec-Fetch-Mode":     "no-cors",
	"Sec-Fetch-Site":     "cross-site",
}
