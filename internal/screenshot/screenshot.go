package screenshot

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const timeLayout = "20060102-150405.000"

var unsafeLabel = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Store writes screenshots as <timestamp>_<attempt>_<label>.png into one
// directory.
type Store struct {
	dir    string
	now    func() time.Time
	logger *zap.Logger
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, now: time.Now, logger: logger}
}

// Dir returns the directory screenshots are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes png data and returns the file path.
func (s *Store) Save(attempt, label string, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create screenshot dir: %w", err)
	}
	path := filepath.Join(s.dir, s.fileName(attempt, label))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	return path, nil
}

// Placeholder renders a small PNG carrying the label and reason and returns
// its path. It falls back to the system temp dir, so the returned path always
// names an existing file unless the whole filesystem is unwritable.
func (s *Store) Placeholder(attempt, label, reason string) string {
	data := renderPlaceholder(label, reason)
	path, err := s.Save(attempt, label, data)
	if err == nil {
		return path
	}
	s.logger.Warn("screenshot dir unwritable, using temp dir", zap.Error(err))

	f, terr := os.CreateTemp("", "recipost-*_"+sanitizeLabel(label)+".png")
	if terr != nil {
		s.logger.Error("failed to write placeholder screenshot", zap.Error(terr))
		return ""
	}
	defer f.Close()
	if _, terr := f.Write(data); terr != nil {
		s.logger.Error("failed to write placeholder screenshot", zap.Error(terr))
	}
	return f.Name()
}

// Prune removes screenshots older than maxAge and, beyond that, the oldest
// files so that at most maxFiles remain. Zero disables either bound.
func (s *Store) Prune(maxAge time.Duration, maxFiles int) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read screenshot dir: %w", err)
	}

	type shot struct {
		path string
		mod  time.Time
	}
	var shots []shot
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".png") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		shots = append(shots, shot{path: filepath.Join(s.dir, e.Name()), mod: info.ModTime()})
	}
	// newest first
	sort.Slice(shots, func(i, j int) bool { return shots[i].mod.After(shots[j].mod) })

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for i, sh := range shots {
		expired := maxAge > 0 && sh.mod.Before(cutoff)
		overflow := maxFiles > 0 && i >= maxFiles
		if !expired && !overflow {
			continue
		}
		if err := os.Remove(sh.path); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", sh.path, err)
		}
		removed++
	}
	return removed, nil
}

func (s *Store) fileName(attempt, label string) string {
	short := attempt
	if len(short) > 8 {
		short = short[:8]
	}
	if short == "" {
		short = "none"
	}
	return fmt.Sprintf("%s_%s_%s.png", s.now().Format(timeLayout), sanitizeLabel(short), sanitizeLabel(label))
}

func sanitizeLabel(label string) string {
	label = unsafeLabel.ReplaceAllString(label, "-")
	label = strings.Trim(label, "-")
	if label == "" {
		return "shot"
	}
	return label
}

func renderPlaceholder(label, reason string) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 640, 120))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{0xf4, 0xf4, 0xf4, 0xff}}, image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{0xb0, 0x00, 0x20, 0xff}),
		Face: basicfont.Face7x13,
	}
	lines := []string{"no page screenshot available", "label: " + label, "reason: " + reason}
	for i, line := range lines {
		if len(line) > 88 {
			line = line[:88]
		}
		d.Dot = fixed.P(12, 28+i*26)
		d.DrawString(line)
	}

	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
