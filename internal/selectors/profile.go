package selectors

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Logical element names. Every profile must define all of them.
const (
	AuthenticatedMarker = "authenticated_marker"
	LoginMarker         = "login_marker"
	ImageTab            = "image_tab"
	VideoTab            = "video_tab"
	UploadInput         = "upload_input"
	MediaItemReady      = "media_item_ready"
	MediaItemFailed     = "media_item_failed"
	VideoProcessed      = "video_processed"
	VideoCoverReady     = "video_cover_ready"
	TitleInput          = "title_input"
	BodyEditor          = "body_editor"
	PublishButton       = "publish_button"
	DraftButton         = "draft_button"
	PublishSuccess      = "publish_success"
	DraftSuccess        = "draft_success"
)

var requiredLocators = []string{
	AuthenticatedMarker, LoginMarker, ImageTab, VideoTab, UploadInput,
	MediaItemReady, MediaItemFailed, VideoProcessed, VideoCoverReady,
	TitleInput, BodyEditor, PublishButton, DraftButton, PublishSuccess, DraftSuccess,
}

//go:embed default.yaml
var defaultProfile []byte

// URLs are the platform pages the automation visits.
type URLs struct {
	Origin  string `yaml:"origin"`
	Home    string `yaml:"home"`
	Login   string `yaml:"login"`
	Publish string `yaml:"publish"`
}

// Limits are the platform's field and media constraints, in displayed
// characters.
type Limits struct {
	Title  int `yaml:"title"`
	Body   int `yaml:"body"`
	Images int `yaml:"images"`
}

// Profile maps every logical UI element of one platform to its fallback
// selectors, together with URLs, URL patterns and limits.
type Profile struct {
	Platform             string                `yaml:"platform"`
	URLs                 URLs                  `yaml:"urls"`
	LoginURLPatterns     []string              `yaml:"login_url_patterns"`
	HomeURLPatterns      []string              `yaml:"home_url_patterns"`
	PublishedURLPatterns []string              `yaml:"published_url_patterns"`
	DraftURLPatterns     []string              `yaml:"draft_url_patterns"`
	Limits               Limits                `yaml:"limits"`
	Locators             map[string][]Selector `yaml:"locators"`
}

// Default returns the built-in profile.
func Default() *Profile {
	p, err := Parse(defaultProfile)
	if err != nil {
		panic(fmt.Sprintf("embedded selector profile is invalid: %v", err))
	}
	return p
}

// LoadFile reads and validates a profile from disk.
func LoadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read selector profile %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid selector profile %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes and validates a YAML profile.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse selector YAML: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks that every required locator and URL is present.
func (p *Profile) Validate() error {
	var problems []string
	if p.URLs.Home == "" || p.URLs.Login == "" || p.URLs.Publish == "" {
		problems = append(problems, "urls.home, urls.login and urls.publish are required")
	}
	if p.Limits.Title <= 1 || p.Limits.Body <= 0 {
		problems = append(problems, "limits.title must be > 1 and limits.body > 0")
	}
	for _, name := range requiredLocators {
		alts := p.Locators[name]
		if len(alts) == 0 {
			problems = append(problems, "missing locator "+name)
			continue
		}
		for _, s := range alts {
			if err := s.validate(); err != nil {
				problems = append(problems, name+": "+err.Error())
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("selector profile: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Locator returns the named fallback list. Unknown names yield an empty
// locator, which never matches.
func (p *Profile) Locator(name string) Locator {
	return Locator{Name: name, Alternatives: p.Locators[name]}
}

// MatchesAny reports whether url contains any of the patterns.
func MatchesAny(url string, patterns []string) bool {
	for _, pattern := range patterns {
		if pattern != "" && strings.Contains(url, pattern) {
			return true
		}
	}
	return false
}
