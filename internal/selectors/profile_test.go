package selectors

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultProfileDefinesEveryLocator(t *testing.T) {
	p := Default()
	require.NoError(t, p.Validate())
	for _, name := range requiredLocators {
		loc := p.Locator(name)
		assert.NotEmpty(t, loc.Alternatives, name)
	}
	assert.Equal(t, 20, p.Limits.Title)
	assert.Equal(t, 9, p.Limits.Images)
}

func TestParseRejectsMissingLocator(t *testing.T) {
	p := Default()
	delete(p.Locators, PublishButton)
	data, err := yaml.Marshal(p)
	require.NoError(t, err)

	_, err = Parse(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing locator publish_button")
}

func TestParseRejectsInvalidSelector(t *testing.T) {
	p := Default()
	p.Locators[TitleInput] = []Selector{{CSS: "input", XPath: "//input"}}
	data, err := yaml.Marshal(p)
	require.NoError(t, err)

	_, err = Parse(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title_input")
}

func TestSelectorString(t *testing.T) {
	assert.Equal(t, "css=button", Selector{CSS: "button"}.String())
	assert.Equal(t, `css=button text="发布"`, Selector{CSS: "button", Text: "发布"}.String())
	assert.Equal(t, "xpath=//a", Selector{XPath: "//a"}.String())
}

func TestMatchesAny(t *testing.T) {
	patterns := []string{"/login", ""}
	assert.True(t, MatchesAny("https://creator.xiaohongshu.com/login?redirect=x", patterns))
	assert.False(t, MatchesAny("https://creator.xiaohongshu.com/creator/home", patterns))
	assert.False(t, MatchesAny("anything", nil))
}

func writeProfile(t *testing.T, path string, mutate func(*Profile)) {
	t.Helper()
	p := Default()
	if mutate != nil {
		mutate(p)
	}
	data, err := yaml.Marshal(p)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestSourceReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	writeProfile(t, path, func(p *Profile) { p.Limits.Title = 30 })

	src, err := NewSource(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 30, src.Current().Limits.Title)

	require.NoError(t, os.WriteFile(path, []byte("locators: ["), 0o644))
	require.Error(t, src.Reload())
	assert.Equal(t, 30, src.Current().Limits.Title)
}

func TestSourceWatchPicksUpChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	writeProfile(t, path, nil)

	src, err := NewSource(path, nil)
	require.NoError(t, err)
	require.NoError(t, src.Watch(t.Context()))

	writeProfile(t, path, func(p *Profile) { p.Platform = "xiaohongshu-test" })

	require.Eventually(t, func() bool {
		return strings.HasSuffix(src.Current().Platform, "-test")
	}, 5*time.Second, 50*time.Millisecond)
}

func TestEmptyPathUsesDefault(t *testing.T) {
	src, err := NewSource("", nil)
	require.NoError(t, err)
	assert.Equal(t, "xiaohongshu", src.Current().Platform)
	assert.NoError(t, src.Watch(t.Context()))
}
