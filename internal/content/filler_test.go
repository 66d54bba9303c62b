package content_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipost/internal/content"
	"recipost/internal/screenshot"
	"recipost/internal/selectors"
	"recipost/internal/uiaction"
	"recipost/internal/uiaction/uiactiontest"
)

func setup(t *testing.T) (*uiactiontest.Page, *content.Filler, *selectors.Profile) {
	t.Helper()
	profile := selectors.Default()
	page := uiactiontest.NewPage()
	engine := uiaction.New(page, screenshot.NewStore(t.TempDir(), nil), uiaction.WithPoll(5*time.Millisecond))
	return page, content.NewFiller(engine, profile, 50*time.Millisecond, nil), profile
}

func TestFillTypesTruncatedTitleAndVerbatimBody(t *testing.T) {
	page, filler, profile := setup(t)
	title := page.Show(uiactiontest.First(profile, selectors.TitleInput))
	body := page.Show(profile.Locator(selectors.BodyEditor).Alternatives[1])

	text := "第一步 🍝\n第二步\n#家常菜 #意面"
	require.NoError(t, filler.Fill(context.Background(), "The Best Creamy Garlic Butter Noodles", text))
	assert.Equal(t, []string{"The Best Creamy…"}, title.Typed())
	assert.Equal(t, []string{text}, body.Typed())
}

func TestFillRejectsLongBodyBeforeTouchingPage(t *testing.T) {
	page, filler, profile := setup(t)
	title := page.Show(uiactiontest.First(profile, selectors.TitleInput))
	page.Show(uiactiontest.First(profile, selectors.BodyEditor))

	err := filler.Fill(context.Background(), "title", strings.Repeat("a", profile.Limits.Body+1))
	require.ErrorIs(t, err, content.ErrBodyTooLong)
	assert.Empty(t, title.Typed())
}

func TestFillReportsMissingField(t *testing.T) {
	page, filler, profile := setup(t)
	page.Show(uiactiontest.First(profile, selectors.TitleInput))

	err := filler.Fill(context.Background(), "title", "body")
	var fe *content.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "body", fe.Field)
	var nf *uiaction.NotFoundError
	assert.ErrorAs(t, err, &nf)
}
