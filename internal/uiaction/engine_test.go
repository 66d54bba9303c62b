package uiaction_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipost/internal/screenshot"
	"recipost/internal/selectors"
	"recipost/internal/uiaction"
	"recipost/internal/uiaction/uiactiontest"
)

var (
	primary  = selectors.Selector{CSS: "button.publishBtn"}
	fallback = selectors.Selector{CSS: "button", Text: "发布"}
	button   = uiaction.Locator{Name: "publish_button", Alternatives: []selectors.Selector{primary, fallback}}
)

func newEngine(t *testing.T, page *uiactiontest.Page) *uiaction.Engine {
	t.Helper()
	shots := screenshot.NewStore(t.TempDir(), nil)
	return uiaction.New(page, shots, uiaction.WithAttempt("attempt-1"), uiaction.WithPoll(5*time.Millisecond))
}

func TestLocateFallsBackToLaterAlternative(t *testing.T) {
	page := uiactiontest.NewPage()
	page.Show(fallback)
	e := newEngine(t, page)

	h, err := e.Locate(context.Background(), button, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, fallback, h.Selector)
}

func TestLocatePrefersFirstAlternative(t *testing.T) {
	page := uiactiontest.NewPage()
	page.Show(fallback)
	page.Show(primary)
	e := newEngine(t, page)

	h, err := e.Locate(context.Background(), button, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, primary, h.Selector)
}

func TestLocateWaitsForLateRender(t *testing.T) {
	page := uiactiontest.NewPage()
	page.After(30*time.Millisecond, func() { page.Show(primary) })
	e := newEngine(t, page)

	_, err := e.Locate(context.Background(), button, time.Second)
	require.NoError(t, err)
}

func TestLocateNotFound(t *testing.T) {
	e := newEngine(t, uiactiontest.NewPage())

	_, err := e.Locate(context.Background(), button, 30*time.Millisecond)
	var nf *uiaction.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "publish_button", nf.Locator.Name)
}

func TestLocateHonoursCancellation(t *testing.T) {
	e := newEngine(t, uiactiontest.NewPage())
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	_, err := e.Locate(ctx, button, 10*time.Second)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClickDisabledIsInteractionError(t *testing.T) {
	page := uiactiontest.NewPage()
	el := page.Show(primary).Disable()
	e := newEngine(t, page)

	h, err := e.Locate(context.Background(), button, 50*time.Millisecond)
	require.NoError(t, err)
	err = e.Click(h)
	var ie *uiaction.InteractionError
	require.ErrorAs(t, err, &ie)
	assert.ErrorIs(t, err, uiaction.ErrDisabled)
	assert.Zero(t, el.Clicks())
}

func TestClickRejectedIsInteractionError(t *testing.T) {
	page := uiactiontest.NewPage()
	page.Show(primary).FailClicks(errors.New("node detached"))
	e := newEngine(t, page)

	h, err := e.Locate(context.Background(), button, 50*time.Millisecond)
	require.NoError(t, err)
	var ie *uiaction.InteractionError
	require.ErrorAs(t, e.Click(h), &ie)
	assert.Equal(t, "click", ie.Action)
}

func TestPresentRequiresVisibility(t *testing.T) {
	page := uiactiontest.NewPage()
	e := newEngine(t, page)
	assert.False(t, e.Present(button))

	page.Attach(primary)
	assert.False(t, e.Present(button))

	page.Show(fallback)
	assert.True(t, e.Present(button))
}

func TestCount(t *testing.T) {
	page := uiactiontest.NewPage()
	page.SetCount(fallback, 3)
	assert.Equal(t, 3, newEngine(t, page).Count(button))
}

func TestWaitUntil(t *testing.T) {
	e := newEngine(t, uiactiontest.NewPage())
	n := 0
	require.NoError(t, e.WaitUntil(context.Background(), time.Second, func() bool { n++; return n > 3 }))
	assert.ErrorIs(t, e.WaitUntil(context.Background(), 20*time.Millisecond, func() bool { return false }), uiaction.ErrWaitTimeout)
}

func TestScreenshotNeverFails(t *testing.T) {
	page := uiactiontest.NewPage()
	e := newEngine(t, page)

	path := e.Screenshot("Start")
	assert.FileExists(t, path)

	page.ScreenshotErr = errors.New("target crashed")
	path = e.Screenshot("ErrorCaptured")
	assert.FileExists(t, path)
	assert.Contains(t, path, "ErrorCaptured")
}
