package browser

import (
	"context"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOriginOf(t *testing.T) {
	assert.Equal(t, "https://creator.xiaohongshu.com", originOf("https://creator.xiaohongshu.com/publish/publish?from=menu"))
	assert.Equal(t, "http://localhost:8080", originOf("http://localhost:8080/x"))
	assert.Empty(t, originOf("about:blank"))
	assert.Empty(t, originOf("chrome://newtab"))
	assert.Empty(t, originOf("::"))
}

func TestCallsAreBoundedByTimeoutAndAttemptContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Wrap(ctx, &rod.Page{})

	page, done := p.bounded()
	defer done()
	deadline, ok := page.GetContext().Deadline()
	require.True(t, ok, "every call has a deadline")
	assert.WithinDuration(t, time.Now().Add(actionTimeout), deadline, time.Second)

	cancel()
	assert.ErrorIs(t, page.GetContext().Err(), context.Canceled)
}

func TestFoundElementsOutliveTheLookupTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := Wrap(ctx, &rod.Page{})

	page, done := p.bounded()
	el := p.element((&rod.Element{}).Context(page.GetContext()))
	done()
	assert.NoError(t, el.el.GetContext().Err())

	bounded, release := el.bounded()
	defer release()
	_, ok := bounded.GetContext().Deadline()
	assert.True(t, ok)
}
