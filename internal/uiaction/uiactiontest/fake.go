// Package uiactiontest provides a scripted in-memory page for exercising code
// built on uiaction without a browser.
package uiactiontest

import (
	"context"
	"errors"
	"sync"
	"time"

	"recipost/internal/selectors"
	"recipost/internal/session"
	"recipost/internal/uiaction"
)

// ErrClosed is returned by every call on a closed page.
var ErrClosed = errors.New("page closed")

// tinyPNG is a valid 1x1 PNG.
var tinyPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

// Page is a fake uiaction.Page. Elements are keyed by selector, so a test
// shows exactly the alternative it wants the engine to find.
type Page struct {
	mu       sync.Mutex
	url      string
	elements map[string]*Element
	counts   map[string]int
	state    session.State
	timers   []*time.Timer

	navigations []string
	imported    []session.State
	shots       int
	closed      bool

	// OnNavigate runs after every navigation, with the page unlocked.
	OnNavigate func(url string)
	// ScreenshotErr makes Screenshot fail.
	ScreenshotErr error
}

// NewPage returns an empty page at about:blank.
func NewPage() *Page {
	return &Page{
		url:      "about:blank",
		elements: map[string]*Element{},
		counts:   map[string]int{},
	}
}

// First returns the first alternative of the named locator.
func First(p *selectors.Profile, name string) selectors.Selector {
	return p.Locator(name).Alternatives[0]
}

// Show makes sel match a visible element and returns it.
func (p *Page) Show(sel selectors.Selector) *Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.elements[sel.String()]
	if !ok {
		el = &Element{page: p, name: sel.String()}
		p.elements[sel.String()] = el
	}
	el.visible = true
	return el
}

// Attach makes sel match an element that is not visible, like a hidden
// file input.
func (p *Page) Attach(sel selectors.Selector) *Element {
	el := p.Show(sel)
	p.mu.Lock()
	el.visible = false
	p.mu.Unlock()
	return el
}

// Remove detaches sel.
func (p *Page) Remove(sel selectors.Selector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, sel.String())
	delete(p.counts, sel.String())
}

// SetCount fixes how many nodes sel matches.
func (p *Page) SetCount(sel selectors.Selector, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[sel.String()] = n
}

// SetURL moves the page to url without recording a navigation.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// SetState sets what ExportState returns.
func (p *Page) SetState(s session.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

// After runs fn once d has elapsed, simulating the platform reacting
// asynchronously.
func (p *Page) After(d time.Duration, fn func()) {
	t := time.AfterFunc(d, fn)
	p.mu.Lock()
	p.timers = append(p.timers, t)
	p.mu.Unlock()
}

// Navigations returns the URLs navigated to, in order.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// Imported returns every state passed to ImportState.
func (p *Page) Imported() []session.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]session.State(nil), p.imported...)
}

// Screenshots returns how many screenshots were taken.
func (p *Page) Screenshots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shots
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.url = url
	p.navigations = append(p.navigations, url)
	hook := p.OnNavigate
	p.mu.Unlock()
	if hook != nil {
		hook(url)
	}
	return nil
}

func (p *Page) URL() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrClosed
	}
	return p.url, nil
}

func (p *Page) Find(sel selectors.Selector) (uiaction.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	el, ok := p.elements[sel.String()]
	if !ok {
		return nil, nil
	}
	return el, nil
}

func (p *Page) Count(sel selectors.Selector) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	if n, ok := p.counts[sel.String()]; ok {
		return n, nil
	}
	if _, ok := p.elements[sel.String()]; ok {
		return 1, nil
	}
	return 0, nil
}

func (p *Page) Screenshot() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shots++
	if p.closed {
		return nil, ErrClosed
	}
	if p.ScreenshotErr != nil {
		return nil, p.ScreenshotErr
	}
	return tinyPNG, nil
}

func (p *Page) ExportState() (session.State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return session.State{}, ErrClosed
	}
	return p.state, nil
}

func (p *Page) ImportState(ctx context.Context, state session.State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.imported = append(p.imported, state)
	return nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for _, t := range p.timers {
		t.Stop()
	}
	return nil
}

// Element is a fake node that records every interaction.
type Element struct {
	page     *Page
	name     string
	visible  bool
	disabled bool
	clickErr error
	onClick  func()

	clicks int
	typed  []string
	files  [][]string
}

// Disable marks the element disabled.
func (e *Element) Disable() *Element {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	e.disabled = true
	return e
}

// FailClicks makes every click return err.
func (e *Element) FailClicks(err error) *Element {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	e.clickErr = err
	return e
}

// OnClick runs fn after each successful click, with the page unlocked.
func (e *Element) OnClick(fn func()) *Element {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	e.onClick = fn
	return e
}

// Clicks returns the number of successful clicks.
func (e *Element) Clicks() int {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return e.clicks
}

// Typed returns every text typed into the element.
func (e *Element) Typed() []string {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return append([]string(nil), e.typed...)
}

// Files returns every batch of files set on the element.
func (e *Element) Files() [][]string {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return append([][]string(nil), e.files...)
}

func (e *Element) Click() error {
	e.page.mu.Lock()
	if e.clickErr != nil {
		err := e.clickErr
		e.page.mu.Unlock()
		return err
	}
	e.clicks++
	hook := e.onClick
	e.page.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (e *Element) Type(text string) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	e.typed = append(e.typed, text)
	return nil
}

func (e *Element) SetFiles(paths []string) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	e.files = append(e.files, append([]string(nil), paths...))
	return nil
}

func (e *Element) Visible() (bool, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return e.visible, nil
}

func (e *Element) Disabled() (bool, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return e.disabled, nil
}

// Opener hands out one prepared page per call, for controller tests.
type Opener struct {
	mu    sync.Mutex
	Pages []*Page
	Err   error
	opens int
}

// OpenPage returns the next page.
func (o *Opener) OpenPage(ctx context.Context) (uiaction.Page, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return nil, o.Err
	}
	if o.opens >= len(o.Pages) {
		return nil, errors.New("no more pages")
	}
	p := o.Pages[o.opens]
	o.opens++
	return p, nil
}
