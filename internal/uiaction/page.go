package uiaction

import (
	"context"

	"recipost/internal/selectors"
	"recipost/internal/session"
)

// Page is the slice of a browser tab the automation needs. The rod adapter in
// internal/browser implements it for real; uiactiontest provides a scripted
// fake.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL() (string, error)
	// Find returns the first element matching sel, or nil without error
	// when nothing matches right now.
	Find(sel selectors.Selector) (Element, error)
	Count(sel selectors.Selector) (int, error)
	Screenshot() ([]byte, error)
	ExportState() (session.State, error)
	ImportState(ctx context.Context, state session.State) error
	Close() error
}

// Element is a located node.
type Element interface {
	Click() error
	Type(text string) error
	SetFiles(paths []string) error
	Visible() (bool, error)
	Disabled() (bool, error)
}

// Locator is re-exported so callers need only this package to describe a
// target.
type Locator = selectors.Locator

// Handle is an element together with the locator alternative that found it.
type Handle struct {
	Locator  Locator
	Selector selectors.Selector
	Element  Element
}
