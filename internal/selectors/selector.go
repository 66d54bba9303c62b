package selectors

import (
	"fmt"
	"strings"
)

// Selector is one way of finding an element. Exactly one of CSS or XPath is
// set; Text narrows a CSS match to elements whose visible text contains it.
type Selector struct {
	CSS   string `yaml:"css,omitempty"`
	XPath string `yaml:"xpath,omitempty"`
	Text  string `yaml:"text,omitempty"`
}

// String renders the selector in a compact, log-friendly form. It is also
// used as a stable key by test fakes.
func (s Selector) String() string {
	switch {
	case s.XPath != "":
		return "xpath=" + s.XPath
	case s.Text != "":
		return fmt.Sprintf("css=%s text=%q", s.CSS, s.Text)
	default:
		return "css=" + s.CSS
	}
}

func (s Selector) validate() error {
	if s.CSS == "" && s.XPath == "" {
		return fmt.Errorf("selector needs css or xpath")
	}
	if s.CSS != "" && s.XPath != "" {
		return fmt.Errorf("selector %s sets both css and xpath", s)
	}
	if s.XPath != "" && s.Text != "" {
		return fmt.Errorf("selector %s: text filter is only supported with css", s)
	}
	return nil
}

// Locator is an ordered fallback list for one logical element.
type Locator struct {
	Name         string
	Alternatives []Selector
}

func (l Locator) String() string {
	parts := make([]string, 0, len(l.Alternatives))
	for _, s := range l.Alternatives {
		parts = append(parts, s.String())
	}
	return fmt.Sprintf("%s[%s]", l.Name, strings.Join(parts, " | "))
}
