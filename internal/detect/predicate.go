package detect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Predicate decides from a page's HTML whether the login has completed.
type Predicate interface {
	Match(html string) (bool, error)
	String() string
}

// Predicate kinds, matching the marker_kind config values.
const (
	KindText     = "text"
	KindHTML     = "html"
	KindSelector = "selector"
	KindRegex    = "regex"
)

// NewPredicate builds the predicate for a configured marker.
func NewPredicate(kind, marker string) (Predicate, error) {
	if marker == "" {
		return nil, fmt.Errorf("empty marker")
	}
	switch kind {
	case "", KindText:
		return TextContains(marker), nil
	case KindHTML:
		return HTMLContains(marker), nil
	case KindSelector:
		return SelectorPresent(marker)
	case KindRegex:
		return Regex(marker)
	default:
		return nil, fmt.Errorf("unknown marker kind %q", kind)
	}
}

type textContains struct{ marker string }

// TextContains matches when marker appears in the rendered text of the
// page body. Script and style contents do not count, and runs of
// whitespace compare equal to a single space.
func TextContains(marker string) Predicate {
	return textContains{marker: collapseSpace(marker)}
}

func (p textContains) Match(html string) (bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false, fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()

	text := doc.Find("body").Text()
	if text == "" {
		text = doc.Text()
	}
	return strings.Contains(collapseSpace(text), p.marker), nil
}

func (p textContains) String() string { return fmt.Sprintf("text %q", p.marker) }

type htmlContains struct{ marker string }

// HTMLContains matches when marker appears anywhere in the raw HTML.
func HTMLContains(marker string) Predicate { return htmlContains{marker: marker} }

func (p htmlContains) Match(html string) (bool, error) {
	return strings.Contains(html, p.marker), nil
}

func (p htmlContains) String() string { return fmt.Sprintf("html %q", p.marker) }

type selectorPresent struct {
	selector string
	sel      cascadia.Selector
}

// SelectorPresent matches when at least one element matches the CSS selector.
func SelectorPresent(selector string) (Predicate, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	return selectorPresent{selector: selector, sel: sel}, nil
}

func (p selectorPresent) Match(html string) (bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false, fmt.Errorf("parse html: %w", err)
	}
	return doc.FindMatcher(p.sel).Length() > 0, nil
}

func (p selectorPresent) String() string { return fmt.Sprintf("selector %q", p.selector) }

type regexMatch struct{ re *regexp.Regexp }

// Regex matches when the expression matches the raw HTML.
func Regex(expr string) (Predicate, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", expr, err)
	}
	return regexMatch{re: re}, nil
}

func (p regexMatch) Match(html string) (bool, error) {
	return p.re.MatchString(html), nil
}

func (p regexMatch) String() string { return fmt.Sprintf("regex %q", p.re.String()) }

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(html string) (bool, error)

func (f PredicateFunc) Match(html string) (bool, error) { return f(html) }

func (f PredicateFunc) String() string { return "func" }

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
