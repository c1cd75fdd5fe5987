package display

import (
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// ErrorFragment replaces the panel content when rendering fails.
const ErrorFragment = "<h1>Error!</h1><p>Check logs for details.</p>"

// Panel is the secondary surface: it holds the last rendered fragment.
type Panel struct {
	mu        sync.RWMutex
	html      string
	observers []func(string)
}

func NewPanel() *Panel { return &Panel{} }

func (p *Panel) HTML() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.html
}

// Replace swaps the content and notifies observers.
func (p *Panel) Replace(html string) {
	p.mu.Lock()
	p.html = html
	obs := append([]func(string){}, p.observers...)
	p.mu.Unlock()
	for _, fn := range obs {
		fn(html)
	}
}

// OnChange registers fn to receive every new fragment.
func (p *Panel) OnChange(fn func(string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, fn)
}

var textPolicy = bluemonday.StrictPolicy()

// Text returns the visible text of the fragment with markup and scripts
// removed, one block per line.
func (p *Panel) Text() string {
	return FragmentText(p.HTML())
}

// FragmentText extracts readable text from an HTML fragment.
func FragmentText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(textPolicy.Sanitize(html))
	}
	doc.Find("script, style").Remove()

	var lines []string
	doc.Find("h1, h2, h3, p, pre, li, tr").Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered("pre, li, tr, p").Length() > 0 {
			return
		}
		var t string
		if s.Is("tr") {
			var cells []string
			s.Children().Each(func(_ int, c *goquery.Selection) {
				cells = append(cells, strings.TrimSpace(c.Text()))
			})
			t = strings.Join(cells, " | ")
		} else if s.Is("pre") {
			t = strings.TrimRight(s.Text(), "\n")
		} else {
			t = strings.Join(strings.Fields(s.Text()), " ")
		}
		if t != "" {
			lines = append(lines, t)
		}
	})
	if len(lines) == 0 {
		return strings.Join(strings.Fields(doc.Text()), " ")
	}
	return strings.Join(lines, "\n")
}

// scripts returns the source of every inline script element, in document
// order.
func scripts(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	var out []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if src := strings.TrimSpace(s.Text()); src != "" {
			out = append(out, src)
		}
	})
	return out, nil
}
