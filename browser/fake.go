package browser

import (
	"context"
	"fmt"
)

// FakePage is a Page whose content and eval results are pre-scripted, so
// extractor/crawler logic can be exercised without launching Chromium.
type FakePage struct {
	HTMLContent string
	PageTitle   string
	EvalResults map[string]string // js source -> canned EvalJSON result
	NavErr      error
	Closed      bool
	Scrolls     []int
}

func (p *FakePage) Navigate(ctx context.Context, url string, opts NavigateOptions) error {
	return p.NavErr
}

func (p *FakePage) HTML() (string, error) { return p.HTMLContent, nil }

func (p *FakePage) Title() string { return p.PageTitle }

func (p *FakePage) EvalString(js string) string {
	if v, ok := p.EvalResults[js]; ok {
		return v
	}
	return ""
}

func (p *FakePage) EvalJSON(js string) (string, error) {
	if v, ok := p.EvalResults[js]; ok {
		return v, nil
	}
	return "null", nil
}

func (p *FakePage) Scroll(dy int) error {
	p.Scrolls = append(p.Scrolls, dy)
	return nil
}

func (p *FakePage) Close() error {
	p.Closed = true
	return nil
}

// FakeBrowser hands out FakePages from a pre-seeded queue, keyed by
// insertion order; if the queue is exhausted it repeats the last page.
type FakeBrowser struct {
	Pages    []*FakePage
	NewErr   error
	served   int
	maxPages int
}

// NewFake returns a FakeBrowser that serves pages from the given list in
// order.
func NewFake(pages ...*FakePage) *FakeBrowser {
	return &FakeBrowser{Pages: pages, maxPages: 10}
}

func (f *FakeBrowser) NewPage(ctx context.Context) (Page, error) {
	if f.NewErr != nil {
		return nil, f.NewErr
	}
	if len(f.Pages) == 0 {
		return nil, fmt.Errorf("fake browser: no pages seeded")
	}
	idx := f.served
	if idx >= len(f.Pages) {
		idx = len(f.Pages) - 1
	}
	f.served++
	return f.Pages[idx], nil
}

func (f *FakeBrowser) Stats() PoolStats {
	return PoolStats{MaxPages: f.maxPages, ActivePages: 0}
}

func (f *FakeBrowser) Close() {}
