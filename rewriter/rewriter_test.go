package rewriter

import (
	"strings"
	"testing"

	"github.com/use-agent/archivist/models"
)

func buildMap(pairs map[string]string) *models.URLMap {
	m := models.NewURLMap()
	for k, v := range pairs {
		m.Set(k, v)
	}
	return m
}

func TestRewriteHTMLImgAndSrcset(t *testing.T) {
	m := buildMap(map[string]string{
		"https://example.com/a.png":    "images/a.png",
		"https://example.com/a-2x.png": "images/a-2x.png",
	})
	html := `<html><body><img src="a.png" srcset="a.png 1x, a-2x.png 2x"></body></html>`
	out, err := RewriteHTML(Input{HTML: html, PageURL: "https://example.com/page", URLMap: m})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.HTML, `src="images/a.png"`) {
		t.Errorf("expected src rewritten, got: %s", out.HTML)
	}
	if !strings.Contains(out.HTML, "images/a.png 1x") || !strings.Contains(out.HTML, "images/a-2x.png 2x") {
		t.Errorf("expected srcset rewritten with descriptors preserved, got: %s", out.HTML)
	}
}

func TestRewriteHTMLBaseHrefRemoved(t *testing.T) {
	m := buildMap(map[string]string{"https://cdn.example.com/a.png": "images/a.png"})
	html := `<html><head><base href="https://cdn.example.com/"></head><body><img src="a.png"></body></html>`
	out, err := RewriteHTML(Input{HTML: html, PageURL: "https://example.com/page", URLMap: m})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out.HTML, "<base") {
		t.Errorf("expected <base> tag removed, got: %s", out.HTML)
	}
	if !strings.Contains(out.HTML, `src="images/a.png"`) {
		t.Errorf("expected src resolved against base href and rewritten, got: %s", out.HTML)
	}
}

func TestRewriteHTMLStripsIntegrityAndCSP(t *testing.T) {
	m := models.NewURLMap()
	html := `<html><head><meta http-equiv="Content-Security-Policy" content="default-src 'self'">` +
		`<link rel="stylesheet" href="s.css" integrity="sha256-x" crossorigin="anonymous"></head>` +
		`<body><script src="a.js" integrity="sha256-y"></script></body></html>`
	out, err := RewriteHTML(Input{HTML: html, PageURL: "https://example.com/page", URLMap: m})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out.HTML, "integrity") || strings.Contains(out.HTML, "crossorigin") {
		t.Errorf("expected integrity/crossorigin stripped, got: %s", out.HTML)
	}
	if strings.Contains(out.HTML, "Content-Security-Policy") {
		t.Errorf("expected CSP meta removed, got: %s", out.HTML)
	}
}

func TestRewriteAnchorAbsolutizesRelativeLinks(t *testing.T) {
	m := models.NewURLMap()
	html := `<html><body><a href="/other-page">link</a><a href="#frag">anchor</a>` +
		`<a href="mailto:a@b.com">mail</a><a href="https://already.com/x">abs</a></body></html>`
	out, err := RewriteHTML(Input{HTML: html, PageURL: "https://example.com/page", URLMap: m})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.HTML, `href="https://example.com/other-page"`) {
		t.Errorf("expected relative link absolutized, got: %s", out.HTML)
	}
	if !strings.Contains(out.HTML, `href="#frag"`) {
		t.Errorf("expected anchor link untouched, got: %s", out.HTML)
	}
	if !strings.Contains(out.HTML, `href="mailto:a@b.com"`) {
		t.Errorf("expected mailto untouched, got: %s", out.HTML)
	}
	if !strings.Contains(out.HTML, `href="https://already.com/x"`) {
		t.Errorf("expected absolute link untouched, got: %s", out.HTML)
	}
}

func TestRewriteAnchorImageLinkRewritten(t *testing.T) {
	m := buildMap(map[string]string{"https://example.com/full.jpg": "images/full.jpg"})
	html := `<html><body><a href="full.jpg">photo</a></body></html>`
	out, err := RewriteHTML(Input{HTML: html, PageURL: "https://example.com/page", URLMap: m})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.HTML, `href="images/full.jpg"`) {
		t.Errorf("expected anchor to an image resource rewritten to local path, got: %s", out.HTML)
	}
}

func TestRewriteAnchorWikiFileBestMatch(t *testing.T) {
	m := buildMap(map[string]string{
		"https://upload.wikimedia.org/wikipedia/commons/thumb/a/a1/Example.jpg/100px-Example.jpg": "images/100px-Example.jpg",
		"https://upload.wikimedia.org/wikipedia/commons/thumb/a/a1/Example.jpg/800px-Example.jpg": "images/800px-Example.jpg",
	})
	html := `<html><body><a href="/wiki/File:Example.jpg">file</a></body></html>`
	out, err := RewriteHTML(Input{HTML: html, PageURL: "https://en.wikipedia.org/wiki/Example", URLMap: m})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.HTML, `href="images/800px-Example.jpg"`) {
		t.Errorf("expected the largest px-prefixed match selected, got: %s", out.HTML)
	}
}

func TestRewriteCSS(t *testing.T) {
	m := buildMap(map[string]string{
		"https://example.com/css/bg.png": "images/bg.png",
	})
	css := `.a { background: url('bg.png'); } .b { background: url(data:image/png;base64,AAA=); }`
	out := RewriteCSS(css, "https://example.com/css/style.css", m)
	if !strings.Contains(out, "url('../images/bg.png')") {
		t.Errorf("expected bucket-relative rewrite, got: %s", out)
	}
	if !strings.Contains(out, "data:image/png;base64,AAA=") {
		t.Errorf("expected data: URL left untouched, got: %s", out)
	}
}
