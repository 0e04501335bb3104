package content

import "testing"

const samplePage = `
<html><body>
<header><nav><a href="/home">Home</a><a href="/about">About</a></nav></header>
<main>
  <article>
    <p>Some text with a <a href="https://example.com/article/2">related link</a>.</p>
    <p>Another <a href="https://external.com/page">external link</a> and a
       <a href="https://example.com/article/2#section">duplicate with fragment</a>.</p>
    <aside class="sidebar"><a href="/promo">Promo</a></aside>
  </article>
</main>
<footer><a href="/terms">Terms</a></footer>
</body></html>
`

func TestExtractLinksFindsMainContainer(t *testing.T) {
	res, err := ExtractLinks(samplePage, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Diag.ContainerFound {
		t.Fatal("expected a content container to be found")
	}
	if res.Diag.ContainerSelector != "main" {
		t.Errorf("expected main selector to win, got %q", res.Diag.ContainerSelector)
	}
}

func TestExtractLinksExcludesChrome(t *testing.T) {
	res, err := ExtractLinks(samplePage, Options{})
	if err != nil {
		t.Fatal(err)
	}
	for _, l := range res.Links {
		if l == "/home" || l == "/about" || l == "/terms" || l == "/promo" {
			t.Errorf("link %q from chrome/sidebar should have been excluded", l)
		}
	}
}

func TestExtractLinksDedupesFragment(t *testing.T) {
	res, err := ExtractLinks(samplePage, Options{})
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, l := range res.Links {
		if l == "https://example.com/article/2" || l == "https://example.com/article/2#section" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected the fragment-duplicate link to be deduplicated, got %d matches", count)
	}
}

func TestExtractLinksSameDomainFilter(t *testing.T) {
	res, err := ExtractLinks(samplePage, Options{BaseDomain: "example.com"})
	if err != nil {
		t.Fatal(err)
	}
	for _, l := range res.Links {
		if l == "https://external.com/page" {
			t.Errorf("external link should have been filtered by same-domain option")
		}
	}
}

func TestExtractLinksNoContainer(t *testing.T) {
	res, err := ExtractLinks("<html><body><p>no container here</p></body></html>", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Diag.ContainerFound {
		t.Error("expected no container to be found")
	}
	if len(res.Links) != 0 {
		t.Errorf("expected no links, got %v", res.Links)
	}
}
