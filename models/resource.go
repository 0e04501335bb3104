package models

// ResourceKind enumerates the asset buckets a capture downloads into.
type ResourceKind string

const (
	KindImage  ResourceKind = "images"
	KindCSS    ResourceKind = "css"
	KindJS     ResourceKind = "js"
	KindFont   ResourceKind = "fonts"
	KindOther  ResourceKind = "other"
)

// ResourceDescriptor is the record produced after downloading one resource.
type ResourceDescriptor struct {
	URL         string       `json:"url"`
	LocalPath   string       `json:"local_path"` // relative path inside the capture dir, e.g. "images/a.png"
	Filename    string       `json:"filename"`
	ContentType string       `json:"content_type"`
	Size        int64        `json:"size"`
	Kind        ResourceKind `json:"kind"`

	// Inline stylesheets have no URL/LocalPath; Content holds the source text.
	Inline  bool   `json:"inline,omitempty"`
	Content string `json:"-"`
}

// ResourceFailure records a single resource that failed to download.
type ResourceFailure struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// DiscoveredResources are the raw references an extractor finds on a page,
// before any of them have been downloaded.
type DiscoveredResources struct {
	Images  []ImageRef
	CSS     []CSSRef
	JS      []JSRef
	Fonts   []FontRef
	Favicon string // absolute URL, may be empty
}

// ImageRef is one <img> or <picture><source> reference, possibly with a
// srcset of multiple candidate URLs.
type ImageRef struct {
	Src    string        // resolved absolute URL of the primary source
	Srcset []SrcsetEntry // resolved srcset candidates, if any
}

// SrcsetEntry is one candidate in a srcset attribute: an absolute URL plus
// its original descriptor ("2x", "250w", or empty for the bare candidate).
type SrcsetEntry struct {
	URL        string
	Descriptor string
}

// CSSRef is an external stylesheet or an inline <style> block.
type CSSRef struct {
	URL     string // absolute URL; empty when Inline
	Inline  bool
	Content string // inline block content, when Inline
	Index   int    // positional index among inline blocks, for stable naming
}

// JSRef is an external <script src="...">.
type JSRef struct {
	URL string
}

// FontRef is a @font-face src URL discovered in a stylesheet (external or
// inline), already resolved to an absolute URL.
type FontRef struct {
	URL       string
	SourceCSS string // the stylesheet (or page) URL it was found in, for diagnostics
}

// URLMap is the ephemeral per-capture mapping from absolute resource URL
// (as seen by the browser) to the relative local path used in the archive.
type URLMap struct {
	entries map[string]string
}

// NewURLMap creates an empty URLMap.
func NewURLMap() *URLMap {
	return &URLMap{entries: make(map[string]string)}
}

// Set records that absoluteURL maps to localPath (e.g. "images/a.png").
func (m *URLMap) Set(absoluteURL, localPath string) {
	m.entries[absoluteURL] = localPath
}

// Get returns the local path for absoluteURL, if downloaded.
func (m *URLMap) Get(absoluteURL string) (string, bool) {
	v, ok := m.entries[absoluteURL]
	return v, ok
}

// Len returns the number of mapped URLs.
func (m *URLMap) Len() int { return len(m.entries) }

// Entries returns a snapshot copy of the underlying map for read-only
// iteration (e.g. the Wikipedia-file-anchor search in the rewriter).
func (m *URLMap) Entries() map[string]string {
	out := make(map[string]string, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}
