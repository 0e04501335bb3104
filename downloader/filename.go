package downloader

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// genericDispatchers are basenames that are themselves meaningless — the
// actual resource identity lives in the query string (spec.md §4.2).
var genericDispatchers = map[string]bool{
	"load.php":   true,
	"index.php":  true,
	"api.php":    true,
	"script.php": true,
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// contentTypeExt maps common MIME types (ignoring parameters) to a file
// extension, for when a resource URL carries no usable extension itself.
var contentTypeExt = map[string]string{
	"image/png":                    ".png",
	"image/jpeg":                   ".jpg",
	"image/jpg":                    ".jpg",
	"image/gif":                    ".gif",
	"image/webp":                   ".webp",
	"image/svg+xml":                ".svg",
	"image/x-icon":                 ".ico",
	"image/vnd.microsoft.icon":     ".ico",
	"image/avif":                   ".avif",
	"text/css":                     ".css",
	"application/javascript":       ".js",
	"text/javascript":              ".js",
	"application/x-javascript":     ".js",
	"font/woff2":                   ".woff2",
	"font/woff":                    ".woff",
	"application/font-woff":        ".woff",
	"application/font-woff2":       ".woff2",
	"font/ttf":                     ".ttf",
	"application/x-font-ttf":       ".ttf",
	"font/otf":                     ".otf",
	"application/vnd.ms-fontobject": ".eot",
	"application/pdf":              ".pdf",
}

// ExtFromContentType returns the extension (with leading dot) for a
// Content-Type header value, or "" when unrecognized.
func ExtFromContentType(contentType string) string {
	ct := contentType
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = ct[:idx]
	}
	ct = strings.ToLower(strings.TrimSpace(ct))
	return contentTypeExt[ct]
}

// GenerateFilename derives a local filename for rawURL per spec.md §4.2:
//
//  1. basename of the URL path, sanitized to [A-Za-z0-9._-], query dropped.
//  2. if the basename is a generic dispatcher and a query string is
//     present, append _<md5(url)[0:8]> and force the extension from
//     contentType.
//  3. if no extension can be derived at all, fall back to
//     resource_<md5(url)[0:12]><ext-from-contentType>.
//  4. cap the result at 100 characters, preserving the extension.
func GenerateFilename(rawURL string, contentType string) string {
	u, err := url.Parse(rawURL)
	var rawPath, rawQuery string
	if err == nil {
		rawPath = u.Path
		rawQuery = u.RawQuery
	} else {
		rawPath = rawURL
	}

	base := path.Base(rawPath)
	if base == "." || base == "/" || base == "" {
		base = ""
	}

	sanitized := unsafeFilenameChars.ReplaceAllString(base, "_")
	ext := path.Ext(sanitized)

	lowerBase := strings.ToLower(base)
	if genericDispatchers[lowerBase] && rawQuery != "" {
		sum := md5.Sum([]byte(rawURL))
		hash := hex.EncodeToString(sum[:])[:8]
		stem := strings.TrimSuffix(sanitized, ext)
		forcedExt := ExtFromContentType(contentType)
		if forcedExt == "" {
			forcedExt = ext
		}
		return capLength(stem+"_"+hash+forcedExt, forcedExt)
	}

	if sanitized == "" || ext == "" {
		sum := md5.Sum([]byte(rawURL))
		hash := hex.EncodeToString(sum[:])[:12]
		fallbackExt := ExtFromContentType(contentType)
		return capLength("resource_"+hash+fallbackExt, fallbackExt)
	}

	return capLength(sanitized, ext)
}

// capLength truncates name to 100 characters, preserving the extension.
func capLength(name, ext string) string {
	const maxLen = 100
	if len(name) <= maxLen {
		return name
	}
	stem := strings.TrimSuffix(name, ext)
	keep := maxLen - len(ext)
	if keep < 1 {
		return name[:maxLen]
	}
	if len(stem) > keep {
		stem = stem[:keep]
	}
	return stem + ext
}
