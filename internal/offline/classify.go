package offline

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// ResourceClass selects which caching policy and which store apply to a
// request. The zero value is ClassUnhandled: traffic the worker passes
// through untouched.
type ResourceClass int

const (
	ClassUnhandled ResourceClass = iota
	ClassStatic
	ClassAPI
	ClassImage
	ClassNavigation
)

func (c ResourceClass) String() string {
	switch c {
	case ClassStatic:
		return "static"
	case ClassAPI:
		return "api"
	case ClassImage:
		return "image"
	case ClassNavigation:
		return "navigation"
	default:
		return "unhandled"
	}
}

var staticExts = map[string]bool{
	".js":    true,
	".mjs":   true,
	".css":   true,
	".woff":  true,
	".woff2": true,
	".ttf":   true,
}

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".avif": true,
}

// Classifier maps a resolved request to its resource class. It is pure:
// compiled once from config, then read-only.
type Classifier struct {
	staticPrefix string
	appManifest  string
	apiPrefixes  []string
	dataHosts    []glob.Glob
	iconPrefix   string
}

func newClassifier(cfg Config) *Classifier {
	return &Classifier{
		staticPrefix: cfg.Classifier.StaticPrefix,
		appManifest:  cfg.Classifier.AppManifest,
		apiPrefixes:  cfg.Classifier.APIPrefixes,
		dataHosts:    cfg.Classifier.dataHostGlobs,
		iconPrefix:   cfg.Classifier.IconPrefix,
	}
}

// Classify resolves the class for one request. Only GET is classified;
// everything else is unhandled. Precedence is fixed: static, then api,
// then image, then navigation - first match wins for every input.
func (c *Classifier) Classify(method string, target *url.URL, header http.Header) ResourceClass {
	if method != http.MethodGet {
		return ClassUnhandled
	}

	p := target.Path
	ext := strings.ToLower(path.Ext(p))

	if strings.HasPrefix(p, c.staticPrefix) || staticExts[ext] || p == c.appManifest {
		return ClassStatic
	}

	for _, prefix := range c.apiPrefixes {
		if strings.HasPrefix(p, prefix) {
			return ClassAPI
		}
	}
	if c.matchesDataHost(target.Host) {
		return ClassAPI
	}

	if imageExts[ext] || strings.HasPrefix(p, c.iconPrefix) {
		return ClassImage
	}

	if header.Get("Sec-Fetch-Mode") == "navigate" ||
		strings.Contains(header.Get("Accept"), "text/html") {
		return ClassNavigation
	}

	return ClassUnhandled
}

func (c *Classifier) matchesDataHost(host string) bool {
	host = strings.ToLower(host)
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	for _, g := range c.dataHosts {
		if g.Match(host) {
			return true
		}
	}
	return false
}
