package linkset

import (
	"net/http"
	"strings"
)

// Format is the negotiated response representation.
type Format int

const (
	FormatLinkset Format = iota
	FormatHTML
)

// NegotiateFormat picks the response format. An explicit linkType or format
// query value wins; otherwise an Accept header naming a linkset or JSON
// media type selects linkset output, and HTML is preferred for browsers.
func NegotiateFormat(r *http.Request) Format {
	q := r.URL.Query()
	explicit := q.Get("linkType")
	if explicit == "" {
		explicit = q.Get("format")
	}
	switch strings.ToLower(explicit) {
	case "linkset", "json", MediaType:
		return FormatLinkset
	case "html", "text/html":
		return FormatHTML
	}

	accept := strings.ToLower(r.Header.Get("Accept"))
	if strings.Contains(accept, "linkset") || strings.Contains(accept, "json") {
		return FormatLinkset
	}
	if strings.Contains(accept, "text/html") {
		return FormatHTML
	}
	return FormatLinkset
}

// NegotiateLanguage picks the response language: a language or lang query
// parameter over the first Accept-Language tag. "" means no preference.
func NegotiateLanguage(r *http.Request) string {
	q := r.URL.Query()
	if lang := q.Get("language"); lang != "" {
		return lang
	}
	if lang := q.Get("lang"); lang != "" {
		return lang
	}

	header := r.Header.Get("Accept-Language")
	if header == "" {
		return ""
	}
	first := strings.TrimSpace(strings.Split(header, ",")[0])
	if i := strings.Index(first, ";"); i >= 0 {
		first = first[:i]
	}
	if first == "*" {
		return ""
	}
	return first
}
