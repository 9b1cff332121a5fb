package linkset

import (
	"fmt"
	"html"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// Handler serves resolution over HTTP.
type Handler struct {
	Generator *Generator
}

// RegisterRoutes mounts the resolver endpoints on the router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/resolve/{identifier}", h.Resolve).Methods(http.MethodGet)
}

// Resolve handles GET /resolve/{identifier}. Unknown identifiers still yield
// a valid response: a minimal not-issued linkset for machine clients, a 404
// HTML page for browsers.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	q := r.URL.Query()

	req := Request{
		Identifier:   vars["identifier"],
		Granularity:  q.Get("granularity"),
		BatchNumber:  q.Get("batch"),
		SerialNumber: q.Get("serial"),
		Language:     NegotiateLanguage(r),
	}
	if raw := q.Get("tokenId"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			req.TokenID = id
		}
	}

	set, issued := h.Generator.Generate(r.Context(), req)

	switch NegotiateFormat(r) {
	case FormatHTML:
		if !issued {
			h.notIssuedPage(w, req.Identifier)
			return
		}
		h.passportPage(w, set, req.Identifier)
	default:
		body, err := Marshal(set)
		if err != nil {
			http.Error(w, "linkset encoding failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", MediaType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

func (h *Handler) notIssuedPage(w http.ResponseWriter, identifier string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html><head><title>No passport published</title></head>
<body><h1>No passport published</h1>
<p>No digital product passport has been published yet for <code>%s</code>.</p>
</body></html>
`, html.EscapeString(identifier))
}

func (h *Handler) passportPage(w http.ResponseWriter, set *Linkset, identifier string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html><head><title>Digital Product Passport</title></head>
<body><h1>Digital Product Passport</h1>
<p>Passport links for <code>%s</code>:</p>
<ul>
`, html.EscapeString(identifier))
	for _, obj := range set.Linkset {
		for _, link := range append(append([]Link{}, obj.DPP...), obj.Alternate...) {
			fmt.Fprintf(w, `<li><a href="%s">%s</a></li>
`, html.EscapeString(link.Href), html.EscapeString(firstNonEmpty(link.Title, link.Href)))
		}
	}
	fmt.Fprint(w, "</ul></body></html>\n")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
