// Package linkset implements the RFC 9264 identity resolver: it maps a
// product or entity identifier to a set of typed links, with content and
// language negotiation.
//
// Resolution never errors on unknown identifiers. A machine client always
// gets a valid linkset, minimal with an untp:status of not-issued; a browser
// gets a 404 HTML page instead.
package linkset

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"fides.dev/dpp/ledger"
	"fides.dev/dpp/registry"
	"fides.dev/dpp/subjectid"
)

// Link is one typed link in a linkset context.
type Link struct {
	Href     string `json:"href"`
	Type     string `json:"type,omitempty"`
	Title    string `json:"title,omitempty"`
	Hreflang string `json:"hreflang,omitempty"`
}

// Object is one linkset context object keyed by anchor.
type Object struct {
	Anchor      string `json:"anchor"`
	Self        []Link `json:"self,omitempty"`
	Alternate   []Link `json:"alternate,omitempty"`
	DPP         []Link `json:"untp:dpp,omitempty"`
	DTE         []Link `json:"untp:dte,omitempty"`
	Granularity []Link `json:"untp:granularity,omitempty"`
	Status      []Link `json:"untp:status,omitempty"`
}

// Linkset is the document serialized as application/linkset+json.
type Linkset struct {
	Linkset []Object `json:"linkset"`
}

// Status URNs for untp:status.
const (
	StatusAvailable = "urn:untp:status:available"
	StatusNotIssued = "urn:untp:status:not-issued"
)

// MediaType is the linkset wire format's media type.
const MediaType = "application/linkset+json"

// Request describes one resolution.
type Request struct {
	Identifier string
	// TokenID pins a concrete token; 0 means discover one.
	TokenID uint64

	Granularity  string
	BatchNumber  string
	SerialNumber string

	// Language, when set, is stamped as hreflang on links lacking one.
	Language string
}

// Generator builds linksets from the lookup collaborators. Registry and
// Ledger are both optional; either being nil (or failing) just removes one
// discovery path.
type Generator struct {
	Registry registry.Anagrafica
	Ledger   ledger.Ledger

	// BaseURL is the resolver's own externally visible base, without a
	// trailing slash.
	BaseURL string

	Log *slog.Logger
}

func (g *Generator) log() *slog.Logger {
	if g.Log != nil {
		return g.Log
	}
	return slog.Default()
}

// Generate resolves the request into a linkset and reports whether a
// concrete passport version was found.
func (g *Generator) Generate(ctx context.Context, req Request) (*Linkset, bool) {
	tokenID, issued := g.discoverToken(ctx, req)

	obj := Object{
		Anchor: NormalizeAnchor(req.Identifier),
		Self: []Link{{
			Href: g.BaseURL + "/resolve/" + url.PathEscape(req.Identifier) + "?linkType=linkset",
			Type: MediaType,
		}},
	}

	if issued {
		passportHref := g.passportHref(ctx, tokenID)
		obj.DPP = []Link{{
			Href:  passportHref,
			Type:  "application/vc+jwt",
			Title: "Digital Product Passport",
		}}
		obj.Alternate = []Link{{
			Href: g.BaseURL + "/passports/" + strconv.FormatUint(tokenID, 10),
			Type: "text/html",
		}}
		obj.Status = []Link{{Href: StatusAvailable}}
	} else {
		obj.Status = []Link{{Href: StatusNotIssued}}
	}

	granularity := "unknown"
	if g, err := subjectid.ParseGranularity(req.Granularity); err == nil && req.Granularity != "" {
		granularity = string(g)
	}
	obj.Granularity = []Link{{Href: "urn:untp:granularity:" + strings.ToLower(granularity)}}

	set := &Linkset{Linkset: []Object{obj}}
	if req.Language != "" {
		StampLanguage(set, req.Language)
	}
	return set, issued
}

// discoverToken finds a concrete token for the request: an explicit token id
// wins, then the registry, then the ledger's subject-hash lookup. Every path
// is optional and a failing collaborator only logs a warning.
func (g *Generator) discoverToken(ctx context.Context, req Request) (uint64, bool) {
	if req.TokenID != 0 {
		return req.TokenID, true
	}

	if g.Registry != nil {
		ids, err := g.Registry.GetDppsForProduct(ctx, req.Identifier)
		if err != nil {
			g.log().Warn("registry lookup skipped", slog.String("identifier", req.Identifier), slog.String("error", err.Error()))
		} else if len(ids) > 0 {
			return ids[len(ids)-1], true
		}
	}

	if g.Ledger != nil && req.Granularity != "" {
		granularity, err := subjectid.ParseGranularity(req.Granularity)
		if err == nil {
			if hash, ok := subjectid.HashFor(req.Identifier, granularity, req.BatchNumber, req.SerialNumber); ok {
				id, found, err := g.Ledger.FindTokenBySubjectID(ctx, hash)
				if err != nil {
					g.log().Warn("ledger subject lookup skipped", slog.String("identifier", req.Identifier), slog.String("error", err.Error()))
				} else if found {
					return id, true
				}
			}
		}
	}
	return 0, false
}

// passportHref points at the token's credential. The ledger's dataset URI is
// preferred; the resolver's own endpoint is the fallback.
func (g *Generator) passportHref(ctx context.Context, tokenID uint64) string {
	if g.Ledger != nil {
		if anchor, err := g.Ledger.ReadPassport(ctx, tokenID); err == nil {
			return anchor.DatasetURI
		}
	}
	return g.BaseURL + "/passports/" + strconv.FormatUint(tokenID, 10) + "/credential"
}

// NormalizeAnchor wraps a plain identifier in a URN; already-URN inputs pass
// through unchanged.
func NormalizeAnchor(identifier string) string {
	if strings.HasPrefix(identifier, "urn:") {
		return identifier
	}
	return "urn:fides:product:" + identifier
}

// StampLanguage sets hreflang on every link lacking one. The anchor itself
// is a URN, not a link, and is never touched.
func StampLanguage(set *Linkset, language string) {
	for i := range set.Linkset {
		obj := &set.Linkset[i]
		for _, links := range [][]Link{obj.Self, obj.Alternate, obj.DPP, obj.DTE, obj.Granularity, obj.Status} {
			for j := range links {
				if links[j].Hreflang == "" {
					links[j].Hreflang = language
				}
			}
		}
	}
}

// Marshal renders the linkset document.
func Marshal(set *Linkset) ([]byte, error) {
	return json.MarshalIndent(set, "", "  ")
}
