package linkset

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"fides.dev/dpp/hashutil"
	"fides.dev/dpp/ledger"
	"fides.dev/dpp/ledger/ledgertest"
	"fides.dev/dpp/registry"
	"fides.dev/dpp/subjectid"
)

const baseURL = "https://resolver.example"

func anchorToken(t *testing.T, chain *ledgertest.Ledger, subjectHash *[32]byte) uint64 {
	t.Helper()
	receipt, err := chain.RegisterPassport(context.Background(), ledger.Registration{
		DatasetURI:  "dpp://dataset/bafyexample",
		PayloadHash: hashutil.Digest([]byte("credential")),
		DatasetType: "dpp",
		Granularity:   subjectid.Item,
		SubjectIDHash: subjectHash,
	}, "0xaabbccddeeff00112233445566778899aabbccdd")
	if err != nil {
		t.Fatalf("RegisterPassport: %v", err)
	}
	return receipt.TokenID
}

func TestGenerateNotIssued(t *testing.T) {
	g := &Generator{BaseURL: baseURL}
	set, issued := g.Generate(context.Background(), Request{Identifier: "PROD-001"})
	if issued {
		t.Fatal("unknown identifier reported as issued")
	}

	obj := set.Linkset[0]
	if obj.Anchor != "urn:fides:product:PROD-001" {
		t.Fatalf("anchor = %q", obj.Anchor)
	}
	if len(obj.Self) != 1 || !strings.HasSuffix(obj.Self[0].Href, "?linkType=linkset") {
		t.Fatalf("self = %+v", obj.Self)
	}
	if obj.DPP != nil || obj.Alternate != nil {
		t.Fatalf("links present without a token: %+v", obj)
	}
	if obj.Status[0].Href != StatusNotIssued {
		t.Fatalf("status = %q", obj.Status[0].Href)
	}
	if obj.Granularity[0].Href != "urn:untp:granularity:unknown" {
		t.Fatalf("granularity = %q", obj.Granularity[0].Href)
	}
}

func TestGenerateEscapesIdentifierInSelfHref(t *testing.T) {
	g := &Generator{BaseURL: baseURL}
	set, _ := g.Generate(context.Background(), Request{Identifier: "PROD 001#rev/2"})

	href := set.Linkset[0].Self[0].Href
	if href != baseURL+"/resolve/PROD%20001%23rev%2F2?linkType=linkset" {
		t.Fatalf("self href = %q", href)
	}
}

func TestGenerateExplicitToken(t *testing.T) {
	chain := ledgertest.New()
	anchorToken(t, chain, nil)

	g := &Generator{Ledger: chain, BaseURL: baseURL}
	set, issued := g.Generate(context.Background(), Request{Identifier: "PROD-001", TokenID: 99})
	if !issued {
		t.Fatal("explicit token not honored")
	}

	obj := set.Linkset[0]
	if obj.Status[0].Href != StatusAvailable {
		t.Fatalf("status = %q", obj.Status[0].Href)
	}
	if len(obj.DPP) != 1 || !strings.Contains(obj.DPP[0].Href, "99") {
		t.Fatalf("untp:dpp = %+v", obj.DPP)
	}
	if len(obj.Alternate) != 1 {
		t.Fatalf("alternate = %+v", obj.Alternate)
	}
}

func TestGenerateDiscoveryPriority(t *testing.T) {
	chain := ledgertest.New()
	hash := subjectid.Hash("PROD-001#SN-1")
	ledgerToken := anchorToken(t, chain, &hash)

	reg := registry.NewMemory()
	regToken := anchorToken(t, chain, nil)
	if err := reg.IndexPassport(context.Background(), registry.IndexEntry{TokenID: regToken, ProductID: "PROD-001"}); err != nil {
		t.Fatalf("IndexPassport: %v", err)
	}

	g := &Generator{Registry: reg, Ledger: chain, BaseURL: baseURL}
	ctx := context.Background()

	t.Run("registry wins over ledger lookup", func(t *testing.T) {
		set, issued := g.Generate(ctx, Request{Identifier: "PROD-001", Granularity: "Item", SerialNumber: "SN-1"})
		if !issued {
			t.Fatal("not issued")
		}
		if !strings.Contains(set.Linkset[0].Alternate[0].Href, "/passports/2") {
			t.Fatalf("alternate = %+v", set.Linkset[0].Alternate)
		}
	})

	t.Run("ledger subject lookup as fallback", func(t *testing.T) {
		bare := &Generator{Ledger: chain, BaseURL: baseURL}
		set, issued := bare.Generate(ctx, Request{Identifier: "PROD-001", Granularity: "Item", SerialNumber: "SN-1"})
		if !issued {
			t.Fatal("ledger lookup did not find the token")
		}
		if !strings.Contains(set.Linkset[0].Alternate[0].Href, "/passports/1") {
			t.Fatalf("alternate = %+v, want token %d", set.Linkset[0].Alternate, ledgerToken)
		}
	})

	t.Run("failing registry degrades to ledger", func(t *testing.T) {
		reg.SetFailing(true)
		defer reg.SetFailing(false)
		_, issued := g.Generate(ctx, Request{Identifier: "PROD-001", Granularity: "Item", SerialNumber: "SN-1"})
		if !issued {
			t.Fatal("resolution failed with a failing registry")
		}
	})
}

func TestLanguageStamping(t *testing.T) {
	g := &Generator{BaseURL: baseURL}
	set, _ := g.Generate(context.Background(), Request{Identifier: "PROD-001", TokenID: 7, Language: "it"})

	obj := set.Linkset[0]
	if obj.Self[0].Hreflang != "it" || obj.Alternate[0].Hreflang != "it" {
		t.Fatalf("hreflang not stamped: %+v", obj)
	}

	// An already-set hreflang is never overwritten.
	set.Linkset[0].Self[0].Hreflang = "de"
	StampLanguage(set, "it")
	if set.Linkset[0].Self[0].Hreflang != "de" {
		t.Fatal("existing hreflang overwritten")
	}
}

func TestAnchorNormalization(t *testing.T) {
	if got := NormalizeAnchor("urn:epc:id:sgtin:1234"); got != "urn:epc:id:sgtin:1234" {
		t.Fatalf("URN rewritten: %q", got)
	}
	if got := NormalizeAnchor("PROD-001"); got != "urn:fides:product:PROD-001" {
		t.Fatalf("plain id not wrapped: %q", got)
	}
}

func newTestServer(g *Generator) *mux.Router {
	r := mux.NewRouter()
	(&Handler{Generator: g}).RegisterRoutes(r)
	return r
}

func TestHandlerContentNegotiation(t *testing.T) {
	chain := ledgertest.New()
	anchorToken(t, chain, nil)
	router := newTestServer(&Generator{Ledger: chain, BaseURL: baseURL})

	t.Run("linkType query wins", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/resolve/PROD-001?linkType=linkset&tokenId=1", nil)
		req.Header.Set("Accept", "text/html")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != MediaType {
			t.Fatalf("status %d, content type %q", rec.Code, rec.Header().Get("Content-Type"))
		}
		var set Linkset
		if err := json.Unmarshal(rec.Body.Bytes(), &set); err != nil {
			t.Fatalf("response not a linkset: %v", err)
		}
	})

	t.Run("accept json selects linkset", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/resolve/PROD-001", nil)
		req.Header.Set("Accept", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Header().Get("Content-Type") != MediaType {
			t.Fatalf("content type %q", rec.Header().Get("Content-Type"))
		}
	})

	t.Run("browser gets 404 page when not issued", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/resolve/UNKNOWN-1", nil)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "No passport published") {
			t.Fatalf("body = %q", rec.Body.String())
		}
	})

	t.Run("machine client never gets an error for unknown ids", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/resolve/UNKNOWN-1", nil)
		req.Header.Set("Accept", MediaType)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var set Linkset
		if err := json.Unmarshal(rec.Body.Bytes(), &set); err != nil {
			t.Fatalf("response not a linkset: %v", err)
		}
		if set.Linkset[0].Status[0].Href != StatusNotIssued {
			t.Fatalf("status = %q", set.Linkset[0].Status[0].Href)
		}
	})

	t.Run("language query stamps hreflang", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/resolve/PROD-001?tokenId=1&language=it&linkType=linkset", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		var set Linkset
		if err := json.Unmarshal(rec.Body.Bytes(), &set); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		obj := set.Linkset[0]
		if obj.Self[0].Hreflang != "it" || obj.Alternate[0].Hreflang != "it" {
			t.Fatalf("hreflang not stamped: %+v", obj)
		}
	})
}

func TestNegotiateLanguage(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/resolve/x?language=it", nil)
	req.Header.Set("Accept-Language", "fr-FR, en;q=0.8")
	if got := NegotiateLanguage(req); got != "it" {
		t.Fatalf("query did not win: %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/resolve/x", nil)
	req.Header.Set("Accept-Language", "fr-FR, en;q=0.8")
	if got := NegotiateLanguage(req); got != "fr-FR" {
		t.Fatalf("first Accept-Language tag not used: %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/resolve/x", nil)
	if got := NegotiateLanguage(req); got != "" {
		t.Fatalf("no preference = %q", got)
	}
}
