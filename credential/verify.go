package credential

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"fides.dev/dpp/did"
)

// Result is the outcome of verifying a credential's signature and issuer.
// Verification failures land in Errors; conditions that prevent checking
// without implying forgery (an unpublished DID) land in Warnings with
// Pending set.
type Result struct {
	Verified     bool
	Pending      bool
	Issuer       string
	IssuanceDate string
	Errors       []string
	Warnings     []string
}

func (r *Result) fail(format string, args ...any) *Result {
	r.Verified = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	return r
}

// Verify decodes the token, resolves the issuer's public key through the
// registry and checks the signature. Registry transport failures are the
// only returned errors; everything else is reported inside the Result.
func Verify(ctx context.Context, token string, registry did.Registry) (*Result, error) {
	result := &Result{}

	d, err := Decode(token)
	if err != nil {
		return result.fail("decode: %v", err), nil
	}
	if d.Claims.VC != nil {
		result.Issuer = d.Claims.VC.Issuer.ID
		result.IssuanceDate = d.Claims.VC.IssuanceDate
	}
	if result.Issuer == "" {
		result.Issuer = d.Claims.Issuer
	}
	if result.Issuer == "" {
		return result.fail("credential names no issuer"), nil
	}
	if d.Signature == nil {
		return result.fail("credential is not signed"), nil
	}

	identity, err := registry.GetIssuerIdentity(ctx, result.Issuer)
	if errors.Is(err, did.ErrNotPublished) {
		result.Pending = true
		result.Warnings = append(result.Warnings, "issuer DID document not yet published; signature not checked")
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credential: resolve issuer %q: %w", result.Issuer, err)
	}
	if identity == nil {
		return result.fail("issuer %q is not registered", result.Issuer), nil
	}
	if len(identity.PublicKey) != ed25519.PublicKeySize {
		return result.fail("issuer %q has no usable ed25519 key", result.Issuer), nil
	}

	if err := CheckSignature(token, ed25519.PublicKey(identity.PublicKey)); err != nil {
		return result.fail("signature: %v", err), nil
	}

	result.Verified = true
	return result, nil
}
