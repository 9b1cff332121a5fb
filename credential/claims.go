// Package credential builds, signs, decodes and verifies the JWT envelope
// that carries a passport document, and validates documents against JSON
// schemas.
//
// Decoding never verifies; the two-phase issuance flow decodes unsigned and
// partially-signed tokens. Verification is a separate step that resolves the
// issuer's key through the identity registry and always returns a structured
// result, never an error, except for transport failures talking to the
// registry.
package credential

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/google/uuid"
)

// Context and type values stamped on every issued credential.
const (
	ContextCredentialsV1 = "https://www.w3.org/2018/credentials/v1"
	ContextDPP           = "https://fides.dev/contexts/dpp/v1"

	TypeVerifiableCredential = "VerifiableCredential"
	TypeProductPassport      = "DigitalProductPassport"
)

// Issuer identifies the credential issuer inside the vc claim.
type Issuer struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// SchemaRef points at the JSON schema the credential subject conforms to.
type SchemaRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// VC is the "vc" claim: the W3C-shaped body wrapping the passport document.
// CredentialSubject carries the passport document plus its chain-anchor
// record; Status carries the revocation status-list entry when one was
// assigned.
type VC struct {
	Context           []string        `json:"@context"`
	ID                string          `json:"id"`
	Type              []string        `json:"type"`
	Issuer            Issuer          `json:"issuer"`
	IssuanceDate      string          `json:"issuanceDate"`
	CredentialSubject json.RawMessage `json:"credentialSubject"`
	CredentialSchema  *SchemaRef      `json:"credentialSchema,omitempty"`
	CredentialStatus  json.RawMessage `json:"credentialStatus,omitempty"`
}

// Claims is the JWT payload: registered claims plus the vc claim.
type Claims struct {
	*jwt.Claims
	VC *VC `json:"vc"`
}

// NewClaims assembles the claims for a fresh credential. The jti is a random
// urn:uuid; iss mirrors the issuer DID, sub the subject identifier inside the
// document.
func NewClaims(issuer Issuer, subject string, credentialSubject json.RawMessage, schema *SchemaRef, status json.RawMessage, now time.Time) (*Claims, error) {
	if issuer.ID == "" {
		return nil, fmt.Errorf("credential: issuer id is required")
	}
	if len(credentialSubject) == 0 {
		return nil, fmt.Errorf("credential: credential subject is required")
	}

	id := "urn:uuid:" + uuid.NewString()
	now = now.UTC()
	return &Claims{
		Claims: &jwt.Claims{
			Issuer:    issuer.ID,
			Subject:   subject,
			ID:        id,
			NotBefore: jwt.NewNumericDate(now),
		},
		VC: &VC{
			Context:           []string{ContextCredentialsV1, ContextDPP},
			ID:                id,
			Type:              []string{TypeVerifiableCredential, TypeProductPassport},
			Issuer:            issuer,
			IssuanceDate:      now.Format(time.RFC3339),
			CredentialSubject: credentialSubject,
			CredentialSchema:  schema,
			CredentialStatus:  status,
		},
	}, nil
}
