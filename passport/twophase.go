package passport

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"fides.dev/dpp/credential"
	"fides.dev/dpp/hashutil"
	"fides.dev/dpp/ledger"
)

// Prepared is returned by Prepare. SigningInput is the exact byte string the
// caller must sign; the verification key stays server-side in the session
// until finalize succeeds.
type Prepared struct {
	SessionID    string
	SigningInput string
	Document     *Document
	ExpiresAt    string
}

// Finalized carries the uploaded credential and the ledger-registration
// parameters. The caller submits the registration itself; transaction-signing
// keys stay client-side in this flow.
type Finalized struct {
	Token            string
	CredentialID     string
	ContentAddress   string
	GatewayURL       string
	PayloadHash      string
	VerificationLink string

	Registration ledger.Registration
	Account      string
}

// Prepare validates the input, resolves the issuer, builds the unsigned
// credential and stores a single-use session. The returned signing input is
// what the caller signs out-of-band.
func (s *Service) Prepare(ctx context.Context, input CreateInput) (*Prepared, error) {
	granularity, err := s.validate(input)
	if err != nil {
		return nil, err
	}
	issuerID, identity, err := s.resolveIssuer(ctx, input)
	if err != nil {
		return nil, err
	}

	doc, key, err := s.buildDocument(input, granularity, issuerID, &ChainAnchor{
		Network:       s.network,
		IssuerAccount: input.Account,
		Version:       1,
	})
	if err != nil {
		return nil, err
	}

	claims, err := s.buildClaims(ctx, doc, issuerID, input.Manufacturer.Name)
	if err != nil {
		return nil, err
	}
	unsigned, err := credential.Build(claims)
	if err != nil {
		return nil, wrapError(KindInternal, RuleInternal, "build credential", err)
	}

	now := s.now()
	session := &Session{
		ID:              newSessionID(),
		Input:           input,
		Document:        doc,
		Claims:          claims,
		SigningInput:    unsigned.SigningInput,
		IssuerDID:       issuerID,
		IssuerPublicKey: input.IssuerPublicKey,
		VerificationKey: key,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.sessionTTL),
	}
	if identity != nil {
		session.Managed = identity.Managed
		if len(identity.PublicKey) == ed25519.PublicKeySize {
			session.IssuerPublicKey = identity.PublicKey
		}
	}
	s.sessions.Put(session)

	return &Prepared{
		SessionID:    session.ID,
		SigningInput: session.SigningInput,
		Document:     doc,
		ExpiresAt:    session.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}, nil
}

// Finalize consumes the session, attaches or produces the signature, uploads
// the credential and returns the registration parameters. The session is
// deleted whether or not finalize succeeds past the fetch.
func (s *Service) Finalize(ctx context.Context, sessionID string, signature []byte, issuerAccount string) (*Finalized, error) {
	session, ok := s.sessions.Take(sessionID, s.now())
	if !ok {
		return nil, newError(KindNotFound, RuleSessionGone, "prepared data not found or expired; start over")
	}
	if !ledger.SameAccount(session.Input.Account, issuerAccount) {
		return nil, newError(KindAuthorization, RuleAccountMismatch, fmt.Sprintf("account %q does not match the prepared session", issuerAccount))
	}

	var token string
	if session.Managed {
		// Managed identity: the key material is decrypted only for this call.
		seed, err := s.dids.GetDecryptedSigningKey(ctx, session.IssuerDID)
		if err != nil {
			return nil, wrapError(KindCollaborator, RuleStorageFailed, "decrypt managed signing key", err)
		}
		priv, err := signingKey(seed)
		if err != nil {
			return nil, wrapError(KindInternal, RuleInternal, "managed signing key", err)
		}
		token, err = credential.SignEdDSA(session.SigningInput, priv)
		if err != nil {
			return nil, wrapError(KindInternal, RuleInternal, "sign credential", err)
		}
	} else {
		if len(signature) == 0 {
			return nil, newError(KindValidation, RuleNoSignature, "a signature is required to finalize this session")
		}
		var err error
		token, err = credential.Attach(session.SigningInput, signature)
		if err != nil {
			return nil, wrapError(KindValidation, RuleBadSignature, "attach signature", err)
		}
		if len(session.IssuerPublicKey) == ed25519.PublicKeySize {
			if err := credential.CheckSignature(token, ed25519.PublicKey(session.IssuerPublicKey)); err != nil {
				return nil, wrapError(KindAuthorization, RuleBadSignature, "signature does not verify against the issuer key", err)
			}
		}
	}

	upload, err := s.dataset.UploadText(ctx, token)
	if err != nil {
		return nil, wrapError(KindCollaborator, RuleStorageFailed, "upload credential", err)
	}

	link, err := s.verificationLink(session.VerificationKey)
	if err != nil {
		return nil, err
	}
	return &Finalized{
		Token:            token,
		CredentialID:     session.Claims.ID,
		ContentAddress:   upload.ContentAddress,
		GatewayURL:       upload.GatewayURL,
		PayloadHash:      upload.ContentHash,
		VerificationLink: link,
		Registration: ledger.Registration{
			DatasetURI:    upload.GatewayURL,
			PayloadHash:   hashutil.Digest([]byte(token)),
			DatasetType:   s.datasetType,
			Granularity:   session.Document.Granularity,
			SubjectIDHash: session.Document.SubjectHash(),
		},
		Account: session.Input.Account,
	}, nil
}

// signingKey accepts either a 32-byte seed or a full 64-byte private key.
func signingKey(material []byte) (ed25519.PrivateKey, error) {
	switch len(material) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(material), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(material), nil
	default:
		return nil, fmt.Errorf("key material must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(material))
	}
}
