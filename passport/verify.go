package passport

import (
	"context"
	"errors"
	"fmt"

	"fides.dev/dpp/credential"
	"fides.dev/dpp/hashutil"
	"fides.dev/dpp/ledger"
)

// Report is the structured verification result. Each sub-check is reported
// independently so callers can diagnose which one failed; Valid is their
// conjunction. A revoked anchor short-circuits: no dataset is fetched and
// the sub-checks stay false.
type Report struct {
	TokenID      uint64
	AnchorStatus ledger.Status
	Revoked      bool

	SignatureVerified bool
	// SignaturePending is set when the issuer's DID document is not yet
	// published: the signature could not be checked, which is not the same
	// as having failed.
	SignaturePending bool
	HashMatches      bool
	IssuerMatches    bool
	SchemaChecked    bool
	SchemaValid      bool

	Valid bool

	Issuer       string
	IssuanceDate string
	Errors       []string
	Warnings     []string
}

// Verify checks a token's credential against its ledger anchor. Verification
// failures are reported inside the Report; a returned error means a
// collaborator could not be reached at all.
func (s *Service) Verify(ctx context.Context, tokenID uint64) (*Report, error) {
	anchor, err := s.ledger.ReadPassport(ctx, tokenID)
	if errors.Is(err, ledger.ErrTokenNotFound) {
		return nil, wrapError(KindNotFound, RuleTokenNotFound, fmt.Sprintf("token %d is not anchored", tokenID), err)
	}
	if err != nil {
		return nil, wrapError(KindLedger, RuleLedgerRejected, "read anchor", err)
	}

	report := &Report{TokenID: tokenID, AnchorStatus: anchor.Status}
	if anchor.Status == ledger.StatusRevoked {
		report.Revoked = true
		report.Errors = append(report.Errors, "passport is revoked on the ledger")
		return report, nil
	}

	address := addressFromURI(anchor.DatasetURI)
	retrieved, err := s.dataset.RetrieveText(ctx, address)
	if err != nil {
		return nil, wrapError(KindCollaborator, RuleStorageFailed, fmt.Sprintf("retrieve dataset %s", address), err)
	}
	token := string(retrieved.Data)

	report.HashMatches = hashutil.Digest(retrieved.Data) == anchor.PayloadHash
	if !report.HashMatches {
		report.Errors = append(report.Errors, "payload hash does not match the anchor")
	}

	sigResult, err := credential.Verify(ctx, token, s.dids)
	if err != nil {
		return nil, wrapError(KindCollaborator, RuleStorageFailed, "verify signature", err)
	}
	report.SignatureVerified = sigResult.Verified
	report.SignaturePending = sigResult.Pending
	report.Issuer = sigResult.Issuer
	report.IssuanceDate = sigResult.IssuanceDate
	report.Errors = append(report.Errors, sigResult.Errors...)
	report.Warnings = append(report.Warnings, sigResult.Warnings...)

	decoded, decodeErr := credential.Decode(token)
	var doc *Document
	if decodeErr == nil && decoded.Claims.VC != nil && len(decoded.Claims.VC.CredentialSubject) > 0 {
		doc, decodeErr = decodeSubject(decoded.Claims.VC.CredentialSubject)
	}
	if decodeErr != nil || doc == nil {
		report.Errors = append(report.Errors, "stored credential carries no decodable document")
		return report, nil
	}

	if doc.ChainAnchor != nil && ledger.SameAccount(doc.ChainAnchor.IssuerAccount, anchor.IssuerAccount) {
		report.IssuerMatches = true
	} else {
		report.Errors = append(report.Errors, "credential issuer account does not match the anchor")
	}

	if schema := decoded.Claims.VC.CredentialSchema; schema != nil && s.schemas != nil {
		report.SchemaChecked = true
		valid, violations, err := s.schemas.Validate(ctx, schema.ID, decoded.Claims.VC.CredentialSubject)
		if err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("schema check skipped: %v", err))
			report.SchemaChecked = false
		} else {
			report.SchemaValid = valid
			report.Errors = append(report.Errors, violations...)
		}
	}

	report.Valid = report.SignatureVerified && report.HashMatches && report.IssuerMatches &&
		(!report.SchemaChecked || report.SchemaValid)
	return report, nil
}
