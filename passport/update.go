package passport

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"fides.dev/dpp/credential"
	"fides.dev/dpp/hashutil"
	"fides.dev/dpp/ledger"
	"fides.dev/dpp/registry"
)

// UpdateResult reports a completed dataset update.
type UpdateResult struct {
	TokenID          uint64
	TxHash           string
	BlockNumber      uint64
	Version          uint32
	CredentialID     string
	ContentAddress   string
	GatewayURL       string
	PayloadHash      string
	VerificationLink string
}

// Update issues a new credential version for an anchored token and submits
// the dataset replacement. Granularity is carried over from the anchor, never
// re-derived from the input; the new document links back to the previous
// version by URI and payload hash.
func (s *Service) Update(ctx context.Context, tokenID uint64, input CreateInput, signer ed25519.PrivateKey) (*UpdateResult, error) {
	anchor, err := s.ledger.ReadPassport(ctx, tokenID)
	if errors.Is(err, ledger.ErrTokenNotFound) {
		return nil, wrapError(KindNotFound, RuleTokenNotFound, fmt.Sprintf("token %d is not anchored", tokenID), err)
	}
	if err != nil {
		return nil, wrapError(KindLedger, RuleLedgerRejected, "read anchor", err)
	}
	if anchor.Status == ledger.StatusRevoked {
		return nil, wrapError(KindLedger, RuleLedgerRejected, "passport is revoked", ledger.ErrRevoked)
	}
	if !ledger.SameAccount(anchor.IssuerAccount, input.Account) {
		return nil, newError(KindAuthorization, RuleAccountMismatch, fmt.Sprintf("account %q is not the anchoring issuer of token %d", input.Account, tokenID))
	}

	input.Granularity = string(anchor.Granularity)
	granularity, err := s.validate(input)
	if err != nil {
		return nil, err
	}
	issuerID, _, err := s.resolveIssuer(ctx, input)
	if err != nil {
		return nil, err
	}

	doc, key, err := s.buildDocument(input, granularity, issuerID, &ChainAnchor{
		Network:             s.network,
		IssuerAccount:       input.Account,
		Version:             anchor.Version + 1,
		PreviousDatasetURI:  anchor.DatasetURI,
		PreviousPayloadHash: hashHex(anchor.PayloadHash),
	})
	if err != nil {
		return nil, err
	}

	token, claims, err := s.issue(ctx, doc, issuerID, input.Manufacturer.Name, func(signingInput string) (string, error) {
		return credential.SignEdDSA(signingInput, signer)
	})
	if err != nil {
		return nil, err
	}

	upload, err := s.dataset.UploadText(ctx, token)
	if err != nil {
		return nil, wrapError(KindCollaborator, RuleStorageFailed, "upload credential", err)
	}

	payloadHash := hashutil.Digest([]byte(token))
	receipt, err := s.ledger.UpdateDataset(ctx, tokenID, upload.GatewayURL, payloadHash, s.datasetType, doc.SubjectHash(), input.Account)
	if err != nil {
		return nil, wrapError(KindLedger, RuleLedgerRejected, "update dataset", err)
	}
	if err := ledger.AwaitConfirmation(ctx, s.ledger, receipt.TxHash); err != nil {
		return nil, wrapError(KindLedger, RuleLedgerRejected, "confirm update", err)
	}

	s.index(ctx, registry.IndexEntry{TokenID: tokenID, ProductID: input.ProductID, IssuerDID: issuerID})

	link, err := s.verificationLink(key)
	if err != nil {
		return nil, err
	}
	return &UpdateResult{
		TokenID:          tokenID,
		TxHash:           receipt.TxHash,
		BlockNumber:      receipt.BlockNumber,
		Version:          anchor.Version + 1,
		CredentialID:     claims.ID,
		ContentAddress:   upload.ContentAddress,
		GatewayURL:       upload.GatewayURL,
		PayloadHash:      upload.ContentHash,
		VerificationLink: link,
	}, nil
}
