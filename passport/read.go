package passport

import (
	"context"
	"errors"
	"fmt"

	"fides.dev/dpp/credential"
	"fides.dev/dpp/ledger"
)

// ReadResult is a decoded passport at a specific version.
type ReadResult struct {
	Anchor         *ledger.Anchor
	Version        uint32
	ContentAddress string
	Token          string
	Claims         *credential.Claims
	Document       *Document
}

// Read fetches the anchor and the credential for a token. targetVersion 0
// means the current version; historical versions are resolved by walking the
// backward-linked chain embedded in each credential.
func (s *Service) Read(ctx context.Context, tokenID uint64, targetVersion uint32) (*ReadResult, error) {
	anchor, err := s.ledger.ReadPassport(ctx, tokenID)
	if errors.Is(err, ledger.ErrTokenNotFound) {
		return nil, wrapError(KindNotFound, RuleTokenNotFound, fmt.Sprintf("token %d is not anchored", tokenID), err)
	}
	if err != nil {
		return nil, wrapError(KindLedger, RuleLedgerRejected, "read anchor", err)
	}

	if targetVersion == 0 {
		targetVersion = anchor.Version
	}
	if targetVersion > anchor.Version {
		return nil, newError(KindNotFound, RuleVersionNotAvailable, fmt.Sprintf("version %d not available; current version is %d", targetVersion, anchor.Version))
	}

	address, token, err := s.resolveVersion(ctx, anchor, targetVersion)
	if err != nil {
		return nil, err
	}

	decoded, err := credential.Decode(token)
	if err != nil {
		return nil, wrapError(KindIntegrity, RuleCorruptDataset, "decode stored credential", err)
	}
	result := &ReadResult{
		Anchor:         anchor,
		Version:        targetVersion,
		ContentAddress: address,
		Token:          token,
		Claims:         decoded.Claims,
	}
	if decoded.Claims.VC != nil && len(decoded.Claims.VC.CredentialSubject) > 0 {
		doc, err := decodeSubject(decoded.Claims.VC.CredentialSubject)
		if err != nil {
			return nil, wrapError(KindIntegrity, RuleCorruptDataset, "decode passport document", err)
		}
		result.Document = doc
	}
	return result, nil
}

// resolveVersion walks previousDatasetUri links backward exactly
// (current - target) times. A missing or malformed link anywhere in the
// chain means the requested version is not available.
func (s *Service) resolveVersion(ctx context.Context, anchor *ledger.Anchor, targetVersion uint32) (string, string, error) {
	address := addressFromURI(anchor.DatasetURI)
	steps := int(anchor.Version - targetVersion)

	for {
		retrieved, err := s.dataset.RetrieveText(ctx, address)
		if err != nil {
			return "", "", wrapError(KindCollaborator, RuleStorageFailed, fmt.Sprintf("retrieve dataset %s", address), err)
		}
		token := string(retrieved.Data)
		if steps == 0 {
			return address, token, nil
		}

		previous, err := previousAddress(token)
		if err != nil {
			return "", "", wrapError(KindNotFound, RuleVersionNotAvailable, fmt.Sprintf("version %d not available", targetVersion), err)
		}
		address = previous
		steps--
	}
}

// previousAddress extracts the previous version's content address from a
// stored credential.
func previousAddress(token string) (string, error) {
	decoded, err := credential.Decode(token)
	if err != nil {
		return "", err
	}
	if decoded.Claims.VC == nil || len(decoded.Claims.VC.CredentialSubject) == 0 {
		return "", errors.New("credential carries no document")
	}
	doc, err := decodeSubject(decoded.Claims.VC.CredentialSubject)
	if err != nil {
		return "", err
	}
	if doc.ChainAnchor == nil || doc.ChainAnchor.PreviousDatasetURI == "" {
		return "", errors.New("version chain link missing")
	}
	address := addressFromURI(doc.ChainAnchor.PreviousDatasetURI)
	if address == "" {
		return "", errors.New("version chain link malformed")
	}
	return address, nil
}
