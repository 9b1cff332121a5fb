package passport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fides.dev/dpp/credential"
	"fides.dev/dpp/ledger"
)

// RevokeResult reports a completed revocation. StatusListUpdated is false
// when no status list is configured or its bookkeeping failed; the ledger
// revocation stands either way.
type RevokeResult struct {
	TokenID           uint64
	TxHash            string
	BlockNumber       uint64
	StatusListUpdated bool
}

// Revoke submits the ledger revocation, which is authoritative, then flips
// the credential's status-list bit best-effort.
func (s *Service) Revoke(ctx context.Context, tokenID uint64, reason, account string) (*RevokeResult, error) {
	// The dataset URI is read before revoking; the status-list bookkeeping
	// needs the stored credential's issuer and id afterwards.
	anchor, err := s.ledger.ReadPassport(ctx, tokenID)
	if errors.Is(err, ledger.ErrTokenNotFound) {
		return nil, wrapError(KindNotFound, RuleTokenNotFound, fmt.Sprintf("token %d is not anchored", tokenID), err)
	}
	if err != nil {
		return nil, wrapError(KindLedger, RuleLedgerRejected, "read anchor", err)
	}

	receipt, err := s.ledger.RevokePassport(ctx, tokenID, reason, account)
	if errors.Is(err, ledger.ErrUnauthorized) {
		return nil, wrapError(KindAuthorization, RuleAccountUnauthorized, fmt.Sprintf("account %q is not the anchoring issuer of token %d", account, tokenID), err)
	}
	if err != nil {
		return nil, wrapError(KindLedger, RuleLedgerRejected, "revoke passport", err)
	}
	if err := ledger.AwaitConfirmation(ctx, s.ledger, receipt.TxHash); err != nil {
		return nil, wrapError(KindLedger, RuleLedgerRejected, "confirm revocation", err)
	}

	result := &RevokeResult{TokenID: tokenID, TxHash: receipt.TxHash, BlockNumber: receipt.BlockNumber}
	if s.status != nil {
		if err := s.revokeStatusBit(ctx, anchor); err != nil {
			s.log.Warn("status list not updated after ledger revocation",
				slog.Uint64("token", tokenID),
				slog.String("error", err.Error()))
		} else {
			result.StatusListUpdated = true
		}
	}
	return result, nil
}

func (s *Service) revokeStatusBit(ctx context.Context, anchor *ledger.Anchor) error {
	retrieved, err := s.dataset.RetrieveText(ctx, addressFromURI(anchor.DatasetURI))
	if err != nil {
		return fmt.Errorf("retrieve credential: %w", err)
	}
	decoded, err := credential.Decode(string(retrieved.Data))
	if err != nil {
		return fmt.Errorf("decode credential: %w", err)
	}
	issuer := decoded.Claims.Issuer
	if decoded.Claims.VC != nil && decoded.Claims.VC.Issuer.ID != "" {
		issuer = decoded.Claims.VC.Issuer.ID
	}
	return s.status.Revoke(ctx, issuer, decoded.Claims.ID)
}
