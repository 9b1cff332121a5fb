package passport

import (
	"context"
	"errors"
	"fmt"
	"io"

	"fides.dev/dpp/ledger"
	"fides.dev/dpp/storage/bundle"
)

// Export writes the complete dataset history of a token as a deterministic
// evidence bundle: every anchored credential version, labeled v1..vN, plus a
// manifest naming the token and its canonical subject.
func (s *Service) Export(ctx context.Context, tokenID uint64, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	history, err := s.ledger.GetVersionHistory(ctx, tokenID)
	if errors.Is(err, ledger.ErrTokenNotFound) {
		return wrapError(KindNotFound, RuleTokenNotFound, fmt.Sprintf("token %d is not anchored", tokenID), err)
	}
	if err != nil {
		return wrapError(KindLedger, RuleLedgerRejected, "read version history", err)
	}

	addresses := make([]string, 0, len(history))
	names := make(map[string]string, len(history))
	for _, entry := range history {
		address := addressFromURI(entry.DatasetURI)
		if address == "" {
			return newError(KindIntegrity, RuleCorruptDataset, fmt.Sprintf("version %d has no resolvable dataset address", entry.Version))
		}
		addresses = append(addresses, address)
		names[fmt.Sprintf("v%d", entry.Version)] = address
	}

	opts := bundle.ExportOptions{TokenID: tokenID, Names: names}
	// The subject annotation is best effort; a bundle of a corrupt dataset is
	// still worth having.
	if current, err := s.Read(ctx, tokenID, 0); err == nil && current.Document != nil {
		opts.Subject = current.Document.CanonicalSubjectID()
	}

	if err := bundle.Export(w, s.dataset.CAS(), addresses, opts); err != nil {
		return wrapError(KindCollaborator, RuleStorageFailed, "export dataset bundle", err)
	}
	return nil
}

// Import stores every dataset from an evidence bundle into the configured
// storage and returns the imported content addresses. Anchors are not
// recreated; the datasets become retrievable for tokens that reference them.
func (s *Service) Import(ctx context.Context, r io.Reader) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	imported, err := bundle.Import(r, s.dataset.CAS(), bundle.ImportOptions{})
	if err != nil {
		return nil, wrapError(KindCollaborator, RuleStorageFailed, "import dataset bundle", err)
	}
	return imported, nil
}
