package ledger

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// AwaitConfirmation waits for a transaction to finalize, retrying transient
// collaborator failures with exponential backoff. The caller bounds the total
// wait through ctx.
func AwaitConfirmation(ctx context.Context, l Ledger, txHash string) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = 0 // ctx is the only deadline

	op := func() error {
		return l.WaitForTransaction(ctx, txHash)
	}
	return backoff.Retry(op, backoff.WithContext(policy, ctx))
}
