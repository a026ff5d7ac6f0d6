package bounty

import (
	"context"

	"github.com/patchwatch/patchwatch/internal/model"
)

// Platform is one bounty feed. Implementations perform raw transport only;
// the poller wraps every call in the resilience gateway.
type Platform interface {
	Name() string
	// FetchBounties returns the currently open bounties on the platform.
	FetchBounties(ctx context.Context) ([]model.Bounty, error)
	// PayoutConfirmed reports whether the platform has paid out the issue.
	PayoutConfirmed(ctx context.Context, issueID string) (bool, error)
}
