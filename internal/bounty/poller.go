package bounty

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/patchwatch/patchwatch/internal/model"
	"github.com/patchwatch/patchwatch/internal/resilience"
	"github.com/patchwatch/patchwatch/internal/store"
)

// Poller feeds the bounty store from the configured platforms, confirms
// payouts for claimed bounties, and expires overdue ones.
type Poller struct {
	platforms  []Platform
	bounties   store.BountyStore
	reconciler *Reconciler
	gateway    *resilience.Gateway
	minAmount  float64
	logger     hclog.Logger
}

// NewPoller creates a Poller. Bounties below minAmount are ignored entirely.
func NewPoller(platforms []Platform, bounties store.BountyStore, reconciler *Reconciler,
	gateway *resilience.Gateway, minAmount float64, logger hclog.Logger) *Poller {
	return &Poller{
		platforms:  platforms,
		bounties:   bounties,
		reconciler: reconciler,
		gateway:    gateway,
		minAmount:  minAmount,
		logger:     logger,
	}
}

// Run polls on the given interval until cancelled.
func (p *Poller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		p.Poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll runs one feed, payout, and expiry round.
func (p *Poller) Poll(ctx context.Context) {
	for _, platform := range p.platforms {
		p.pollPlatform(ctx, platform)
	}
	p.confirmPayouts(ctx)
	p.reconciler.ExpireOverdue(time.Now())
}

func (p *Poller) pollPlatform(ctx context.Context, platform Platform) {
	service := "bounty:" + platform.Name()
	fetched, err := resilience.Call(ctx, p.gateway, service, func(callCtx context.Context) ([]model.Bounty, error) {
		return platform.FetchBounties(callCtx)
	})
	if err != nil {
		p.logger.Warn("bounty feed unavailable", "platform", platform.Name(), "error", err)
		return
	}

	added := 0
	for _, b := range fetched {
		if b.Amount < p.minAmount {
			continue
		}
		if p.bounties.Add(b) {
			added++
			p.logger.Info("bounty tracked",
				"platform", b.Platform, "issue", b.IssueID, "repo", b.RepositoryURL,
				"amount", b.Amount, "currency", b.Currency)
		}
	}
	p.logger.Debug("bounty feed polled", "platform", platform.Name(), "fetched", len(fetched), "new", added)
}

func (p *Poller) confirmPayouts(ctx context.Context) {
	byName := make(map[string]Platform, len(p.platforms))
	for _, platform := range p.platforms {
		byName[platform.Name()] = platform
	}

	for _, b := range p.bounties.List() {
		if b.Status != model.BountyClaimed {
			continue
		}
		platform, ok := byName[b.Platform]
		if !ok {
			continue
		}

		bounty := b
		paid, err := resilience.Call(ctx, p.gateway, "bounty:"+platform.Name(), func(callCtx context.Context) (bool, error) {
			return platform.PayoutConfirmed(callCtx, bounty.IssueID)
		})
		if err != nil {
			p.logger.Debug("payout check failed", "bounty", b.ID, "error", err)
			continue
		}
		if !paid {
			continue
		}
		if err := p.reconciler.ConfirmPayout(b.Platform, b.IssueID); err != nil {
			p.logger.Warn("payout confirmation failed", "bounty", b.ID, "error", err)
		}
	}
}
