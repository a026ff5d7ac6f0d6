package bounty

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/patchwatch/patchwatch/internal/model"
)

// AlgoraClient reads the Algora bounty feed.
type AlgoraClient struct {
	httpc *resty.Client
}

// NewAlgoraClient creates a client for the given Algora API endpoint.
func NewAlgoraClient(httpc *resty.Client, baseURL, token string) *AlgoraClient {
	httpc.SetBaseURL(baseURL)
	if token != "" {
		httpc.SetHeader("Authorization", fmt.Sprintf("Bearer %s", token))
	}
	return &AlgoraClient{httpc: httpc}
}

func (c *AlgoraClient) Name() string { return "algora" }

type algoraBounty struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	RepoURL     string  `json:"repo_url"`
	AmountCents int64   `json:"amount_cents"`
	Currency    string  `json:"currency"`
	Status      string  `json:"status"`
	CVEID       string  `json:"cve_id"`
	ExpiresAt   *string `json:"expires_at"`
	CreatedAt   string  `json:"created_at"`
}

type algoraBountyList struct {
	Items []algoraBounty `json:"items"`
}

// FetchBounties returns the open bounties on Algora.
func (c *AlgoraClient) FetchBounties(ctx context.Context) ([]model.Bounty, error) {
	var result algoraBountyList
	resp, err := c.httpc.R().
		SetContext(ctx).
		SetQueryParam("status", "open").
		SetResult(&result).
		Get("/bounties")
	if err != nil {
		return nil, fmt.Errorf("fetching algora bounties: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fetching algora bounties: unexpected status %d", resp.StatusCode())
	}

	out := make([]model.Bounty, 0, len(result.Items))
	for _, item := range result.Items {
		out = append(out, c.toBounty(item))
	}
	return out, nil
}

// PayoutConfirmed reports whether Algora marked the bounty paid.
func (c *AlgoraClient) PayoutConfirmed(ctx context.Context, issueID string) (bool, error) {
	var item algoraBounty
	resp, err := c.httpc.R().
		SetContext(ctx).
		SetResult(&item).
		Get(fmt.Sprintf("/bounties/%s", issueID))
	if err != nil {
		return false, fmt.Errorf("fetching algora bounty %s: %w", issueID, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return false, fmt.Errorf("fetching algora bounty %s: unexpected status %d", issueID, resp.StatusCode())
	}
	return item.Status == "paid", nil
}

func (c *AlgoraClient) toBounty(item algoraBounty) model.Bounty {
	b := model.Bounty{
		ID:              uuid.New(),
		IssueID:         item.ID,
		Platform:        c.Name(),
		RepositoryURL:   item.RepoURL,
		Title:           item.Title,
		Description:     item.Description,
		Amount:          float64(item.AmountCents) / 100,
		Currency:        item.Currency,
		Status:          model.BountyOpen,
		VulnerabilityID: item.CVEID,
		CreatedAt:       time.Now().UTC(),
	}
	if created, err := time.Parse(time.RFC3339, item.CreatedAt); err == nil {
		b.CreatedAt = created
	}
	if item.ExpiresAt != nil {
		if deadline, err := time.Parse(time.RFC3339, *item.ExpiresAt); err == nil {
			b.Deadline = &deadline
		}
	}
	return b
}
