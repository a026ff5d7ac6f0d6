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

// PolarClient reads the Polar funding feed.
type PolarClient struct {
	httpc *resty.Client
}

// NewPolarClient creates a client for the given Polar API endpoint.
func NewPolarClient(httpc *resty.Client, baseURL, token string) *PolarClient {
	httpc.SetBaseURL(baseURL)
	if token != "" {
		httpc.SetHeader("Authorization", fmt.Sprintf("Bearer %s", token))
	}
	return &PolarClient{httpc: httpc}
}

func (c *PolarClient) Name() string { return "polar" }

type polarPledge struct {
	ID     string `json:"id"`
	Issue  string `json:"issue_title"`
	Body   string `json:"issue_body"`
	Repo   string `json:"repository_url"`
	Amount struct {
		Amount   int64  `json:"amount"` // minor units
		Currency string `json:"currency"`
	} `json:"amount"`
	State       string  `json:"state"`
	Reference   string  `json:"external_reference"` // vulnerability id where supplied
	ScheduledAt *string `json:"scheduled_payout_at"`
	CreatedAt   string  `json:"created_at"`
}

type polarPledgeList struct {
	Items      []polarPledge `json:"items"`
	Pagination struct {
		TotalCount int `json:"total_count"`
	} `json:"pagination"`
}

// FetchBounties returns the fundable pledges on Polar.
func (c *PolarClient) FetchBounties(ctx context.Context) ([]model.Bounty, error) {
	var result polarPledgeList
	resp, err := c.httpc.R().
		SetContext(ctx).
		SetQueryParam("state", "created").
		SetResult(&result).
		Get("/v1/pledges")
	if err != nil {
		return nil, fmt.Errorf("fetching polar pledges: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fetching polar pledges: unexpected status %d", resp.StatusCode())
	}

	out := make([]model.Bounty, 0, len(result.Items))
	for _, item := range result.Items {
		out = append(out, c.toBounty(item))
	}
	return out, nil
}

// PayoutConfirmed reports whether Polar paid the pledge out.
func (c *PolarClient) PayoutConfirmed(ctx context.Context, issueID string) (bool, error) {
	var item polarPledge
	resp, err := c.httpc.R().
		SetContext(ctx).
		SetResult(&item).
		Get(fmt.Sprintf("/v1/pledges/%s", issueID))
	if err != nil {
		return false, fmt.Errorf("fetching polar pledge %s: %w", issueID, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return false, fmt.Errorf("fetching polar pledge %s: unexpected status %d", issueID, resp.StatusCode())
	}
	return item.State == "paid", nil
}

func (c *PolarClient) toBounty(item polarPledge) model.Bounty {
	b := model.Bounty{
		ID:              uuid.New(),
		IssueID:         item.ID,
		Platform:        c.Name(),
		RepositoryURL:   item.Repo,
		Title:           item.Issue,
		Description:     item.Body,
		Amount:          float64(item.Amount.Amount) / 100,
		Currency:        item.Amount.Currency,
		Status:          model.BountyOpen,
		VulnerabilityID: item.Reference,
		CreatedAt:       time.Now().UTC(),
	}
	if created, err := time.Parse(time.RFC3339, item.CreatedAt); err == nil {
		b.CreatedAt = created
	}
	if item.ScheduledAt != nil {
		if deadline, err := time.Parse(time.RFC3339, *item.ScheduledAt); err == nil {
			b.Deadline = &deadline
		}
	}
	return b
}
