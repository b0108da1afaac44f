package backfill

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Inclusist/job-monitor-sub000/internal/errs"
	"github.com/Inclusist/job-monitor-sub000/internal/model"
)

const (
	adzunaBaseURL  = "https://api.adzuna.com/v1/api/jobs"
	adzunaPageSize = 50
	adzunaMaxPages = 3 // max 150 results per combination
	httpTimeout    = 15 * time.Second
)

// AdzunaProvider fetches job postings from the Adzuna public API. With empty
// credentials Fetch returns (nil, nil) so a deployment without Adzuna keys
// simply skips this source.
type AdzunaProvider struct {
	appID   string
	appKey  string
	country string // "de", "gb", "us", …
	client  *http.Client
	logger  *zap.Logger
}

func NewAdzunaProvider(appID, appKey, country string, logger *zap.Logger) *AdzunaProvider {
	return &AdzunaProvider{
		appID:   appID,
		appKey:  appKey,
		country: country,
		client:  &http.Client{Timeout: httpTimeout},
		logger:  logger,
	}
}

func (p *AdzunaProvider) Name() string { return "adzuna" }

type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
}

type adzunaResult struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Company      struct {
		DisplayName string `json:"display_name"`
	} `json:"company"`
	Location struct {
		DisplayName string `json:"display_name"`
	} `json:"location"`
	RedirectURL  string `json:"redirect_url"`
	ContractTime string `json:"contract_time"`
	ContractType string `json:"contract_type"`
}

// Fetch retrieves postings for the combination's keyword and location,
// paging until exhausted or adzunaMaxPages is reached.
func (p *AdzunaProvider) Fetch(ctx context.Context, combo model.BackfillCombination) ([]*model.JobPosting, error) {
	if p.appID == "" || p.appKey == "" {
		p.logger.Debug("adzuna credentials not set, skipping source")
		return nil, nil
	}

	var jobs []*model.JobPosting
	for page := 1; page <= adzunaMaxPages; page++ {
		batch, err := p.fetchPage(ctx, combo, page)
		if err != nil {
			if len(jobs) > 0 {
				// keep what earlier pages delivered
				p.logger.Warn("adzuna paging aborted",
					zap.Int("page", page), zap.Error(err))
				return jobs, nil
			}
			return nil, err
		}
		jobs = append(jobs, batch...)
		if len(batch) < adzunaPageSize {
			break
		}
	}
	return jobs, nil
}

func (p *AdzunaProvider) fetchPage(ctx context.Context, combo model.BackfillCombination, page int) ([]*model.JobPosting, error) {
	endpoint := fmt.Sprintf("%s/%s/search/%d", adzunaBaseURL, p.country, page)

	params := url.Values{}
	params.Set("app_id", p.appID)
	params.Set("app_key", p.appKey)
	params.Set("results_per_page", strconv.Itoa(adzunaPageSize))
	params.Set("what", combo.TitleKeyword)
	params.Set("where", combo.Location)
	params.Set("content-type", "application/json")
	params.Set("sort_by", "date")
	if combo.EmploymentType == "full_time" || combo.EmploymentType == "part_time" {
		params.Set(combo.EmploymentType, "1")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errs.Transient("adzuna search", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Transient("adzuna search", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errs.Transient("adzuna search", fmt.Errorf("rate limited: %s", body))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("adzuna returned %d: %s", resp.StatusCode, body)
	}

	var apiResp adzunaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("adzuna response: %w", err)
	}

	jobs := make([]*model.JobPosting, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		jobs = append(jobs, &model.JobPosting{
			ID:             uuid.New(),
			ExternalID:     r.ID,
			SourceURL:      r.RedirectURL,
			Source:         p.Name(),
			Title:          r.Title,
			Company:        r.Company.DisplayName,
			Location:       r.Location.DisplayName,
			Description:    r.Description,
			EmploymentType: r.ContractTime,
		})
	}
	return jobs, nil
}
