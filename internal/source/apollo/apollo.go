// Package apollo fetches prospect records from an Apollo-style people API.
package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"bdr-engine/internal/cache"
	"bdr-engine/internal/config"
	"bdr-engine/internal/domain"
	"bdr-engine/internal/retry"
)

type Client struct {
	cfg    config.Source
	apiKey string
	httpc  *http.Client
	pages  *rate.Limiter // paces page and org requests
	policy retry.Policy
	cache  *cache.Cache
	force  bool
}

func New(cfg config.Source, apiKey string, c *cache.Cache, policy retry.Policy, forceRefresh bool) *Client {
	return &Client{
		cfg:    cfg,
		apiKey: apiKey,
		httpc:  &http.Client{Timeout: 30 * time.Second},
		pages:  rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		policy: policy,
		cache:  c,
		force:  forceRefresh,
	}
}

func (c *Client) Name() string { return "apollo" }

// query is the cache signature payload. max is excluded on purpose: a fresh
// batch is reusable for any smaller run, sliced to size.
type query struct {
	UseContacts bool     `json:"use_contacts"`
	Titles      []string `json:"titles"`
	SizeMin     int      `json:"size_min"`
	SizeMax     int      `json:"size_max"`
	Locations   []string `json:"locations"`
	PerPage     int      `json:"per_page"`
}

func (c *Client) signature() (string, error) {
	a := c.cfg.Apollo
	return cache.Signature(query{
		UseContacts: a.UseContacts,
		Titles:      a.JobTitles,
		SizeMin:     a.SizeMin,
		SizeMax:     a.SizeMax,
		Locations:   a.Locations,
		PerPage:     a.PerPage,
	})
}

func (c *Client) Fetch(ctx context.Context, max int) ([]domain.Prospect, error) {
	if max <= 0 {
		return nil, nil
	}
	sig, err := c.signature()
	if err != nil {
		return nil, err
	}

	if !c.force && c.cache != nil {
		var cached []domain.Prospect
		if c.cache.Read(sig, &cached) {
			log.Printf("[apollo] using cached batch leads=%d", len(cached))
			if len(cached) > max {
				cached = cached[:max]
			}
			return cached, nil
		}
	}

	perPage := c.cfg.Apollo.PerPage
	if perPage > max {
		perPage = max
	}

	var all []domain.Prospect
	page := 1
	for len(all) < max {
		if err := c.pages.Wait(ctx); err != nil {
			return nil, err
		}
		var resp searchResponse
		err := c.policy.Do(ctx, "apollo search", func() error {
			return c.search(ctx, page, perPage, &resp)
		})
		if err != nil {
			return nil, fmt.Errorf("lead source unavailable: %w", err)
		}

		items := resp.People
		if c.cfg.Apollo.UseContacts {
			items = resp.Contacts
		}
		if len(items) == 0 {
			break
		}
		log.Printf("[apollo] page=%d results=%d", page, len(items))

		for _, person := range items {
			if len(all) >= max {
				break
			}
			all = append(all, c.toProspect(ctx, person))
		}

		if resp.Pagination.TotalPages > 0 && page >= resp.Pagination.TotalPages {
			break
		}
		page++
	}

	if c.cache != nil && len(all) > 0 {
		if err := c.cache.Write(sig, all, len(all)); err != nil {
			log.Printf("[apollo] cache write failed: %v", err)
		}
	}
	return all, nil
}

type organization struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	EmployeeCount int    `json:"employee_count"`
	Industry      string `json:"industry"`
	Location      string `json:"location"`
	Domain        string `json:"domain"`
}

type person struct {
	ID           string       `json:"id"`
	FirstName    string       `json:"first_name"`
	LastName     string       `json:"last_name"`
	Email        string       `json:"email"`
	Title        string       `json:"title"`
	LinkedInURL  string       `json:"linkedin_url"`
	Organization organization `json:"organization"`
}

type searchResponse struct {
	People     []person `json:"people"`
	Contacts   []person `json:"contacts"`
	Pagination struct {
		Page       int `json:"page"`
		TotalPages int `json:"total_pages"`
	} `json:"pagination"`
}

func (c *Client) search(ctx context.Context, page, perPage int, out *searchResponse) error {
	a := c.cfg.Apollo
	path := "/people/search"
	body := map[string]any{
		"page":     page,
		"per_page": perPage,
	}
	if c.cfg.Apollo.UseContacts {
		path = "/contacts/search"
	} else {
		if len(a.JobTitles) > 0 {
			body["person_titles"] = a.JobTitles
		}
		if len(a.Locations) > 0 {
			body["person_locations"] = a.Locations
		}
		if a.SizeMax > 0 {
			body["organization_num_employees_ranges"] = []string{fmt.Sprintf("%d,%d", a.SizeMin, a.SizeMax)}
		}
	}
	return c.doJSON(ctx, http.MethodPost, path, body, out)
}

func (c *Client) fetchOrg(ctx context.Context, id string) (organization, error) {
	var resp struct {
		Organization organization `json:"organization"`
	}
	err := c.policy.Do(ctx, "apollo org", func() error {
		return c.doJSON(ctx, http.MethodGet, "/organizations/"+id, nil, &resp)
	})
	return resp.Organization, err
}

// toProspect maps one search result onto the pipeline's record shape. When
// the embedded organization is missing size or industry and org enrichment
// is on, a follow-up lookup fills the gaps best-effort.
func (c *Client) toProspect(ctx context.Context, p person) domain.Prospect {
	org := p.Organization
	if c.cfg.Apollo.EnrichOrgs && org.ID != "" && (org.EmployeeCount == 0 || org.Industry == "") {
		if err := c.pages.Wait(ctx); err == nil {
			if full, err := c.fetchOrg(ctx, org.ID); err != nil {
				log.Printf("[apollo] org lookup failed id=%q: %v", org.ID, err)
			} else {
				if org.EmployeeCount == 0 {
					org.EmployeeCount = full.EmployeeCount
				}
				if org.Industry == "" {
					org.Industry = full.Industry
				}
				if org.Location == "" {
					org.Location = full.Location
				}
				if org.Domain == "" {
					org.Domain = full.Domain
				}
			}
		}
	}

	return domain.Prospect{
		FirstName:     p.FirstName,
		LastName:      p.LastName,
		Email:         strings.TrimSpace(strings.ToLower(p.Email)),
		Title:         p.Title,
		Company:       org.Name,
		CompanyDomain: org.Domain,
		CompanySize:   org.EmployeeCount,
		Industry:      org.Industry,
		Region:        deriveRegion(org.Location),
		Location:      org.Location,
		LinkedInURL:   p.LinkedInURL,
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.Apollo.BaseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return retry.MarkTransient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("apollo %s %s: %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
		if retry.RetryableStatus(resp.StatusCode) {
			return retry.MarkTransient(err)
		}
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
