// Package enrich fetches a short homepage blurb per company so the outreach
// prompt has something concrete to reference. Everything here is
// best-effort: a prospect that cannot be enriched keeps an empty blurb and
// the pipeline moves on.
package enrich

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"bdr-engine/internal/config"
	"bdr-engine/internal/domain"
)

const maxBlurbLen = 300

// aggregator and directory sites that outrank small company homepages
var domainBlocklist = []string{
	"linkedin.com",
	"crunchbase.com",
	"wikipedia.org",
	"facebook.com",
	"twitter.com",
	"x.com",
	"instagram.com",
	"youtube.com",
	"glassdoor.com",
	"indeed.com",
	"bloomberg.com",
	"zoominfo.com",
	"apollo.io",
	"pitchbook.com",
	"g2.com",
	"yelp.com",
}

type Enricher struct {
	cfg        config.Enrich
	httpc      *http.Client
	hosts      *hostLimiter
	searchBase string
}

func New(cfg config.Enrich) *Enricher {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Enricher{
		cfg:        cfg,
		httpc:      &http.Client{Timeout: timeout},
		hosts:      newHostLimiter(1, 1),
		searchBase: "https://duckduckgo.com/html/?q=",
	}
}

// EnrichAll fills CompanyBlurb (and a discovered CompanyDomain) on a copy
// of the batch. Worker count comes from config; failures only log.
func (e *Enricher) EnrichAll(ctx context.Context, ps []domain.Prospect) []domain.Prospect {
	out := make([]domain.Prospect, len(ps))
	copy(out, ps)

	workers := e.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range out {
		i := i
		g.Go(func() error {
			e.enrichOne(gctx, &out[i])
			return nil // best-effort: never cancel siblings
		})
	}
	_ = g.Wait()

	var filled int
	for i := range out {
		if out[i].CompanyBlurb != "" {
			filled++
		}
	}
	log.Printf("[enrich] blurbs=%d/%d", filled, len(out))
	return out
}

func (e *Enricher) enrichOne(ctx context.Context, p *domain.Prospect) {
	dom := strings.TrimSpace(p.CompanyDomain)
	if dom == "" {
		found, err := e.discoverDomain(ctx, p.Company)
		if err != nil || found == "" {
			if err != nil {
				log.Printf("[enrich] domain lookup failed company=%q: %v", p.Company, err)
			}
			return
		}
		dom = found
		p.CompanyDomain = found
	}

	blurb, err := e.blurbFor(ctx, homepageURL(dom))
	if err != nil {
		log.Printf("[enrich] homepage fetch failed domain=%q: %v", dom, err)
		return
	}
	p.CompanyBlurb = blurb
}

// discoverDomain finds the company homepage via a DuckDuckGo HTML search,
// skipping aggregator results. Empty result means not found, not failure.
func (e *Enricher) discoverDomain(ctx context.Context, company string) (string, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return "", nil
	}

	query := fmt.Sprintf("%s official website", sanitizeCompanyForSearch(company))
	u := e.searchBase + url.QueryEscape(query)

	if err := e.hosts.WaitURL(ctx, u); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := e.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("search: %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}

	var best string
	doc.Find("a.result__a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, ok := a.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return true
		}

		host := hostFromURL(decodeDDGRedirect(href))
		if host == "" {
			return true
		}

		host = strings.ToLower(strings.TrimPrefix(host, "www."))
		if isBlockedDomain(host) {
			return true
		}

		best = host
		return false // stop at first good domain
	})
	return best, nil
}

// blurbFor fetches one page and condenses <title> plus meta description
// into a short plain-text blurb.
func (e *Enricher) blurbFor(ctx context.Context, pageURL string) (string, error) {
	if err := e.hosts.WaitURL(ctx, pageURL); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := e.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("homepage: %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}
	return blurbFromDoc(doc), nil
}

func blurbFromDoc(doc *goquery.Document) string {
	title := squish(doc.Find("title").First().Text())
	desc := doc.Find(`meta[name="description"]`).AttrOr("content", "")
	if desc == "" {
		desc = doc.Find(`meta[property="og:description"]`).AttrOr("content", "")
	}
	desc = squish(desc)

	blurb := title
	switch {
	case blurb == "":
		blurb = desc
	case desc != "":
		blurb = title + ". " + desc
	}
	return truncate(blurb, maxBlurbLen)
}

func homepageURL(dom string) string {
	if strings.Contains(dom, "://") {
		return dom
	}
	return "https://" + dom
}

func decodeDDGRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	// DDG sometimes uses /l/?uddg=<urlencoded>
	if uddg := u.Query().Get("uddg"); uddg != "" {
		if dec, err := url.QueryUnescape(uddg); err == nil && dec != "" {
			return dec
		}
	}
	return href
}

func hostFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

func isBlockedDomain(host string) bool {
	for _, b := range domainBlocklist {
		if host == b || strings.HasSuffix(host, "."+b) {
			return true
		}
	}
	return false
}

func sanitizeCompanyForSearch(s string) string {
	repls := []string{
		", Inc.", "", " Inc.", "", " Inc", "",
		", LLC", "", " LLC", "",
		", Ltd.", "", " Ltd.", "", " Ltd", "",
	}
	s = strings.NewReplacer(repls...).Replace(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), " ")
}

func squish(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
