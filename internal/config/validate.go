package config

import (
	"fmt"
	"math"
	"strings"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

const weightTolerance = 1e-6

// NormalizeAndValidate fills zero-value knobs with defaults and returns a
// normalized copy plus everything wrong with it. Callers refuse to start a
// run while Errors is non-empty.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	out := cfg
	var res Validation
	def := Default()

	trimList := func(xs []string) []string {
		seen := map[string]bool{}
		var ys []string
		for _, x := range xs {
			x = strings.TrimSpace(x)
			if x == "" {
				continue
			}
			key := strings.ToLower(x)
			if seen[key] {
				continue
			}
			seen[key] = true
			ys = append(ys, x)
		}
		return ys
	}

	// ---- app ----
	if out.App.MaxLeads < 0 {
		res.addErr("app.max_leads must be >= 0")
	}
	if out.App.MaxLeads == 0 {
		out.App.MaxLeads = def.App.MaxLeads
	}
	if out.App.MinScore < 0 || out.App.MinScore > 1 {
		res.addErr("app.min_score must be in [0,1], got %v", out.App.MinScore)
	}
	if strings.TrimSpace(out.App.DataDir) == "" {
		out.App.DataDir = def.App.DataDir
	}

	// ---- scoring ----
	w := out.Scoring.Weights
	if w.Industry < 0 || w.Size < 0 || w.Region < 0 {
		res.addErr("scoring.weights must all be >= 0 (industry=%v size=%v region=%v)", w.Industry, w.Size, w.Region)
	}
	if math.Abs(w.Sum()-1.0) > weightTolerance {
		res.addErr("scoring.weights must sum to 1.0, got %v", w.Sum())
	}
	checkRules := func(name string, rules []CategoryRule) {
		for i, r := range rules {
			if strings.TrimSpace(r.Match) == "" {
				res.addErr("scoring.%s[%d].match is required", name, i)
			}
			if r.Score < 0 || r.Score > 1 {
				res.addErr("scoring.%s[%d].score must be in [0,1], got %v", name, i, r.Score)
			}
		}
	}
	checkRules("industries", out.Scoring.Industries)
	checkRules("regions", out.Scoring.Regions)
	for i, b := range out.Scoring.SizeBands {
		if b.Min > b.Max {
			res.addErr("scoring.size_bands[%d]: min %d > max %d", i, b.Min, b.Max)
		}
		if b.Score < 0 || b.Score > 1 {
			res.addErr("scoring.size_bands[%d].score must be in [0,1], got %v", i, b.Score)
		}
	}
	checkDefault := func(name string, v float64) {
		if v < 0 || v > 1 {
			res.addErr("scoring.%s must be in [0,1], got %v", name, v)
		}
	}
	checkDefault("industry_default", out.Scoring.IndustryDefault)
	checkDefault("size_default", out.Scoring.SizeDefault)
	checkDefault("region_default", out.Scoring.RegionDefault)
	if len(out.Scoring.Industries) == 0 {
		res.addWarn("scoring.industries is empty; every industry will score the default %v", out.Scoring.IndustryDefault)
	}
	if len(out.Scoring.SizeBands) == 0 {
		res.addWarn("scoring.size_bands is empty; every company size will score the default %v", out.Scoring.SizeDefault)
	}

	// ---- source ----
	out.Source.Apollo.JobTitles = trimList(out.Source.Apollo.JobTitles)
	out.Source.Apollo.Locations = trimList(out.Source.Apollo.Locations)
	if len(out.Source.Apollo.JobTitles) == 0 {
		res.addWarn("source.apollo.job_titles is empty; the search will not be title-filtered")
	}
	if out.Source.Apollo.PerPage <= 0 {
		out.Source.Apollo.PerPage = def.Source.Apollo.PerPage
	}
	if out.Source.Apollo.PerPage > 100 {
		res.addWarn("source.apollo.per_page %d exceeds the provider cap of 100", out.Source.Apollo.PerPage)
	}
	if out.Source.Apollo.SizeMin < 0 || out.Source.Apollo.SizeMax < 0 {
		res.addErr("source.apollo size range must be >= 0")
	}
	if out.Source.Apollo.SizeMax > 0 && out.Source.Apollo.SizeMin > out.Source.Apollo.SizeMax {
		res.addErr("source.apollo.size_min %d > size_max %d", out.Source.Apollo.SizeMin, out.Source.Apollo.SizeMax)
	}
	if out.Source.Cache.TTLHours < 0 {
		res.addErr("source.cache.ttl_hours must be >= 0")
	}
	if out.Source.Cache.TTLHours == 0 {
		out.Source.Cache.TTLHours = def.Source.Cache.TTLHours
	}

	// ---- store ----
	if strings.TrimSpace(out.Store.Airtable.BaseURL) == "" {
		out.Store.Airtable.BaseURL = def.Store.Airtable.BaseURL
	}
	if strings.TrimSpace(out.Store.Airtable.Table) == "" {
		out.Store.Airtable.Table = def.Store.Airtable.Table
	}
	if strings.TrimSpace(out.Store.KeyField) == "" {
		out.Store.KeyField = def.Store.KeyField
	}
	if out.Store.WriteIntervalMS < 0 {
		res.addErr("store.write_interval_ms must be >= 0")
	}
	if out.Store.WriteIntervalMS == 0 {
		out.Store.WriteIntervalMS = def.Store.WriteIntervalMS
	}
	if out.Store.WriteIntervalMS < 100 {
		res.addWarn("store.write_interval_ms %d is very low and may trip the store's write quota", out.Store.WriteIntervalMS)
	}
	if out.Store.Retry.MaxAttempts < 0 || out.Store.Retry.BaseDelayMS < 0 || out.Store.Retry.MaxDelayMS < 0 {
		res.addErr("store.retry values must be >= 0")
	}
	if out.Store.Retry.MaxAttempts == 0 {
		out.Store.Retry.MaxAttempts = def.Store.Retry.MaxAttempts
	}
	if out.Store.Retry.BaseDelayMS == 0 {
		out.Store.Retry.BaseDelayMS = def.Store.Retry.BaseDelayMS
	}
	if out.Store.Retry.MaxDelayMS == 0 {
		out.Store.Retry.MaxDelayMS = def.Store.Retry.MaxDelayMS
	}

	// ---- outreach ----
	if strings.TrimSpace(out.Outreach.BaseURL) == "" {
		out.Outreach.BaseURL = def.Outreach.BaseURL
	}
	if strings.TrimSpace(out.Outreach.Model) == "" {
		out.Outreach.Model = def.Outreach.Model
	}
	if out.Outreach.MaxTokens < 0 {
		res.addErr("outreach.max_tokens must be >= 0")
	}
	if out.Outreach.MaxTokens == 0 {
		out.Outreach.MaxTokens = def.Outreach.MaxTokens
	}
	if out.Outreach.Temperature < 0 || out.Outreach.Temperature > 2 {
		res.addErr("outreach.temperature must be in [0,2], got %v", out.Outreach.Temperature)
	}
	if strings.TrimSpace(out.Outreach.DefaultSubject) == "" {
		out.Outreach.DefaultSubject = def.Outreach.DefaultSubject
	}

	// ---- mail ----
	if out.Mail.SMTPPort == 0 {
		out.Mail.SMTPPort = def.Mail.SMTPPort
	}
	if out.Mail.SMTPPort < 0 || out.Mail.SMTPPort > 65535 {
		res.addErr("mail.smtp_port must be 1..65535")
	}
	if out.Mail.SendDelayMS < 0 {
		res.addErr("mail.send_delay_ms must be >= 0")
	}
	if out.Mail.SendDelayMS == 0 {
		out.Mail.SendDelayMS = def.Mail.SendDelayMS
	}
	if out.Mail.ResendCooldownDays < 0 {
		res.addErr("mail.resend_cooldown_days must be >= 0")
	}

	// ---- inbox ----
	if out.Inbox.Enabled {
		if strings.TrimSpace(out.Inbox.IMAPHost) == "" {
			res.addErr("inbox.imap_host is required when inbox.enabled=true")
		}
		if strings.TrimSpace(out.Inbox.Username) == "" {
			res.addErr("inbox.username is required when inbox.enabled=true")
		}
	}
	if out.Inbox.IMAPPort == 0 {
		out.Inbox.IMAPPort = def.Inbox.IMAPPort
	}
	if strings.TrimSpace(out.Inbox.Mailbox) == "" {
		out.Inbox.Mailbox = def.Inbox.Mailbox
	}
	if out.Inbox.LookbackDays <= 0 {
		out.Inbox.LookbackDays = def.Inbox.LookbackDays
	}

	// ---- enrich ----
	if out.Enrich.TimeoutSeconds <= 0 {
		out.Enrich.TimeoutSeconds = def.Enrich.TimeoutSeconds
	}
	if out.Enrich.Workers <= 0 {
		out.Enrich.Workers = def.Enrich.Workers
	}

	return out, res
}
