package config

// Default returns the built-in configuration. EnsureUserConfig writes it to
// the data dir on first run so users have a real file to edit.
func Default() Config {
	var cfg Config

	cfg.App.DataDir = "data"
	cfg.App.MaxLeads = 10
	cfg.App.MinScore = 0.6

	cfg.Scoring.Weights = Weights{Industry: 0.4, Size: 0.3, Region: 0.3}
	cfg.Scoring.Industries = []CategoryRule{
		{Match: "technology", Score: 1.0},
		{Match: "software", Score: 1.0},
		{Match: "saas", Score: 1.0},
		{Match: "cybersecurity", Score: 0.9},
		{Match: "fintech", Score: 0.8},
		{Match: "healthcare", Score: 0.7},
		{Match: "e-commerce", Score: 0.7},
		{Match: "ecommerce", Score: 0.7},
		{Match: "manufacturing", Score: 0.6},
		{Match: "consulting", Score: 0.5},
		{Match: "retail", Score: 0.4},
		{Match: "education", Score: 0.4},
		{Match: "non-profit", Score: 0.3},
	}
	cfg.Scoring.IndustryDefault = 0.3
	cfg.Scoring.SizeBands = []SizeBand{
		{Min: 100, Max: 300, Score: 1.0},
		{Min: 50, Max: 99, Score: 0.8},
		{Min: 301, Max: 500, Score: 0.7},
	}
	cfg.Scoring.SizeDefault = 0.3
	cfg.Scoring.Regions = []CategoryRule{
		{Match: "north america", Score: 1.0},
		{Match: "europe", Score: 0.9},
	}
	cfg.Scoring.RegionDefault = 0.5

	cfg.Source.Apollo.BaseURL = "https://api.apollo.io/v1"
	cfg.Source.Apollo.PerPage = 25
	cfg.Source.Apollo.JobTitles = []string{"CTO", "Head of Security", "Chief Technology Officer", "VP of Engineering"}
	cfg.Source.Apollo.SizeMin = 50
	cfg.Source.Apollo.SizeMax = 500
	cfg.Source.Apollo.Locations = []string{"North America", "Europe"}
	cfg.Source.Apollo.EnrichOrgs = true
	cfg.Source.Cache.TTLHours = 24

	cfg.Store.Airtable.BaseURL = "https://api.airtable.com/v0"
	cfg.Store.Airtable.Table = "Leads"
	cfg.Store.KeyField = "Email"
	cfg.Store.WriteIntervalMS = 250
	cfg.Store.Retry = Retry{MaxAttempts: 3, BaseDelayMS: 500, MaxDelayMS: 8000}

	cfg.Outreach.BaseURL = "https://api.openai.com/v1"
	cfg.Outreach.Model = "gpt-4o-mini"
	cfg.Outreach.MaxTokens = 500
	cfg.Outreach.Temperature = 0.7
	cfg.Outreach.DefaultSubject = "Quick question about your tech stack"
	cfg.Outreach.UseFallback = true

	cfg.Mail.SMTPPort = 587
	cfg.Mail.SendDelayMS = 2000
	cfg.Mail.ResendCooldownDays = 30

	cfg.Inbox.IMAPPort = 993
	cfg.Inbox.Mailbox = "INBOX"
	cfg.Inbox.LookbackDays = 7

	cfg.Enrich.Enabled = true
	cfg.Enrich.TimeoutSeconds = 10
	cfg.Enrich.Workers = 4

	return cfg
}
