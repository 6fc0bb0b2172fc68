package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Weights struct {
	Industry float64 `yaml:"industry"`
	Size     float64 `yaml:"size"`
	Region   float64 `yaml:"region"`
}

func (w Weights) Sum() float64 { return w.Industry + w.Size + w.Region }

// CategoryRule maps a lowercase pattern to a sub-score. Tables are ordered;
// the first rule whose pattern is a substring of the input wins.
type CategoryRule struct {
	Match string  `yaml:"match"`
	Score float64 `yaml:"score"`
}

// SizeBand scores an inclusive employee-count range.
type SizeBand struct {
	Min   int     `yaml:"min"`
	Max   int     `yaml:"max"`
	Score float64 `yaml:"score"`
}

type App struct {
	DataDir  string  `yaml:"data_dir"`
	MaxLeads int     `yaml:"max_leads"`
	MinScore float64 `yaml:"min_score"`
}

type Scoring struct {
	Weights         Weights        `yaml:"weights"`
	Industries      []CategoryRule `yaml:"industries"`
	IndustryDefault float64        `yaml:"industry_default"`
	SizeBands       []SizeBand     `yaml:"size_bands"`
	SizeDefault     float64        `yaml:"size_default"`
	Regions         []CategoryRule `yaml:"regions"`
	RegionDefault   float64        `yaml:"region_default"`
}

type Source struct {
	Apollo struct {
		BaseURL     string   `yaml:"base_url"`
		PerPage     int      `yaml:"per_page"`
		UseContacts bool     `yaml:"use_contacts"`
		JobTitles   []string `yaml:"job_titles"`
		SizeMin     int      `yaml:"size_min"`
		SizeMax     int      `yaml:"size_max"`
		Locations   []string `yaml:"locations"`
		EnrichOrgs  bool     `yaml:"enrich_orgs"`
	} `yaml:"apollo"`
	Cache struct {
		TTLHours int `yaml:"ttl_hours"`
	} `yaml:"cache"`
}

type Retry struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMS int `yaml:"base_delay_ms"`
	MaxDelayMS  int `yaml:"max_delay_ms"`
}

type Store struct {
	Airtable struct {
		BaseURL string `yaml:"base_url"`
		BaseID  string `yaml:"base_id"`
		Table   string `yaml:"table"`
	} `yaml:"airtable"`
	KeyField        string `yaml:"key_field"`
	WriteIntervalMS int    `yaml:"write_interval_ms"`
	Retry           Retry  `yaml:"retry"`
}

type Outreach struct {
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	DefaultSubject string  `yaml:"default_subject"`
	UseFallback    bool    `yaml:"use_fallback"`
	SenderName     string  `yaml:"sender_name"`
	SenderCompany  string  `yaml:"sender_company"`
}

type Mail struct {
	SMTPHost           string `yaml:"smtp_host"`
	SMTPPort           int    `yaml:"smtp_port"`
	From               string `yaml:"from"`
	SendDelayMS        int    `yaml:"send_delay_ms"`
	ResendCooldownDays int    `yaml:"resend_cooldown_days"`
}

type Inbox struct {
	Enabled      bool   `yaml:"enabled"`
	IMAPHost     string `yaml:"imap_host"`
	IMAPPort     int    `yaml:"imap_port"`
	Username     string `yaml:"username"`
	Mailbox      string `yaml:"mailbox"`
	LookbackDays int    `yaml:"lookback_days"`
}

type Enrich struct {
	Enabled        bool `yaml:"enabled"`
	TimeoutSeconds int  `yaml:"timeout_seconds"`
	Workers        int  `yaml:"workers"`
}

type Config struct {
	App      App      `yaml:"app"`
	Scoring  Scoring  `yaml:"scoring"`
	Source   Source   `yaml:"source"`
	Store    Store    `yaml:"store"`
	Outreach Outreach `yaml:"outreach"`
	Mail     Mail     `yaml:"mail"`
	Inbox    Inbox    `yaml:"inbox"`
	Enrich   Enrich   `yaml:"enrich"`
}

func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(b, &cfg)
	return cfg, err
}
