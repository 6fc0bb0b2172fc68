// Command bdr runs the outreach pipeline: fetch leads, score and rank them,
// sync them to the tabular store, generate personalized messages, and send
// them. Side modes drain the queued messages (-send-only), sweep the inbox
// for replies and bounces (-check-replies), and manage the lead cache.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bdr-engine/internal/cache"
	"bdr-engine/internal/config"
	"bdr-engine/internal/enrich"
	"bdr-engine/internal/inbox"
	"bdr-engine/internal/ledger"
	"bdr-engine/internal/mail"
	"bdr-engine/internal/outreach"
	"bdr-engine/internal/pipeline"
	"bdr-engine/internal/rank"
	"bdr-engine/internal/retry"
	"bdr-engine/internal/secrets"
	"bdr-engine/internal/source"
	"bdr-engine/internal/source/apollo"
	"bdr-engine/internal/store"
	"bdr-engine/internal/store/airtable"
)

func main() {
	var (
		maxLeads     = flag.Int("max-leads", 0, "max leads to fetch (0 = config default)")
		minScore     = flag.Float64("min-score", -1, "minimum score to keep (negative = config default)")
		preview      = flag.Bool("preview", false, "compute and print everything, write and send nothing")
		noEmail      = flag.Bool("no-email", false, "run the pipeline but leave messages queued in the store")
		demo         = flag.Bool("demo", false, "use the built-in demo batch instead of the lead API")
		forceRefresh = flag.Bool("force-refresh", false, "ignore the lead cache and fetch fresh")
		cacheStatus  = flag.Bool("cache-status", false, "print the lead cache state and exit")
		clearCache   = flag.Bool("clear-cache", false, "delete the lead cache and exit")
		sendOnly     = flag.Bool("send-only", false, "send messages previously queued in the store and exit")
		checkReplies = flag.Bool("check-replies", false, "sweep the inbox for replies and bounces and exit")
		dataDir      = flag.String("data-dir", "", "data directory (default $BDR_DATA_DIR, then ./data)")
		cfgPath      = flag.String("config", "", "config file (default <data-dir>/config.yml, written on first run)")
		setSecret    = flag.String("set-secret", "", "store a credential in the OS keyring and exit; value read from stdin ("+strings.Join(secrets.Names(), "|")+")")
		verbose      = flag.Bool("verbose", false, "chattier logging, including the previous run")
	)
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	if *verbose {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	}

	if *setSecret != "" {
		if err := readSecretFromStdin(*setSecret); err != nil {
			log.Fatalf("[secrets] %v", err)
		}
		log.Printf("[secrets] stored %q in the OS keyring", *setSecret)
		return
	}

	dir := *dataDir
	if dir == "" {
		dir = os.Getenv("BDR_DATA_DIR")
	}
	if dir == "" {
		dir = config.Default().App.DataDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatal(err)
	}

	cfgFile := *cfgPath
	if cfgFile == "" {
		p, err := config.EnsureUserConfig(dir)
		if err != nil {
			log.Fatalf("config bootstrap failed: %v", err)
		}
		cfgFile = p
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		log.Fatalf("config load failed (%s): %v", cfgFile, err)
	}
	cfg, check := config.NormalizeAndValidate(cfg)
	for _, w := range check.Warnings {
		log.Printf("[config] warning: %s", w)
	}
	if !check.OK() {
		for _, e := range check.Errors {
			log.Printf("[config] error: %s", e)
		}
		os.Exit(1)
	}
	cfg.App.DataDir = dir

	if *maxLeads > 0 {
		cfg.App.MaxLeads = *maxLeads
	}
	if *minScore >= 0 {
		cfg.App.MinScore = *minScore
	}

	leadCache := cache.New(filepath.Join(dir, "cache"), time.Duration(cfg.Source.Cache.TTLHours)*time.Hour)
	switch {
	case *cacheStatus:
		printCacheStatus(leadCache.Status())
		return
	case *clearCache:
		if err := leadCache.Clear(); err != nil {
			log.Fatalf("[cache] clear failed: %v", err)
		}
		log.Printf("[cache] cleared")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ldb, err := ledger.Open(filepath.Join(dir, "bdr.db"))
	if err != nil {
		log.Fatalf("[ledger] open failed: %v", err)
	}
	defer ldb.Close()
	if err := ledger.Migrate(ldb.Pool); err != nil {
		log.Fatalf("[ledger] migrate failed: %v", err)
	}
	if *verbose {
		logLastRun(ctx, ldb.Pool)
	}

	engine, err := rank.New(cfg.Scoring)
	if err != nil {
		log.Fatalf("[config] %v", err)
	}

	opts := pipeline.Options{
		MaxLeads:     cfg.App.MaxLeads,
		MinScore:     cfg.App.MinScore,
		Preview:      *preview,
		NoEmail:      *noEmail,
		ForceRefresh: *forceRefresh,
		Demo:         *demo,
	}
	// the store's retry knobs double as the policy for the other remote APIs
	policy := retryPolicy(cfg.Store.Retry)
	deps := pipeline.Deps{Engine: engine, DB: ldb.Pool}

	// Credentials resolve per mode: a run should never demand a secret for
	// a stage it will not execute.
	switch {
	case *checkReplies:
		deps.Sweeper = buildSweeper(cfg, buildSyncer(cfg), ldb.Pool)
		res, err := pipeline.RunSweep(ctx, deps)
		if err != nil {
			log.Fatalf("[bdr] %v", err)
		}
		fmt.Printf("swept %d message(s): %d replies, %d bounces\n", res.Scanned, res.Replies, res.Bounces)

	case *sendOnly:
		deps.Syncer = buildSyncer(cfg)
		if !*preview {
			deps.Sender = buildSender(cfg)
		}
		sum, err := pipeline.RunSendOnly(ctx, cfg, deps, opts)
		fmt.Println(sum.String())
		if err != nil {
			os.Exit(1)
		}

	default:
		deps.Fetcher = buildFetcher(cfg, leadCache, policy, *demo, *forceRefresh)
		var syncer *store.Syncer
		if !*preview {
			syncer = buildSyncer(cfg)
			deps.Syncer = syncer
		}
		if cfg.Enrich.Enabled && !*demo {
			// demo companies live on reserved domains, nothing to crawl
			deps.Enricher = enrich.New(cfg.Enrich)
		}
		deps.Generator = outreach.New(cfg.Outreach, openaiKey(cfg), policy)
		if !*preview && !*noEmail {
			deps.Sender = buildSender(cfg)
		}

		sum, err := pipeline.Run(ctx, cfg, deps, opts)
		fmt.Println(sum.String())
		if err != nil {
			os.Exit(1)
		}

		if cfg.Inbox.Enabled && !*preview {
			deps.Sweeper = buildSweeper(cfg, syncer, ldb.Pool)
			res, err := pipeline.RunSweep(ctx, deps)
			if err != nil {
				log.Fatalf("[bdr] %v", err)
			}
			fmt.Printf("swept %d message(s): %d replies, %d bounces\n", res.Scanned, res.Replies, res.Bounces)
		}
	}
}

func buildFetcher(cfg config.Config, c *cache.Cache, policy retry.Policy, demo, forceRefresh bool) source.Fetcher {
	if demo {
		return source.Demo{}
	}
	key, err := secrets.Resolve(secrets.Apollo)
	if err != nil {
		log.Fatalf("[source] %v", err)
	}
	return apollo.New(cfg.Source, key, c, policy, forceRefresh)
}

func buildSyncer(cfg config.Config) *store.Syncer {
	token, err := secrets.Resolve(secrets.Airtable)
	if err != nil {
		log.Fatalf("[store] %v", err)
	}
	baseID := strings.TrimSpace(os.Getenv("AIRTABLE_BASE_ID"))
	if baseID == "" {
		baseID = strings.TrimSpace(cfg.Store.Airtable.BaseID)
	}
	if baseID == "" {
		log.Fatalf("[store] no base ID: set AIRTABLE_BASE_ID or store.airtable.base_id")
	}
	return store.NewSyncer(airtable.New(cfg.Store, baseID, token), cfg.Store)
}

func buildSender(cfg config.Config) mail.Sender {
	if strings.TrimSpace(cfg.Mail.SMTPHost) == "" || strings.TrimSpace(cfg.Mail.From) == "" {
		log.Fatalf("[mail] mail.smtp_host and mail.from must be configured to send")
	}
	password, err := secrets.Resolve(secrets.SMTP)
	if err != nil {
		log.Fatalf("[mail] %v", err)
	}
	return mail.NewSMTP(cfg.Mail, password)
}

func buildSweeper(cfg config.Config, st inbox.StatusStore, db *sql.DB) *inbox.Sweeper {
	if strings.TrimSpace(cfg.Inbox.IMAPHost) == "" || strings.TrimSpace(cfg.Inbox.Username) == "" {
		log.Fatalf("[inbox] inbox.imap_host and inbox.username must be configured")
	}
	password, err := secrets.Resolve(secrets.IMAP)
	if err != nil {
		log.Fatalf("[inbox] %v", err)
	}
	return inbox.NewSweeper(cfg.Inbox, password, st, db)
}

// openaiKey resolves the generator credential. A missing key is fatal only
// when the fallback template is disabled; otherwise the run continues
// template-only, which is how fresh installs try the tool.
func openaiKey(cfg config.Config) string {
	key, err := secrets.Resolve(secrets.OpenAI)
	if err == nil {
		return key
	}
	if !cfg.Outreach.UseFallback {
		log.Fatalf("[outreach] %v", err)
	}
	log.Printf("[outreach] %v; using the fallback template", err)
	return ""
}

func readSecretFromStdin(name string) error {
	fmt.Fprintf(os.Stderr, "value for %q (input is echoed): ", name)
	sc := bufio.NewScanner(os.Stdin)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return err
		}
		return errors.New("no input")
	}
	value := strings.TrimSpace(sc.Text())
	return secrets.Set(name, value)
}

func retryPolicy(r config.Retry) retry.Policy {
	return retry.Policy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   time.Duration(r.BaseDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(r.MaxDelayMS) * time.Millisecond,
		Jitter:      0.2,
	}
}

func printCacheStatus(info cache.Info) {
	if !info.Exists {
		fmt.Println("cache: empty")
		return
	}
	state := "stale"
	if info.Fresh {
		state = "fresh"
	}
	fmt.Printf("cache: %s, %d lead(s), fetched %s (%s ago)\n",
		state, info.Count, info.FetchedAt.Format(time.RFC3339), info.Age.Round(time.Second))
}

func logLastRun(ctx context.Context, db *sql.DB) {
	last, err := ledger.LastRun(ctx, db)
	if err != nil || last == nil {
		return
	}
	log.Printf("[bdr] previous run %s (%s) finished %s: sent=%d failed=%d",
		last.ID, last.Mode, last.FinishedAt.Format(time.RFC3339), last.Sent, last.SendFailed)
}
