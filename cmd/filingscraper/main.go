package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/shanehull/filingscraper/internal/ai"
	"github.com/shanehull/filingscraper/internal/cninfo"
	"github.com/shanehull/filingscraper/internal/config"
	"github.com/shanehull/filingscraper/internal/digest"
	"github.com/shanehull/filingscraper/internal/edgar"
	"github.com/shanehull/filingscraper/internal/fetch"
	"github.com/shanehull/filingscraper/internal/logging"
	"github.com/shanehull/filingscraper/internal/manifest"
	"github.com/shanehull/filingscraper/internal/notify"
	"github.com/shanehull/filingscraper/internal/reports"
	"github.com/shanehull/filingscraper/internal/stocks"
	"github.com/shanehull/filingscraper/internal/types"
)

const jsonMarker = "---JSON_OUTPUT---"

var errUsage = errors.New("a stock code, name or US ticker is required")

var (
	configPath  = flag.String("config", "", "Path to a TOML config file")
	outDir      = flag.String("out", "", "Root directory for downloaded filings (default: reports)")
	workers     = flag.Int("workers", 0, "Concurrent document downloads (default: 5)")
	sinkName    = flag.String("sink", "none", "Upload destination: none, notebooklm or email")
	uploadDir   = flag.String("upload-dir", "", "Upload a previously built output directory instead of building one")
	searchQuery = flag.String("search", "", "Print stocks matching a code, name or pinyin and exit")
	searchLimit = flag.Int("limit", 10, "Maximum number of -search results")
	refresh     = flag.String("refresh-stocks", "", "Download the registry stock lists into this file and exit (use it as stocks.path)")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn or error")

	smtpServer = flag.String("smtp-server", "", "SMTP server address (default: smtp.gmail.com)")
	smtpPort   = flag.Int("smtp-port", 0, "SMTP server port (default: 587)")
	smtpUser   = flag.String("smtp-user", "", "SMTP username (email address)")
	smtpPass   = flag.String("smtp-pass", "", "SMTP password or App Password")
	toEmail    = flag.String("to-email", "", "Recipient email address")
	fromEmail  = flag.String("from-email", "", "Sender email address (default: smtp-user)")
)

func init() {
	flag.StringVar(searchQuery, "s", "", "(-s) Print stocks matching a code, name or pinyin and exit (shorthand)")

	flag.Usage = func() {
		flagSet := flag.CommandLine
		fmt.Printf("Usage of %s: [flags] <code | name | US ticker>\n", "filingscraper")

		order := []string{
			"config",
			"out",
			"workers",
			"sink",
			"upload-dir",
			"search",
			"limit",
			"refresh-stocks",
			"log-level",
			"smtp-server",
			"smtp-port",
			"smtp-user",
			"smtp-pass",
			"to-email",
			"from-email",
		}

		for _, name := range order {
			f := flagSet.Lookup(name)
			if f != nil {
				fmt.Printf("  -%s\n", f.Name)
				fmt.Printf("    %s\n", f.Usage)
			}
		}
	}
}

// applyFlags lets explicitly set flags win over file and environment.
func applyFlags(cfg *config.Config) {
	if *outDir != "" {
		cfg.Download.OutputDir = *outDir
	}
	if *workers > 0 {
		cfg.Download.Workers = *workers
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *smtpServer != "" {
		cfg.Email.SMTPServer = *smtpServer
	}
	if *smtpPort > 0 {
		cfg.Email.SMTPPort = *smtpPort
	}
	if *smtpUser != "" {
		cfg.Email.SMTPUser = *smtpUser
	}
	if *smtpPass != "" {
		cfg.Email.SMTPPass = *smtpPass
	}
	if *toEmail != "" {
		cfg.Email.ToEmail = *toEmail
	}
	if *fromEmail != "" {
		cfg.Email.FromEmail = *fromEmail
	}
}

func main() {
	flag.Parse()

	// A missing .env is normal.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Fatal error loading config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Fatal error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Printf("Fatal error setting up logging: %v\n", err)
		os.Exit(1)
	}
	logger = logger.With(zap.String("run_id", uuid.NewString()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	_ = logger.Sync()

	if err != nil {
		if errors.Is(err, errUsage) {
			flag.Usage()
		}
		fmt.Printf("Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if *refresh != "" {
		return refreshStocks(ctx, cfg, *refresh, logger)
	}

	dir, err := stocks.Load(cfg.Stocks.Path)
	if err != nil {
		return err
	}
	logger.Debug("stock directory loaded", zap.Int("records", dir.Len()))

	if *searchQuery != "" {
		printCandidates(dir.Search(*searchQuery, *searchLimit))
		return nil
	}

	sink, err := newSink(*sinkName, cfg, logger)
	if err != nil {
		return err
	}

	if *uploadDir != "" {
		m, err := manifest.Read(*uploadDir)
		if err != nil {
			return err
		}
		return upload(ctx, sink, m.ReportSet())
	}

	if flag.NArg() != 1 {
		return errUsage
	}

	builder, err := newBuilder(ctx, cfg, dir, logger)
	if err != nil {
		return err
	}

	fmt.Printf("Starting filing retrieval for %s\n", flag.Arg(0))
	set, err := builder.Build(ctx, flag.Arg(0))
	if err != nil {
		return err
	}

	notify.ReportSet(os.Stdout, set)

	m := manifest.New(set, time.Now())
	if _, err := manifest.Write(m); err != nil {
		logger.Warn("failed to write manifest", zap.Error(err))
	}
	data, err := m.JSON()
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	fmt.Println(jsonMarker)
	fmt.Println(string(data))

	return upload(ctx, sink, set)
}

func refreshStocks(ctx context.Context, cfg *config.Config, path string, logger *zap.Logger) error {
	fmt.Printf("Refreshing stock directory into %s\n", path)
	r := &stocks.Refresher{
		HTTP: &http.Client{Timeout: config.Duration(cfg.Registry.Timeout)},
		Sources: []stocks.ListSource{
			{Market: "szse", URL: cfg.Stocks.SZSEListURL},
			{Market: "hke", URL: cfg.Stocks.HKEListURL},
		},
		UserAgent: cfg.Download.UserAgent,
		Retry:     cfg.RetryPolicy(),
		Logger:    logger.Named("stocks"),
	}
	dir, err := r.Refresh(ctx, path)
	if err != nil {
		return err
	}
	fmt.Printf("✅ %d stocks written to %s\n", dir.Len(), path)
	return nil
}

func newBuilder(ctx context.Context, cfg *config.Config, dir *stocks.Directory, logger *zap.Logger) (*reports.Builder, error) {
	policy := cfg.RetryPolicy()

	registryHTTP, err := cninfo.NewHTTPClient(config.Duration(cfg.Registry.Timeout))
	if err != nil {
		return nil, err
	}
	registry := cninfo.NewClient(registryHTTP, cninfo.Options{
		QueryURL:  cfg.Registry.QueryURL,
		StaticURL: cfg.Registry.StaticURL,
		PageSize:  cfg.Registry.PageSize,
		MaxPages:  cfg.Registry.MaxPages,
		RateLimit: cfg.Registry.RateLimit,
		Retry:     policy,
	}, logger.Named("cninfo"))

	downloadHTTP := &http.Client{Timeout: config.Duration(cfg.Download.Timeout)}
	fetchOpts := fetch.Options{
		Workers:   cfg.Download.Workers,
		MinDelay:  config.Duration(cfg.Download.MinDelay),
		MaxDelay:  config.Duration(cfg.Download.MaxDelay),
		HostRate:  cfg.Download.HostRate,
		UserAgent: cfg.Download.UserAgent,
		Retry:     policy,
	}
	secFetchOpts := fetchOpts
	secFetchOpts.UserAgent = cfg.SEC.UserAgent

	sec := edgar.NewClient(downloadHTTP, edgar.Options{
		TickersURL:     cfg.SEC.TickersURL,
		SubmissionsURL: cfg.SEC.SubmissionsURL,
		ArchivesURL:    cfg.SEC.ArchivesURL,
		UserAgent:      cfg.SEC.UserAgent,
		Retry:          policy,
	}, logger.Named("edgar"))

	opts := reports.DefaultOptions()
	opts.OutputRoot = cfg.Download.OutputDir
	opts.AnnualYears = cfg.Reports.AnnualYears
	opts.RecentDays = cfg.Reports.RecentDays
	opts.RecentDownloads = cfg.Reports.RecentDownloads
	opts.USAnnual = cfg.Reports.USAnnual
	opts.USQuarterly = cfg.Reports.USQuarterly

	renderer := &digest.Renderer{
		Limit:    cfg.Reports.DigestLimit,
		Location: opts.Location,
		Logger:   logger.Named("digest"),
	}
	if cfg.Gemini.APIKey != "" {
		summarizer, err := ai.NewSummarizer(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, opts.Location)
		if err != nil {
			logger.Warn("digest overview disabled", zap.Error(err))
		} else {
			renderer.Summarizer = summarizer
		}
	}

	return &reports.Builder{
		Directory:  dir,
		Registry:   registry,
		Fetcher:    fetch.NewScheduler(downloadHTTP, fetchOpts, logger.Named("fetch")),
		Digest:     renderer,
		SEC:        sec,
		SECFetcher: fetch.NewScheduler(downloadHTTP, secFetchOpts, logger.Named("fetch-sec")),
		Options:    opts,
		Progress:   printProgress,
		Logger:     logger,
	}, nil
}

func printProgress(e reports.Event) {
	fmt.Printf("[%s] %s\n", e.Phase, e.Message)
}

func printCandidates(candidates []stocks.Candidate) {
	if len(candidates) == 0 {
		fmt.Println("No matching stocks found.")
		return
	}
	for _, c := range candidates {
		fmt.Printf("%-8s %-12s %-10s %d\n", c.Record.Code, c.Record.DisplayName, c.Record.Market, c.Score)
	}
}

func newSink(name string, cfg *config.Config, logger *zap.Logger) (notify.Sink, error) {
	switch name {
	case "", "none":
		return nil, nil
	case "notebooklm":
		persona := ""
		if cfg.Notebook.PersonaFile != "" {
			data, err := os.ReadFile(cfg.Notebook.PersonaFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read notebook persona: %w", err)
			}
			persona = string(data)
		}
		return &notify.NotebookSink{
			Binary:  cfg.Notebook.Binary,
			Persona: persona,
			Timeout: config.Duration(cfg.Notebook.Timeout),
			Logger:  logger.Named("notebooklm"),
		}, nil
	case "email":
		if !cfg.Email.Enabled() {
			return nil, fmt.Errorf("email sink needs smtp-server, smtp-user, smtp-pass and to-email")
		}
		emailConfig := notify.EmailConfig{
			SMTPServer: cfg.Email.SMTPServer,
			SMTPPort:   cfg.Email.SMTPPort,
			SMTPUser:   cfg.Email.SMTPUser,
			SMTPPass:   cfg.Email.SMTPPass,
			ToEmail:    cfg.Email.ToEmail,
			FromEmail:  cfg.Email.FromEmail,
			Enabled:    true,
		}
		if emailConfig.FromEmail == "" {
			emailConfig.FromEmail = emailConfig.SMTPUser
		}
		return notify.NewEmailSink(emailConfig, logger.Named("email")), nil
	}
	return nil, fmt.Errorf("unknown sink %q (want none, notebooklm or email)", name)
}

func upload(ctx context.Context, sink notify.Sink, set *types.ReportSet) error {
	if sink == nil {
		return nil
	}
	if len(set.Files) == 0 {
		return fmt.Errorf("nothing to upload from %s", set.OutputDir)
	}

	title := notify.Title(set.Stock.DisplayName)
	fmt.Printf("Uploading %d files as \"%s\"...\n", len(set.Files), title)

	res, err := sink.Upload(ctx, title, set.Files)
	notify.Result(os.Stdout, title, res)
	if err != nil {
		return err
	}
	if len(res.Succeeded) == 0 {
		return fmt.Errorf("no files were uploaded")
	}
	return nil
}
