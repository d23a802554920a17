package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/goalpulse/internal/events"
	"github.com/zombor/goalpulse/internal/ledger"
	"github.com/zombor/goalpulse/internal/lock"
	"github.com/zombor/goalpulse/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

type config struct {
	port          int
	dbDriver      string
	dbPath        string
	storagePath   string
	recognizer    string
	tesseractLang string
	geminiKey     string
	geminiModel   string
	ollamaURL     string
	ollamaModel   string
	amqpURL       string
	amqpExchange  string
	authUser      string
	authPass      string
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// .env is optional
	_ = godotenv.Load()

	fs := ff.NewFlagSet("goalpulse")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		dbDriver      = fs.StringLong("db-driver", "bolt", "Database driver: 'bolt' or 'sqlite'")
		dbPath        = fs.StringLong("db", "goalpulse.db", "Database file path")
		storagePath   = fs.StringLong("storage", "./receipts", "Receipt image directory")
		recognizer    = fs.StringLong("recognizer", "tesseract", "Text recognizer: 'tesseract', 'gemini' or 'ollama'")
		tesseractLang = fs.StringLong("tesseract-lang", "eng", "Tesseract languages, comma separated")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		amqpURL       = fs.StringLong("amqp-url", "", "AMQP broker URL for ledger events (optional)")
		amqpExchange  = fs.StringLong("amqp-exchange", "goalpulse", "AMQP exchange name")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel      = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logJSON       = fs.BoolLong("log-json", "Log as JSON")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("GOALPULSE"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := setupLogging(*logLevel, *logJSON); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg := config{
		port:          *port,
		dbDriver:      *dbDriver,
		dbPath:        *dbPath,
		storagePath:   *storagePath,
		recognizer:    *recognizer,
		tesseractLang: *tesseractLang,
		geminiKey:     *geminiKey,
		geminiModel:   *geminiModel,
		ollamaURL:     *ollamaURL,
		ollamaModel:   *ollamaModel,
		amqpURL:       *amqpURL,
		amqpExchange:  *amqpExchange,
		authUser:      *authUser,
		authPass:      *authPass,
	}
	if err := run(cfg); err != nil {
		slog.Error("Exiting", "error", err)
		os.Exit(1)
	}
}

func setupLogging(level string, asJSON bool) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if asJSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func openDB(driver, path string) (ledger.DB, error) {
	switch driver {
	case "bolt":
		return ledger.NewBoltDB(path)
	case "sqlite":
		return ledger.NewSQLiteDB(path)
	default:
		return nil, fmt.Errorf("invalid database driver %q: want bolt or sqlite", driver)
	}
}

func newRecognizer(ctx context.Context, cfg config) (scanning.Recognizer, error) {
	switch cfg.recognizer {
	case "tesseract":
		slog.Info("Initializing Tesseract recognizer...", "languages", cfg.tesseractLang)
		return scanning.NewTesseract(strings.Split(cfg.tesseractLang, ",")...), nil
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini recognizer...", "model", cfg.geminiModel)
		return scanning.NewGemini(ctx, apiKey, cfg.geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama recognizer...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		return scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel), nil
	default:
		return nil, fmt.Errorf("invalid recognizer %q: want tesseract, gemini or ollama", cfg.recognizer)
	}
}

func newPublisher(cfg config) (events.Publisher, error) {
	if cfg.amqpURL == "" {
		slog.Info("Event publishing disabled - no AMQP URL provided")
		return events.NopPublisher{}, nil
	}
	slog.Info("Connecting to AMQP broker...", "exchange", cfg.amqpExchange)
	return events.NewAMQPPublisher(cfg.amqpURL, cfg.amqpExchange)
}

func run(cfg config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Initializing database...", "driver", cfg.dbDriver, "path", cfg.dbPath)
	db, err := openDB(cfg.dbDriver, cfg.dbPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	slog.Info("Initializing storage...", "path", cfg.storagePath)
	store, err := ledger.NewLocalStorage(cfg.storagePath)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	recognizer, err := newRecognizer(ctx, cfg)
	if err != nil {
		return err
	}
	scanner := scanning.NewScanner(recognizer, nil)
	defer scanner.Close()

	publisher, err := newPublisher(cfg)
	if err != nil {
		return fmt.Errorf("initializing event publisher: %w", err)
	}
	defer publisher.Close()

	gate := lock.NewGate(ledger.SettingFlag(db, ledger.SettingBiometricEnabled))
	service := ledger.NewService(db, scanner, store, gate, publisher)
	server := ledger.NewServer(service, gate, ledger.BasicAuth{
		Username: cfg.authUser,
		Password: cfg.authPass,
	})

	if cfg.authUser != "" || cfg.authPass != "" {
		slog.Info("Basic auth enabled", "user", cfg.authUser)
	}

	addr := fmt.Sprintf(":%d", cfg.port)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx, addr)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	slog.Info("Shut down cleanly")
	return nil
}
