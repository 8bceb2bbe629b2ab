package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/inletlabs/inlet/adapter"
	adapterredis "github.com/inletlabs/inlet/adapter/redis"
	"github.com/inletlabs/inlet/adapter/webhook"
	"github.com/inletlabs/inlet/archive"
	"github.com/inletlabs/inlet/cli/config"
	"github.com/inletlabs/inlet/cli/tui"
	"github.com/inletlabs/inlet/faults"
	"github.com/inletlabs/inlet/iox"
	"github.com/inletlabs/inlet/journal"
	"github.com/inletlabs/inlet/log"
	"github.com/inletlabs/inlet/runtime"
	"github.com/inletlabs/inlet/store"
	storeredis "github.com/inletlabs/inlet/store/redis"
	"github.com/inletlabs/inlet/types"
)

// Exit codes for commands that drive a session.
const (
	exitSuccess       = 0
	exitStreamError   = 1
	exitAborted       = 2
	exitInvalidConfig = 3
)

// RunCommand returns the run command, the only command that ingests a
// live stream.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Ingest a live event stream into the state repository",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "url",
				Usage:    "Stream endpoint URL",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "conversation-id",
				Usage: "Conversation ID (may be assigned by the backend mid-stream)",
			},
			&cli.StringFlag{
				Name:  "message-id",
				Usage: "Assistant message ID (generated when empty)",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to inlet.yaml config file",
			},
			// Reveal flags
			&cli.StringFlag{
				Name:  "pacer",
				Usage: "Reveal pacer: time-sliced or char-paced",
			},
			&cli.DurationFlag{
				Name:  "flush-interval",
				Usage: "Minimum interval between reveal flushes (time-sliced pacer)",
			},
			&cli.Float64Flag{
				Name:  "chars-per-second",
				Usage: "Reveal rate (char-paced pacer)",
			},
			// Store flags
			&cli.StringFlag{
				Name:  "store",
				Usage: "State repository backend: memory or redis",
			},
			&cli.StringFlag{
				Name:  "store-url",
				Usage: "Redis connection URL for the redis store",
			},
			&cli.StringFlag{
				Name:  "store-prefix",
				Usage: "Key prefix for the redis store",
			},
			// Retry flags
			&cli.IntFlag{
				Name:  "retry-attempts",
				Usage: "Connect attempt budget",
			},
			&cli.DurationFlag{
				Name:  "retry-base-delay",
				Usage: "First connect backoff delay",
			},
			&cli.DurationFlag{
				Name:  "retry-max-delay",
				Usage: "Connect backoff delay cap",
			},
			&cli.StringFlag{
				Name:  "journal",
				Usage: "Write decoded records to a journal file for replay",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show the live reveal view (quitting aborts the session)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Emit structured logs to stderr",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress the result summary",
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid config: %v", err), exitInvalidConfig)
	}

	messageID := c.String("message-id")
	if messageID == "" {
		messageID = uuid.NewString()
	}

	st, closeStore, err := buildStore(c, cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid store config: %v", err), exitInvalidConfig)
	}
	if closeStore != nil {
		defer iox.DiscardClose(closeStore)
	}

	journalWriter, closeJournal, err := buildJournal(c, cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot open journal: %v", err), exitInvalidConfig)
	}
	if closeJournal != nil {
		defer iox.DiscardClose(closeJournal)
	}

	notifiers, err := buildNotifiers(cfg.Adapter)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid adapter config: %v", err), exitInvalidConfig)
	}
	defer func() {
		for _, n := range notifiers {
			_ = n.Close()
		}
	}()

	logger := log.NewNopLogger()
	if c.Bool("debug") {
		logger = log.New()
	}

	sessionConfig := runtime.SessionConfig{
		ConversationID:     c.String("conversation-id"),
		AssistantMessageID: messageID,
		Open:               httpTransport(c.String("url")),
		Store:              st,
		Reveal:             revealOptions(c, cfg),
		Retry:              retryConfig(c, cfg),
		Logger:             logger,
		Journal:            journalWriter,
		Notifiers:          notifiers,
	}

	startedAt := time.Now()
	result, err := driveSession(c, sessionConfig, "inlet run")
	if err != nil {
		return err
	}

	archiveKey := archiveArtifact(c, cfg, result)

	if !c.Bool("quiet") {
		printSessionResult(result, archiveKey, time.Since(startedAt))
	}

	return cli.Exit("", statusToExitCode(result.Status))
}

// driveSession starts the session with signal handling and the optional
// live reveal view, and blocks until the terminal state.
func driveSession(c *cli.Context, sessionConfig runtime.SessionConfig, title string) (*runtime.Result, error) {
	var states chan types.StreamingState
	if c.Bool("tui") {
		states = make(chan types.StreamingState, 64)
		sessionConfig.Observer = func(state types.StreamingState) {
			// Never block the pacer's flush path on a slow screen.
			select {
			case states <- state:
			default:
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	controller := runtime.NewController(sessionConfig.Logger)
	session, err := controller.Start(ctx, sessionConfig)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("cannot start session: %v", err), exitInvalidConfig)
	}

	if states != nil {
		go func() {
			_, _ = session.Wait(context.Background())
			close(states)
		}()

		userQuit, err := tui.RunReveal(title, states)
		if err != nil {
			cancel()
			_, _ = session.Wait(context.Background())
			return nil, fmt.Errorf("tui failed: %w", err)
		}
		if userQuit {
			session.Abort()
		}
	}

	result, err := session.Wait(context.Background())
	if err != nil {
		return nil, err
	}
	return result, nil
}

// httpTransport opens the endpoint as a streaming GET request. The
// response body stays bound to the session context, so an abort
// unblocks any pending read.
func httpTransport(url string) runtime.Transport {
	client := &http.Client{} // no timeout: the stream stays open
	return func(ctx context.Context) (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Cache-Control", "no-cache")

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			iox.DiscardClose(resp.Body)
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}
		return resp.Body, nil
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return &config.Config{}, nil
	}
	return config.Load(path)
}

func revealOptions(c *cli.Context, cfg *config.Config) runtime.RevealOptions {
	opts := runtime.RevealOptions{
		Strategy:       cfg.Reveal.Pacer,
		FlushInterval:  cfg.Reveal.FlushInterval.Duration,
		CharsPerSecond: cfg.Reveal.CharsPerSecond,
	}
	if c.IsSet("pacer") {
		opts.Strategy = c.String("pacer")
	}
	if c.IsSet("flush-interval") {
		opts.FlushInterval = c.Duration("flush-interval")
	}
	if c.IsSet("chars-per-second") {
		opts.CharsPerSecond = c.Float64("chars-per-second")
	}
	return opts
}

func retryConfig(c *cli.Context, cfg *config.Config) faults.RetryConfig {
	retry := faults.RetryConfig{
		Attempts:  cfg.Retry.Attempts,
		BaseDelay: cfg.Retry.BaseDelay.Duration,
		MaxDelay:  cfg.Retry.MaxDelay.Duration,
	}
	if c.IsSet("retry-attempts") {
		retry.Attempts = c.Int("retry-attempts")
	}
	if c.IsSet("retry-base-delay") {
		retry.BaseDelay = c.Duration("retry-base-delay")
	}
	if c.IsSet("retry-max-delay") {
		retry.MaxDelay = c.Duration("retry-max-delay")
	}
	return retry
}

func buildStore(c *cli.Context, cfg *config.Config) (store.Store, io.Closer, error) {
	backend := cfg.Store.Backend
	if c.IsSet("store") {
		backend = c.String("store")
	}

	switch backend {
	case "", "memory":
		return store.NewMemory(), nil, nil

	case "redis":
		url := cfg.Store.URL
		if c.IsSet("store-url") {
			url = c.String("store-url")
		}
		prefix := cfg.Store.KeyPrefix
		if c.IsSet("store-prefix") {
			prefix = c.String("store-prefix")
		}
		s, err := storeredis.New(storeredis.Config{
			URL:       url,
			KeyPrefix: prefix,
			Timeout:   cfg.Store.Timeout.Duration,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend: %s (must be memory or redis)", backend)
	}
}

func buildJournal(c *cli.Context, cfg *config.Config) (*journal.Writer, io.Closer, error) {
	path := cfg.Journal.Path
	if c.IsSet("journal") {
		path = c.String("journal")
	}
	if path == "" {
		return nil, nil, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return journal.NewWriter(f), f, nil
}

func buildNotifiers(cfg config.AdapterConfig) ([]adapter.Adapter, error) {
	switch cfg.Type {
	case "":
		return nil, nil

	case "webhook":
		retries := webhook.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		a, err := webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return []adapter.Adapter{a}, nil

	case "redis":
		retries := adapterredis.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		a, err := adapterredis.New(adapterredis.Config{
			URL:     cfg.URL,
			Channel: cfg.Channel,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return []adapter.Adapter{a}, nil

	default:
		return nil, fmt.Errorf("unknown adapter type: %s (must be webhook or redis)", cfg.Type)
	}
}

// archiveArtifact uploads the sealed artifact when archival is
// configured. Failures are reported but never change the exit code:
// the session outcome is already persisted.
func archiveArtifact(c *cli.Context, cfg *config.Config, result *runtime.Result) string {
	if cfg.Archive.Bucket == "" || result.Artifact == nil || result.Status != types.StatusComplete {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	archiver, err := archive.New(ctx, archive.Config{
		Bucket:       cfg.Archive.Bucket,
		Prefix:       cfg.Archive.Prefix,
		Region:       cfg.Archive.Region,
		Endpoint:     cfg.Archive.Endpoint,
		UsePathStyle: cfg.Archive.S3PathStyle,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: archive setup failed: %v\n", err)
		return ""
	}

	key, err := archiver.Archive(ctx, result.Artifact)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: artifact archival failed: %v\n", err)
		return ""
	}
	return key
}

func statusToExitCode(status types.SessionStatus) int {
	switch status {
	case types.StatusComplete:
		return exitSuccess
	case types.StatusAborted:
		return exitAborted
	default:
		return exitStreamError
	}
}

func printSessionResult(result *runtime.Result, archiveKey string, duration time.Duration) {
	fmt.Printf("\n=== Session Result ===\n")
	fmt.Printf("Status:       %s\n", result.Status)
	if result.Fault != nil {
		fmt.Printf("Fault:        %s (%s)\n", result.Fault.Message, result.Fault.Kind)
	}
	fmt.Printf("Duration:     %s\n", duration.Round(time.Millisecond))
	fmt.Printf("Text:         %d chars\n", len([]rune(result.Text)))

	if result.Artifact != nil {
		fmt.Printf("\n=== Artifact ===\n")
		fmt.Printf("ID:           %s\n", result.Artifact.ID)
		fmt.Printf("Type:         %s\n", result.Artifact.Type)
		fmt.Printf("Title:        %s\n", result.Artifact.Title)
		fmt.Printf("Version:      %d\n", result.Artifact.Version)
		if archiveKey != "" {
			fmt.Printf("Archived:     %s\n", archiveKey)
		}
	}

	if len(result.ToolLog) > 0 {
		fmt.Printf("\n=== Tool Log ===\n")
		for _, entry := range result.ToolLog {
			fmt.Printf("  - %s\n", (&types.ToolEvent{
				Status:       entry.Status,
				Message:      entry.Message,
				CurrentIndex: entry.Index,
				TotalTools:   entry.Total,
			}).Progress())
		}
	}

	m := result.Metrics
	fmt.Printf("\n=== Metrics ===\n")
	fmt.Printf("Records:      %d\n", m.RecordsReceived)
	fmt.Printf("Text Deltas:  %d\n", m.TextDeltas)
	fmt.Printf("Tool Events:  %d\n", m.ToolEvents)
	fmt.Printf("Decode Errs:  %d\n", m.DecodeErrors)
	fmt.Printf("Retries:      %d\n", m.Retries)
}
