package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
	"golang.org/x/time/rate"

	"github.com/mmcdole/marquee/internal/backend"
	"github.com/mmcdole/marquee/internal/config"
	"github.com/mmcdole/marquee/internal/domain"
	"github.com/mmcdole/marquee/internal/engine"
	"github.com/mmcdole/marquee/internal/log"
	"github.com/mmcdole/marquee/internal/notifier"
	"github.com/mmcdole/marquee/internal/server"
	"github.com/mmcdole/marquee/internal/store"
	"github.com/mmcdole/marquee/internal/tui"
	"github.com/mmcdole/marquee/internal/view"
)

// Version is set at build time via -ldflags
var Version = "dev"

type options struct {
	configPath string
	headless   bool
	login      bool
}

func main() {
	var showVersion bool
	var opts options
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.StringVar(&opts.configPath, "config", "", "path to config file")
	flag.BoolVar(&opts.headless, "headless", false, "run without the dashboard")
	flag.BoolVar(&opts.login, "login", false, "prompt for the device password before starting")
	flag.Parse()

	if showVersion {
		fmt.Printf("marquee %s\n", Version)
		return
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	// A .env next to the binary is optional
	_ = godotenv.Load()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := log.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = log.NullLogger()
	}
	slog.SetDefault(logger)

	logger.Info("starting marquee", "version", Version, "backend", cfg.Backend.URL)

	db, err := store.Open(cfg.Cache.Dir)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer db.Close()

	meta := store.NewMetadataStore(db)
	if err := meta.Init(); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	blobs := store.NewBlobStore(db)

	var fetchLimiter *rate.Limiter
	if cfg.Sync.FetchRate > 0 {
		fetchLimiter = rate.NewLimiter(rate.Limit(cfg.Sync.FetchRate), 1)
	}

	eng := engine.New(engine.Options{
		Backend:       backend.NewClient(cfg.Backend.URL, cfg.Backend.LoginPath, cfg.Backend.Timeout, logger),
		Notifier:      notifier.New(cfg.SocketURL(), logger),
		Meta:          meta,
		Blobs:         blobs,
		Debounce:      cfg.Sync.Debounce,
		RetryInterval: cfg.Sync.RetryInterval,
		MaxRetries:    cfg.Sync.MaxRetries,
		FetchTimeout:  cfg.Sync.FetchTimeout,
		FetchLimiter:  fetchLimiter,
		Logger:        logger,
	})
	defer eng.Close()

	queries := view.NewQueries(meta, blobs, nil)
	srv := server.New(server.Config{
		Addr:       cfg.Server.Addr,
		LoginRate:  cfg.Server.LoginRate,
		LoginBurst: cfg.Server.LoginBurst,
	}, eng, queries, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The dashboard observes from the first snapshot
	states := make(chan domain.State, 16)
	if !opts.headless {
		eng.AddObserver(tui.NewChannelObserver(states))
	}

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	if opts.login {
		if err := promptLogin(ctx, eng); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})

	if opts.headless {
		if !eng.State().Authenticated {
			logger.Warn("no device configured, log in with POST /api/login", "addr", cfg.Server.Addr)
		}
	} else {
		g.Go(func() error {
			// Quitting the dashboard stops the server too
			defer stop()
			p := tea.NewProgram(
				tui.NewModel(eng, queries, states),
				tea.WithAltScreen(),
				tea.WithContext(gctx),
			)
			logger.Info("starting TUI")
			if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				logger.Error("TUI error", "error", err)
				return fmt.Errorf("TUI error: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()
	logger.Info("shutting down")
	return err
}

// promptLogin reads the device password from the terminal and runs a login cycle
func promptLogin(ctx context.Context, eng *engine.Engine) error {
	fmt.Print("Device password: ")
	password, err := readPassword()
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Println("Syncing content...")
	if err := eng.Login(ctx, password); err != nil {
		switch {
		case errors.Is(err, domain.ErrAuthFailed):
			return fmt.Errorf("password rejected")
		case errors.Is(err, domain.ErrServerOffline):
			return fmt.Errorf("server offline: %w", err)
		default:
			return fmt.Errorf("login failed: %w", err)
		}
	}

	if res := eng.State().Result; res != nil {
		fmt.Printf("✓ %d items, %d cached, %d failed\n", res.Total, res.Cached, res.Failed)
	}
	return nil
}

func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	// Piped input
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
