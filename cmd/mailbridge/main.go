package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gotrs-io/mailbridge/internal/api"
	"github.com/gotrs-io/mailbridge/internal/backend"
	"github.com/gotrs-io/mailbridge/internal/config"
	"github.com/gotrs-io/mailbridge/internal/dedup"
	"github.com/gotrs-io/mailbridge/internal/dispatch"
	"github.com/gotrs-io/mailbridge/internal/gmail"
	"github.com/gotrs-io/mailbridge/internal/outbound"
	"github.com/gotrs-io/mailbridge/internal/runner"
	"github.com/gotrs-io/mailbridge/internal/runner/tasks"
	"github.com/gotrs-io/mailbridge/internal/scanner"
	"github.com/gotrs-io/mailbridge/internal/tickets"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPathFlag string

var rootCmd = &cobra.Command{
	Use:   "mailbridge",
	Short: "Bridge between an inbound Gmail mailbox and a ticketing backend",
	Long: `mailbridge scans a Gmail inbox on a schedule, classifies each email as
a new conversation or a reply, and forwards it to the ticketing backend as
a ticket or a ticket message. It also exposes an HTTP endpoint for sending
agent replies back to customers over SMTP.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	RunE:    runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mailbridge %s\n", rootCmd.Version)
	},
}

var authorizeCmd = &cobra.Command{
	Use:   "authorize",
	Short: "Run the interactive OAuth flow and store the Gmail token",
	RunE:  runAuthorize,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPathFlag, "config", "", "Directory containing the config file")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(authorizeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runAuthorize(cmd *cobra.Command, args []string) error {
	if err := config.Load(configPathFlag); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := config.Get()

	auth := gmail.NewAuthenticator(cfg.Gmail.CredentialsFile, cfg.Gmail.TokenFile, nil)
	if _, err := auth.Client(cmd.Context()); err != nil {
		return fmt.Errorf("authorize: %w", err)
	}
	fmt.Println("Gmail token stored.")
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := config.Load(configPathFlag); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := config.Get()

	logger := log.New(os.Stdout, "[MAILBRIDGE] ", log.LstdFlags)
	logger.Printf("starting %s (env=%s)", cfg.App.Name, cfg.App.Env)

	ctx := cmd.Context()

	auth := gmail.NewAuthenticator(cfg.Gmail.CredentialsFile, cfg.Gmail.TokenFile, nil)
	mailbox, err := gmail.NewClient(ctx, auth, cfg.Gmail)
	if err != nil {
		return fmt.Errorf("gmail client: %w", err)
	}

	backendClient := backend.New(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.Backend.Timeout)

	store := dedup.NewStore(backendClient,
		dedup.WithBootstrapAttempts(cfg.Dedup.BootstrapAttempts),
		dedup.WithBootstrapDelay(cfg.Dedup.BootstrapDelay),
	)
	store.Bootstrap(ctx)

	resolver := tickets.NewResolver(backendClient)
	dispatcher := dispatch.NewDispatcher(backendClient)
	processor := scanner.NewProcessor(mailbox, backendClient, resolver, dispatcher, store, nil)
	scan := scanner.NewScanner(mailbox, processor, store,
		scanner.WithWorkers(cfg.Scanner.Workers),
		scanner.WithDrainTimeout(cfg.Scanner.DrainTimeout),
		scanner.WithAuthErrorCheck(gmail.IsAuthError),
	)

	registry := runner.NewTaskRegistry()
	registry.Register(tasks.NewScanTask(scan, cfg.Scanner.Interval, cfg.Scanner.Interval))
	registry.Register(tasks.NewDedupRefreshTask(store, cfg.Dedup.RefreshInterval))
	registry.Register(tasks.NewTicketCacheTask(resolver, cfg.TicketCache.InvalidateInterval))

	sender := outbound.NewSender(cfg.SMTP, nil)
	router := api.NewRouter(cfg, sender, nil)
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		logger.Printf("http server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		// Blocks until SIGINT/SIGTERM or context cancellation.
		err := runner.NewRunner(registry).Start(gctx)

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout <= 0 {
			shutdownTimeout = 10 * time.Second
		}
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Printf("http shutdown: %v", shutdownErr)
		}

		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Println("shutdown complete")
	return nil
}
