package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mhornych/presence/internal/attendance"
	"github.com/mhornych/presence/internal/bus"
	"github.com/mhornych/presence/internal/config"
	"github.com/mhornych/presence/internal/gallery"
	"github.com/mhornych/presence/internal/ledger"
	"github.com/mhornych/presence/internal/matcher"
	"github.com/mhornych/presence/internal/provider"
	"github.com/mhornych/presence/internal/session"
	"github.com/mhornych/presence/internal/store"
	"github.com/mhornych/presence/internal/store/mock"
	"github.com/mhornych/presence/internal/store/postgres"
	"github.com/mhornych/presence/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance server",
	Long: `Start the presence server.
The server accepts recognition probes, manages sessions, and serves the
attendance ledger and notification feed over HTTP.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "Listen address (overrides PRESENCE_LISTEN)")
}

// openStore connects to PostgreSQL when DATABASE_URL is set, otherwise falls
// back to a volatile in-memory store.
func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.Database.URL == "" {
		fmt.Println("No DATABASE_URL configured, running with in-memory storage")
		return mock.NewMockStore(), nil
	}

	fmt.Println("Connecting to PostgreSQL database...")
	st, err := postgres.Open(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return st, nil
}

// buildProvider picks the embedding provider from config.
func buildProvider(cfg *config.Config) provider.Provider {
	if cfg.Embedder.Synthetic {
		fmt.Println("Using synthetic embedding provider")
		return provider.NewSyntheticProvider(cfg.Matching.EmbeddingDim)
	}
	return provider.NewHTTPProvider(cfg.Embedder.URL)
}

// restoreState seeds the gallery and the ledger from the durable store.
func restoreState(ctx context.Context, st store.Store, g *gallery.Gallery, l *ledger.Ledger) error {
	identities, err := st.LoadAllIdentities(ctx)
	if err != nil {
		return fmt.Errorf("loading identities: %w", err)
	}
	for _, identity := range identities {
		if err := g.Upsert(identity); err != nil {
			fmt.Printf("Warning: skipping identity %s: %v\n", identity.ID, err)
		}
	}

	records, err := st.LoadAllRecords(ctx)
	if err != nil {
		return fmt.Errorf("loading presence records: %w", err)
	}
	l.Seed(records)

	fmt.Printf("Restored %d identities and %d presence records\n", g.Count(), len(records))
	return nil
}

// runEviction drops old acknowledged notifications once an hour.
func runEviction(ctx context.Context, b *bus.Bus, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := b.EvictOlderThan(retention); n > 0 {
				fmt.Printf("Evicted %d old notifications\n", n)
			}
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	b := bus.New(cfg.Bus.Capacity)
	g := gallery.New(cfg.Matching.EmbeddingDim)
	l := ledger.New(cfg.Matching.GracePeriod, b, st)
	registry := session.NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := restoreState(ctx, st, g, l); err != nil {
		return err
	}

	service := &attendance.Service{
		Gallery:  g,
		Matcher:  matcher.New(g, cfg.Matching.AcceptThreshold, cfg.Matching.AmbiguityMargin),
		Registry: registry,
		Ledger:   l,
		Bus:      b,
		Provider: buildProvider(cfg),
	}

	if cfg.Sessions.TimetablePath != "" {
		timetable, err := session.LoadTimetable(cfg.Sessions.TimetablePath)
		if err != nil {
			return fmt.Errorf("loading timetable: %w", err)
		}
		scheduler := session.NewScheduler(registry, b, timetable)
		scheduler.SetInterval(cfg.Sessions.TickInterval)
		go scheduler.Run(ctx)
		fmt.Printf("Session scheduler running from %s\n", cfg.Sessions.TimetablePath)
	}

	go runEviction(ctx, b, cfg.Bus.Retention)

	listen := mustGetString(cmd, "listen")
	if listen == "" {
		listen = cfg.HTTP.Listen
	}

	server := web.NewServer(service, st, listen)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting presence server on %s\n", listen)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
