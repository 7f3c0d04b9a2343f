package serve

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/user/poe/internal/api"
	"github.com/user/poe/internal/config"
	"github.com/user/poe/internal/database"
	"github.com/user/poe/internal/logger"
	"github.com/user/poe/internal/promoter"
	"github.com/user/poe/internal/store"
	"github.com/user/poe/internal/webhook"
	"github.com/user/poe/pkg/github"
	"github.com/user/poe/pkg/notify"
	"github.com/user/poe/pkg/release"
)

var (
	configFile string
	envFile    string
	port       int
	debug      bool
	logJSON    bool
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server that gates and publishes releases",
		RunE:  runServe,
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "config.yaml", "Path to config file")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before the config")
	cmd.Flags().IntVarP(&port, "port", "p", config.DefaultPort, "Port to listen on")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Log as JSON lines instead of console text")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	logger.SetJSON(logJSON)
	logger.SetDebug(debug)
	log := logger.Get()

	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("loading %s: %w", envFile, err)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.WebhookSecret == "" {
		log.Warn().Msg("No webhook secret configured, deliveries are not authenticated")
	}

	db, err := database.NewSQLiteDB(cfg.Database.SQLitePath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	log.Info().Str("path", cfg.Database.SQLitePath).Msg("Database initialized")

	listenPort := port
	if !cmd.Flags().Changed("port") && cfg.Serve.Port > 0 {
		listenPort = cfg.Serve.Port
	}

	ctx := context.Background()
	ghClient, appSlug, err := newGitHubClient(ctx, cfg)
	if err != nil {
		return err
	}
	releaseStore := store.NewService(db)

	engine := promoter.New(ghClient, releaseStore, promoter.Options{
		AppName:        cfg.AppName,
		AppSlug:        appSlug,
		RepoConfigPath: cfg.RepoConfigPath,
	})

	if cfg.Notify.WebhookURL != "" {
		notifier := notify.NewWebhook(cfg.Notify.WebhookURL, cfg.AppName)
		engine.OnPublished(func(ctx context.Context, req *release.Request) {
			if err := notifier.Published(ctx, req); err != nil {
				log.Error().Err(err).Str("version", req.Next.Next).Msg("Failed to post release notification")
			}
		})
		log.Info().Msg("Release notifications enabled")
	}

	var reconciler *promoter.Reconciler
	if cfg.Serve.ReconcileInterval > 0 {
		reconciler = promoter.NewReconciler(engine, cfg.Serve.ReconcileInterval)
		reconciler.Start()
	}

	hooks := webhook.NewHandler(cfg.WebhookSecret, engine)

	mux := http.NewServeMux()
	mux.Handle("/webhook", hooks)
	mux.Handle("/api/", api.NewServer(releaseStore).Handler())
	mux.HandleFunc("/health", handleHealth)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", listenPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Int("port", listenPort).
			Bool("debug", debug).
			Str("app", cfg.AppName).
			Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server")
	if reconciler != nil {
		reconciler.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	hooks.Wait()
	log.Info().Msg("In-flight deliveries drained")
	return nil
}

// newGitHubClient prefers GitHub App auth. A token client cannot create check
// runs, so releases never leave their first channel.
func newGitHubClient(ctx context.Context, cfg *config.Config) (*github.Client, string, error) {
	log := logger.Get()

	if !cfg.GitHubApp.Enabled() {
		log.Warn().Msg("No GitHub App configured, check runs cannot be created with a token")
		return github.NewClient(ctx, cfg.GitHubToken), "", nil
	}

	key, err := os.ReadFile(cfg.GitHubApp.PrivateKeyPath)
	if err != nil {
		return nil, "", fmt.Errorf("reading GitHub App private key: %w", err)
	}
	tr, err := github.NewAppTransport(http.DefaultTransport, cfg.GitHubApp.AppID, key, "")
	if err != nil {
		return nil, "", err
	}

	slug := cfg.GitHubApp.Slug
	if slug == "" {
		if slug, err = tr.AppSlug(ctx); err != nil {
			return nil, "", fmt.Errorf("resolving GitHub App slug: %w", err)
		}
	}
	log.Info().Int64("app_id", cfg.GitHubApp.AppID).Str("slug", slug).Msg("Authenticating as GitHub App")

	return github.NewAppClient(tr), slug, nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
