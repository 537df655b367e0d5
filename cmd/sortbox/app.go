package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/znz-systems/sortbox/internal/auth"
	"github.com/znz-systems/sortbox/internal/blob"
	"github.com/znz-systems/sortbox/internal/browser"
	"github.com/znz-systems/sortbox/internal/category"
	"github.com/znz-systems/sortbox/internal/classifier"
	"github.com/znz-systems/sortbox/internal/config"
	"github.com/znz-systems/sortbox/internal/gmail"
	"github.com/znz-systems/sortbox/internal/ingest"
	"github.com/znz-systems/sortbox/internal/llm"
	"github.com/znz-systems/sortbox/internal/message"
	"github.com/znz-systems/sortbox/internal/ratelimit"
	"github.com/znz-systems/sortbox/internal/secret"
	"github.com/znz-systems/sortbox/internal/store/postgres"
	"github.com/znz-systems/sortbox/internal/unsubscribe"
)

// app holds everything the subcommands share once the database is up.
type app struct {
	db *sql.DB

	accounts *postgres.AccountStore

	connector  *gmail.Connector
	ingest     *ingest.Service
	agent      *unsubscribe.Agent
	messages   *message.Service
	categories *category.Service
	linker     *auth.Service
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := postgres.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	box, err := secret.NewBox(cfg.CredentialKey)
	if err != nil {
		db.Close()
		return nil, err
	}
	if !box.Enabled() {
		slog.Warn("CREDENTIAL_KEY not set; mailbox tokens are stored unencrypted")
	}

	blobs, err := blob.NewFromConfig(ctx, blob.Config{
		Backend:           cfg.BlobBackend,
		FSRoot:            cfg.BlobFSRoot,
		S3Bucket:          cfg.S3Bucket,
		S3Region:          cfg.S3Region,
		S3Endpoint:        cfg.S3Endpoint,
		S3AccessKeyID:     cfg.S3AccessKeyID,
		S3SecretAccessKey: cfg.S3SecretAccessKey,
		S3ForcePathStyle:  cfg.S3ForcePathStyle,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init blob store: %w", err)
	}

	// Stores
	userStore := postgres.NewUserStore(db)
	accountStore := postgres.NewAccountStore(db, box)
	categoryStore := postgres.NewCategoryStore(db)
	messageStore := postgres.NewMessageStore(db)
	jobStore := postgres.NewUnsubscribeJobStore(db)

	if !cfg.GoogleConfigured() {
		slog.Warn("GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET not set; credential refresh and account linking will fail")
	}
	connector := gmail.NewConnector(gmail.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	}, accountStore, ratelimit.NewLimiter(cfg.MailboxRPS, cfg.MailboxBurst))

	model := llm.NewOpenAIModel(llm.Config{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMBaseURL,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMTimeout,
		RPS:     cfg.LLMRPS,
	})
	cls := classifier.New(model, classifier.Options{Temperature: float32(cfg.LLMTemperature)})

	launcher := browser.NewChromeLauncher(browser.Options{
		NavigateTimeout: cfg.BrowserNavTimeout,
		ActionTimeout:   cfg.BrowserActionTimeout,
		ExecPath:        cfg.BrowserExecPath,
	})

	return &app{
		db:       db,
		accounts: accountStore,

		connector: connector,
		ingest: ingest.NewService(accountStore, categoryStore, messageStore, connector, cls, blobs, nil, ingest.Options{
			PageSize: cfg.SweepPageSize,
			Window:   cfg.SweepWindow,
		}),
		agent: unsubscribe.NewAgent(messageStore, jobStore, launcher, model, unsubscribe.Options{
			Temperature: float32(cfg.LLMTemperature),
			Grace:       cfg.BrowserGrace,
		}),
		messages:   message.NewService(messageStore, accountStore, categoryStore, connector, blobs),
		categories: category.NewService(userStore, categoryStore),
		linker:     auth.NewService(userStore, accountStore, connector, 0),
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
}
