package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/helpcomp/teller-dashboard/categorize"
	"github.com/helpcomp/teller-dashboard/config"
	"github.com/helpcomp/teller-dashboard/duration"
	"github.com/helpcomp/teller-dashboard/store"
	"github.com/helpcomp/teller-dashboard/syncer"
	"github.com/helpcomp/teller-dashboard/teller"
	"github.com/joho/godotenv"
	"github.com/prometheus/common/version"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

const AppName = "teller-dashboard"
const AppDesc = "Personal finance dashboard that mirrors Teller accounts, balances and transactions into a local database, forecasts upcoming balances from scheduled payments and serves it all as a JSON API."

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "teller_dashboard"

type Globals struct {
	DatabaseURL        string `env:"DATABASE_URL" help:"${env} - Database URL (sqlite:///file.db or postgres://...)" default:"sqlite:///teller_home.db"`
	ConfigPath         string `env:"CONFIG_PATH" help:"${env} - Path to config file" default:"./config.yml"`
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY" help:"${env} - 32 byte key (hex or base64) used to encrypt access tokens at rest"`
	LogLevel           string `env:"LOG_LEVEL" help:"${env} - Log level (trace, debug, info, warn, error)" default:"info"`
}

// SyncFlags configure everything a sync needs and are shared by serve and sync.
type SyncFlags struct {
	TellerBaseURL          string `env:"TELLER_BASE_URL" help:"${env} - Teller API base URL" default:"https://api.teller.io"`
	TellerCertPath         string `env:"TELLER_CERT_PATH" help:"${env} - Client certificate for Teller mutual TLS" default:"./certificate.pem"`
	TellerKeyPath          string `env:"TELLER_KEY_PATH" help:"${env} - Client key for Teller mutual TLS" default:"./private_key.pem"`
	TellerMock             bool   `env:"TELLER_MOCK" help:"${env} - Serve canned data instead of calling Teller (Debug)" default:"false"`
	TransactionCount       int    `env:"TRANSACTION_COUNT" help:"${env} - How many recent transactions to request per account" default:"500"`
	SyncLookback           string `env:"SYNC_LOOKBACK" help:"${env} - How far back vanished pending transactions are looked for" default:"30d"`
	AutoRemoveTransactions bool   `env:"ENABLE_AUTO_TRANSACTION_REMOVAL" help:"${env} - Removes pending transactions that no longer exist in Teller" default:"false"`
	OpenAIAPIKey           string `env:"OPENAI_API_KEY" help:"${env} - API Key for OpenAI. If none is provided, only config rules categorize transactions"`
	OpenAIModel            string `env:"OPENAI_MODEL" help:"${env} - OpenAI Model type" default:"gpt-3.5-turbo"`
}

var cli struct {
	Globals `embed:""`

	Serve   ServeCmd   `cmd:"" default:"1" help:"Serve the API and sync on a schedule (default)"`
	Sync    SyncCmd    `cmd:"" help:"Sync every active enrollment once and exit"`
	Migrate MigrateCmd `cmd:"" help:"Create the database schema and exit"`
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "unable to load .env: %v\n", err)
	}
	ctx := kong.Parse(&cli,
		kong.Name(AppName),
		kong.Description(AppDesc),
	)
	setupLogger(cli.LogLevel)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}

func setupLogger(level string) {
	log.Logger = log.Output(os.Stderr).With().Caller().Logger()
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		log.Warn().Str("Level", level).Msg("Unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func (g *Globals) openStore(ctx context.Context) (*store.Store, error) {
	var opts []store.Option
	if g.TokenEncryptionKey != "" {
		sealer, err := store.NewSealer(g.TokenEncryptionKey)
		if err != nil {
			return nil, err
		}
		opts = append(opts, store.WithSealer(sealer))
	} else {
		log.Warn().Msg("TOKEN_ENCRYPTION_KEY is not set, access tokens are stored in plain text")
	}
	st, err := store.Open(ctx, g.DatabaseURL, opts...)
	if err != nil {
		return nil, err
	}
	log.Info().Str("Dialect", st.Dialect().String()).Msg("📦 Database ready")
	return st, nil
}

func (f SyncFlags) providerFactory() syncer.ProviderFactory {
	if f.TellerMock {
		log.Warn().Msg("TELLER_MOCK is enabled, no data is fetched from Teller")
		mock := teller.NewMock()
		return func(string) (syncer.Provider, error) { return mock, nil }
	}
	opts := []teller.Option{
		teller.WithBaseURL(f.TellerBaseURL),
		teller.WithCertificate(f.TellerCertPath, f.TellerKeyPath),
		teller.WithUserAgent(AppName + "/" + version.Version),
	}
	return func(token string) (syncer.Provider, error) {
		c, err := teller.New(token, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// newSyncer wires config, categorization and the provider into a sync service.
func (f SyncFlags) newSyncer(st *store.Store, cfg *config.MasterConfig) (*syncer.Service, error) {
	lookback, err := duration.ParseDuration(f.SyncLookback)
	if err != nil {
		return nil, fmt.Errorf("SYNC_LOOKBACK: %w", err)
	}

	var oai *openai.Client
	if f.OpenAIAPIKey != "" {
		oai = openai.NewClient(f.OpenAIAPIKey)
	}
	cat := categorize.New(cfg, oai, f.OpenAIModel)

	return syncer.New(st, cfg, cat, f.providerFactory(), syncer.Options{
		TransactionCount: f.TransactionCount,
		Lookback:         lookback,
		AutoRemove:       f.AutoRemoveTransactions,
	}), nil
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(g *Globals) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	st, err := g.openStore(ctx)
	if err != nil {
		return err
	}
	log.Info().Msg("✅ Schema is up to date")
	return st.Close()
}

type SyncCmd struct {
	SyncFlags `embed:""`
}

func (c *SyncCmd) Run(g *Globals) error {
	ctx := context.Background()
	cfg, err := config.InitConfig(g.ConfigPath)
	if err != nil {
		return err
	}
	st, err := g.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	svc, err := c.newSyncer(st, cfg)
	if err != nil {
		return err
	}
	sum, err := svc.SyncAll(ctx)
	if err != nil {
		return err
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%d of %d enrollments failed to sync", sum.Failed, sum.Enrollments)
	}
	return nil
}
