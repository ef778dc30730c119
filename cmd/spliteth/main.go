package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/spliteth/internal/contract"
	"github.com/MarkoPoloResearchLab/spliteth/internal/ratefeed"
	"github.com/MarkoPoloResearchLab/spliteth/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/spliteth/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/spliteth/internal/webapi"
	"github.com/MarkoPoloResearchLab/spliteth/pkg/splitbill"
)

const (
	flagListenAddr        = "listen-addr"
	flagRPCURL            = "rpc-url"
	flagContractAddress   = "contract-address"
	flagPrivateKey        = "private-key"
	flagDatabaseURL       = "database-url"
	flagJournalDriver     = "journal-driver"
	flagRateFeedURL       = "rate-feed-url"
	flagAllowedOrigins    = "allowed-origins"
	flagSessionSigningKey = "session-signing-key"
	flagSessionIssuer     = "session-issuer"
	flagSessionTTL        = "session-ttl"
	flagRequestTimeout    = "request-timeout"
	envPrefix             = "SPLITETH"

	defaultDatabaseURL   = "sqlite:///tmp/spliteth.db"
	journalDriverAuto    = "auto"
	journalDriverGorm    = "gorm"
	journalDriverPgxPool = "pgx"
)

type runtimeConfig struct {
	RPCURL          string
	ContractAddress string
	PrivateKey      string
	DatabaseURL     string
	JournalDriver   string
	RateFeedURL     string
	Web             webapi.Config
}

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "spliteth: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "spliteth",
		Short:         "HTTP facade for the split-bill contract",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagListenAddr, "", "HTTP listen address")
	cmd.Flags().String(flagRPCURL, "", "Ethereum node RPC URL (required)")
	cmd.Flags().String(flagContractAddress, "", "deployed SplitBill contract address (required)")
	cmd.Flags().String(flagPrivateKey, "", "hex private key used to sign transactions (required)")
	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "journal database URL (postgres:// or sqlite path)")
	cmd.Flags().String(flagJournalDriver, journalDriverAuto, "journal driver: auto, gorm, or pgx")
	cmd.Flags().String(flagRateFeedURL, "", "exchange-rate feed endpoint (defaults to the public feed)")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagSessionSigningKey, "", "wallet session JWT signing key (required)")
	cmd.Flags().String(flagSessionIssuer, "", "wallet session JWT issuer")
	cmd.Flags().Duration(flagSessionTTL, 0, "wallet session lifetime (e.g. 24h)")
	cmd.Flags().Duration(flagRequestTimeout, 0, "per-request budget, write requests block until mined (e.g. 2m)")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	allFlags := []string{
		flagListenAddr, flagRPCURL, flagContractAddress, flagPrivateKey,
		flagDatabaseURL, flagJournalDriver, flagRateFeedURL, flagAllowedOrigins,
		flagSessionSigningKey, flagSessionIssuer, flagSessionTTL, flagRequestTimeout,
	}
	for _, flagName := range allFlags {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	for _, required := range []string{flagRPCURL, flagContractAddress, flagPrivateKey, flagSessionSigningKey} {
		if strings.TrimSpace(v.GetString(required)) == "" {
			return fmt.Errorf("%s is required", required)
		}
	}

	cfg.RPCURL = strings.TrimSpace(v.GetString(flagRPCURL))
	cfg.ContractAddress = strings.TrimSpace(v.GetString(flagContractAddress))
	cfg.PrivateKey = strings.TrimSpace(v.GetString(flagPrivateKey))
	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.JournalDriver = strings.TrimSpace(v.GetString(flagJournalDriver))
	cfg.RateFeedURL = strings.TrimSpace(v.GetString(flagRateFeedURL))
	cfg.Web = webapi.Config{
		ListenAddr:        strings.TrimSpace(v.GetString(flagListenAddr)),
		AllowedOrigins:    webapi.ParseAllowedOrigins(v.GetString(flagAllowedOrigins)),
		SessionSigningKey: v.GetString(flagSessionSigningKey),
		SessionIssuer:     strings.TrimSpace(v.GetString(flagSessionIssuer)),
		SessionTTL:        v.GetDuration(flagSessionTTL),
		RequestTimeout:    v.GetDuration(flagRequestTimeout),
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	if cfg.JournalDriver == "" {
		cfg.JournalDriver = journalDriverAuto
	}
	switch cfg.JournalDriver {
	case journalDriverAuto, journalDriverGorm, journalDriverPgxPool:
	default:
		return fmt.Errorf("%s must be one of %s, %s, %s", flagJournalDriver, journalDriverAuto, journalDriverGorm, journalDriverPgxPool)
	}
	return cfg.Web.Validate()
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("dial rpc: %w", err)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("read chain id: %w", err)
	}

	wallet, err := contract.NewKeyedWallet(cfg.PrivateKey, chainID)
	if err != nil {
		return fmt.Errorf("wallet init: %w", err)
	}
	gateway, err := contract.New(client, cfg.ContractAddress, wallet, chainID)
	if err != nil {
		return fmt.Errorf("gateway init: %w", err)
	}

	journal, cleanup, err := openJournal(ctx, cfg.DatabaseURL, cfg.JournalDriver)
	if err != nil {
		return fmt.Errorf("journal open: %w", err)
	}
	defer cleanup()

	clock := func() int64 { return time.Now().UTC().Unix() }
	service, err := splitbill.NewService(gateway, journal, clock,
		splitbill.WithOperationLogger(webapi.NewOperationLogger(logger)))
	if err != nil {
		return fmt.Errorf("service init: %w", err)
	}

	logger.Info("connected",
		zap.String("contract", cfg.ContractAddress),
		zap.Uint64("chain_id", chainID.Uint64()),
		zap.String("signer", gateway.Signer().String()),
	)

	deps := webapi.Deps{
		Logger:  logger,
		Service: service,
		Rates:   ratefeed.New(cfg.RateFeedURL, nil),
		ChainID: chainID.Uint64(),
	}
	return webapi.Run(ctx, cfg.Web, deps)
}

// openJournal resolves the journal backend. Postgres URLs go through the pgx
// pool store by default; --journal-driver=gorm keeps postgres on the GORM
// stack instead. SQLite always uses GORM.
func openJournal(ctx context.Context, dsn string, driverChoice string) (splitbill.Journal, func(), error) {
	scheme, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, err
	}
	switch scheme {
	case "postgres":
		if driverChoice == journalDriverGorm {
			return openGormJournal(ctx, postgres.Open(dsn))
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		store := pgstore.New(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	case "sqlite":
		if driverChoice == journalDriverPgxPool {
			return nil, nil, fmt.Errorf("journal driver pgx requires a postgres database url")
		}
		return openGormJournal(ctx, sqlite.Open(sqlitePath))
	default:
		return nil, nil, fmt.Errorf("unsupported database scheme %q", scheme)
	}
}

func openGormJournal(ctx context.Context, dialector gorm.Dialector) (splitbill.Journal, func(), error) {
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, nil, err
	}
	if err := gormstore.Migrate(db); err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return gormstore.New(db.WithContext(ctx)), func() { _ = sqlDB.Close() }, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "spliteth.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}
