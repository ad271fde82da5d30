package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gagliardetto/solana-go"
	"github.com/golang-jwt/jwt/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/layer-3/gamebridge/adapters/chain"
	"github.com/layer-3/gamebridge/adapters/conversions"
	"github.com/layer-3/gamebridge/adapters/events"
	"github.com/layer-3/gamebridge/adapters/metrics"
	"github.com/layer-3/gamebridge/adapters/store"
	"github.com/layer-3/gamebridge/adapters/tokenizer"
	"github.com/layer-3/gamebridge/adapters/unity"
	"github.com/layer-3/gamebridge/adapters/users"
	"github.com/layer-3/gamebridge/config"
	"github.com/layer-3/gamebridge/core"
	"github.com/layer-3/gamebridge/migrations"
	"github.com/layer-3/gamebridge/ports"
	"github.com/layer-3/gamebridge/service"
	httptransport "github.com/layer-3/gamebridge/transport/http"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("gamebridge stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	signKey, err := loadSigningKey(cfg.Auth.JWTPrivateKey, log)
	if err != nil {
		return err
	}

	treasury, err := solana.PrivateKeyFromBase58(cfg.Solana.TreasurySecret)
	if err != nil {
		return fmt.Errorf("parse treasury secret: %w", err)
	}

	mint, err := solana.PublicKeyFromBase58(cfg.Solana.Mint)
	if err != nil {
		return fmt.Errorf("parse mint: %w", err)
	}

	prom := metrics.NewPrometheus()
	wmLogger := watermill.NewStdLogger(false, false)

	// Nonces and events are shared through redis when several instances run
	var (
		nonces    ports.Store
		publisher message.Publisher
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}

		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		publisher, err = redisstream.NewPublisher(redisstream.PublisherConfig{Client: redisClient}, wmLogger)
		if err != nil {
			return fmt.Errorf("create redis publisher: %w", err)
		}
		nonces = store.NewRedisStore(redisClient)
	} else {
		log.Warn("REDIS_URL not set, nonces and events stay in this process")
		publisher = gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
		nonces = store.NewMemoryStore()
	}
	defer publisher.Close()

	// Identity and conversion records
	var (
		userStore       ports.UserStore
		conversionStore ports.ConversionStore
	)
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping db: %w", err)
		}
		if err := migrations.Up(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		repo := users.NewPostgres(db)
		for _, wallet := range cfg.Auth.AdminWallets {
			if err := repo.SetRole(ctx, wallet, core.RoleAdmin); err != nil {
				return err
			}
		}
		userStore = repo
		conversionStore = conversions.NewPostgres(db)
	} else {
		log.Warn("PG_DSN not set, conversion records are kept in memory")
		userStore = users.NewMemoryStore(cfg.Auth.AdminWallets...)
		conversionStore = conversions.NewMemoryStore()
	}

	// One credential cache for the whole process
	credentials := unity.NewCredentialCache(unity.CredentialConfig{
		AuthURL:       cfg.Unity.AuthURL,
		ProjectID:     cfg.Unity.ProjectID,
		EnvironmentID: cfg.Unity.EnvironmentID,
		KeyID:         cfg.Unity.KeyID,
		SecretKey:     cfg.Unity.SecretKey,
		AuthHeader:    cfg.Unity.AuthHeader,
		Timeout:       cfg.Unity.Timeout,
		SafetyMargin:  cfg.Unity.SafetyMargin,
		FallbackTTL:   cfg.Unity.FallbackTTL,
	}, log.WithField("component", "credentials"), prom)

	ledger := unity.NewLedger(unity.LedgerConfig{
		CloudSaveURL: cfg.Unity.CloudSaveURL,
		ProjectID:    cfg.Unity.ProjectID,
		RecordKey:    cfg.Unity.RecordKey,
		WalletField:  cfg.Unity.WalletField,
		BalanceField: cfg.Unity.BalanceField,
		Timeout:      cfg.Unity.Timeout,
	}, credentials, log.WithField("component", "ledger"))

	solanaClient := chain.NewSolanaClient(cfg.Solana.RPCURL)

	authService := service.NewAuthService(
		tokenizer.NewJWTTokenizer(signKey),
		nonces,
		userStore,
		prom,
		log.WithField("component", "auth"),
		service.AuthConfig{
			AppName:    cfg.Auth.AppName,
			NonceTTL:   cfg.Auth.NonceTTL,
			SessionTTL: cfg.Auth.SessionTTL,
		},
	)

	bridgeLog := log.WithField("component", "bridge")
	builder := service.NewTransactionBuilder(solanaClient, mint, treasury.PublicKey(), cfg.Solana.Decimals, bridgeLog)
	finalizer := service.NewTransactionFinalizer(
		builder,
		treasury,
		solanaClient,
		ledger,
		conversionStore,
		events.NewWatermillPublisher(publisher),
		prom,
		bridgeLog,
		service.FinalizerConfig{PollInterval: cfg.Solana.ConfirmPoll},
	)
	bridgeService := service.NewBridgeService(builder, finalizer, ledger, conversionStore, bridgeLog)

	router := httptransport.SetupRouter(authService, bridgeService, httptransport.RouterConfig{
		ServiceAPIKey:  cfg.Auth.ServiceAPIKey,
		RateLimitRPS:   cfg.Auth.RateLimitRPS,
		RateLimitBurst: cfg.Auth.RateLimitBurst,
		Metrics:        prom.Handler(),
		Log:            log.WithField("component", "http"),
	})

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(int(cfg.Port)),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":     server.Addr,
			"treasury": treasury.PublicKey().String(),
			"mint":     mint.String(),
		}).Info("gamebridge listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	return log
}

// loadSigningKey parses the PEM encoded session key or generates one.
// Generated keys do not survive a restart, sessions are lost with them.
func loadSigningKey(pemKey string, log logrus.FieldLogger) (*ecdsa.PrivateKey, error) {
	if pemKey == "" {
		log.Warn("AUTH_JWT_PRIVATE_KEY not set, generating an ephemeral session key")
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}

	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(pemKey))
	if err != nil {
		return nil, fmt.Errorf("parse session key: %w", err)
	}

	return key, nil
}
