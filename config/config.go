package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/tkanos/gonfig"
	"github.com/trakkie-id/paynow/auth"
	"github.com/trakkie-id/paynow/config/application"
	"github.com/trakkie-id/paynow/config/conf"
	"github.com/trakkie-id/paynow/config/grpcserver"
	"github.com/trakkie-id/paynow/config/httpserver"
	"github.com/trakkie-id/paynow/config/migrations"
	"github.com/trakkie-id/paynow/gateway"
	"github.com/trakkie-id/paynow/ledger"
	"github.com/trakkie-id/paynow/report"
	"github.com/trakkie-id/paynow/service"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	healthInterval  = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

var configFile string

// NewRootCommand builds the paynow command line.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "paynow",
		Short:         "Paynow hosted payment enrolment service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config-file", "./config/conf/development.json", "Application configuration file")

	root.AddCommand(serveCmd(), migrateCmd(), reportCmd())
	return root
}

func Execute() error {
	return NewRootCommand().Execute()
}

// LoadConfig reads the config file, applies environment overrides and
// defaults, then validates the result.
func LoadConfig(path string) (*conf.Config, error) {
	var cfg conf.Config

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := gonfig.GetConf(path, &cfg); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	//Override Config Info
	application.OverrideEnvVars(&cfg)
	cfg.Defaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func bootstrap() (*conf.Config, *gorm.DB, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return nil, nil, err
	}

	//Setup Logger
	log := application.SetUpLogger(cfg.LogLevel, cfg.ApplicationName)

	//Init App Env
	env := application.InitAppEnv(cfg.ApplicationEnv)
	log.Infof("Loaded application configuration file %s, environment %s", configFile, env)

	//Init Database
	db, err := application.InitDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the paynow tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := bootstrap()
			if err != nil {
				return err
			}
			if err := migrations.MigrateDatabase(db); err != nil {
				return err
			}
			application.LOGGER.Info("Database migrated")
			return nil
		},
	}
}

func reportCmd() *cobra.Command {
	var (
		userID uint
		limit  int
		output string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export transactions as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := bootstrap()
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			n, err := report.WriteCSV(cmd.Context(), w, ledger.NewGormLedger(db), userID, limit)
			if err != nil {
				return err
			}
			application.LOGGER.Infof("Exported %d transactions", n)
			return nil
		},
	}

	cmd.Flags().UintVarP(&userID, "user", "u", 0, "Only export this user's transactions")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file, - for stdout")

	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the callback, health and metrics servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, db, err := bootstrap()
	if err != nil {
		return err
	}
	log := application.LOGGER

	if err := migrations.MigrateDatabase(db); err != nil {
		return err
	}

	//Init Tracer
	tracer, err := application.InitZipkinTracer(cfg.HTTPPort, cfg.ZipkinEndpoint)
	if err != nil {
		return err
	}

	//Init Gateway
	client, err := gateway.NewClient(gateway.Config{
		URL:                cfg.PaynowURL,
		Timeout:            time.Duration(cfg.PaynowTimeoutSeconds) * time.Second,
		InsecureSkipVerify: cfg.PaynowInsecureSkipVerify,
		Tracer:             tracer,
		Logger:             log,
	})
	if err != nil {
		return err
	}

	//Init Kafka
	var publisher service.Publisher
	if cfg.KafkaBrokerAddress != "" {
		kafkaPublisher := service.NewKafkaPublisher(cfg.KafkaBrokerAddress, log)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	} else {
		log.Warning("[KAFKA] no broker configured, lifecycle events are not published")
	}

	defaultCost, err := decimal.NewFromString(cfg.PaynowDefaultCost)
	if err != nil {
		return fmt.Errorf("PAYNOW_DEFAULT_COST: %w", err)
	}

	//Init Dependency Injection
	offers := service.NewGormOfferStore(db)
	trxService, err := service.TransactionServiceImpl(service.Deps{
		Ledger:        ledger.NewGormLedger(db),
		Gateway:       client,
		Authenticator: auth.NewAuthenticator(cfg.PaynowKey),
		Offers:        offers,
		Enrolments:    service.NewGormEnrolmentSink(db),
		Publisher:     publisher,
		Logger:        log,
		Tracer:        tracer,
		Settings: service.Settings{
			UserID:        cfg.PaynowUserID,
			Key:           cfg.PaynowKey,
			SiteName:      cfg.PaynowSiteName,
			SuccessURL:    cfg.PaynowWWWRoot + httpserver.ConfirmPath,
			ReturnURL:     cfg.PaynowWWWRoot + httpserver.ConfirmPath,
			Currencies:    cfg.PaynowCurrencies,
			DefaultCost:   defaultCost,
			VerifyConfirm: cfg.PaynowVerifyConfirm,
		},
	})
	if err != nil {
		return err
	}

	ping := func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}

	httpServer := httpserver.New(httpserver.Deps{
		Service: trxService,
		Offers:  offers,
		Check:   ping,
		Tracer:  tracer,
		Logger:  log,
	})
	grpcServer := grpcserver.New(":"+cfg.GRPCPort, tracer, ping, log)
	metricsServer := application.NewPrometheusServer(cfg.MetricsPort)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	//Use Error Group for Threads
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpServer.Start(":" + cfg.HTTPPort)
	})

	g.Go(func() error {
		return grpcServer.Start()
	})

	//Init Prometheus Endpoint
	g.Go(func() error {
		log.Info("Metrics Server Started, listening on " + cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		grpcServer.Watch(ctx, healthInterval)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		grpcServer.Stop()
		_ = metricsServer.Shutdown(shutdownCtx)
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
