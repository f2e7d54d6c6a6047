// telegram-gateway relays messages between an MQTT broker and Telegram chats.
//
// Chat messages are published to the inbound topic as JSON envelopes;
// envelopes arriving on the outbound topic are delivered to the chat named
// in their device field. See configs/config.yaml for every setting.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nerrad567/telegram-gateway/internal/api"
	"github.com/nerrad567/telegram-gateway/internal/bridges/telegram"
	"github.com/nerrad567/telegram-gateway/internal/conversation"
	"github.com/nerrad567/telegram-gateway/internal/infrastructure/config"
	"github.com/nerrad567/telegram-gateway/internal/infrastructure/database"
	"github.com/nerrad567/telegram-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/telegram-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/telegram-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/telegram-gateway/internal/infrastructure/tgbot"
	"github.com/nerrad567/telegram-gateway/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnvVar      = "TGGATEWAY_CONFIG"
)

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stdout)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if opts.showVersion {
		printVersion(os.Stdout)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts.configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	showVersion bool
}

// parseFlags reads the command line. The config path comes from --config,
// then TGGATEWAY_CONFIG, then the default.
func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options

	flagSet := pflag.NewFlagSet("telegram-gateway", pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML config file (env "+configEnvVar+")")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return options{}, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	if opts.configPath == "" {
		opts.configPath = getConfigPath()
	}
	return opts, nil
}

// getConfigPath returns the configuration file path.
// Uses TGGATEWAY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "telegram-gateway %s (commit %s, built %s)\n", version, commit, date)
}

// run wires every component and blocks until ctx is cancelled.
// Components are stopped in reverse start order by the deferred calls.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting telegram gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath)

	// Conversation registry (optional)
	var registry telegram.ConversationRegistry
	var conversations api.ConversationLister
	var dbCheck api.HealthChecker
	if cfg.Database.Enabled {
		db, dbErr := database.Open(cfg.Database)
		if dbErr != nil {
			return fmt.Errorf("opening database: %w", dbErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database ready", "path", db.Path())

		repo := conversation.NewSQLiteRepository(db.DB)
		registry = repo
		conversations = repo
		dbCheck = db
	} else {
		log.Info("conversation registry disabled")
	}

	// Relay telemetry (optional)
	var telemetry telegram.Telemetry
	var influxCheck api.HealthChecker
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Warn("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		telemetry = influxClient
		influxCheck = influxClient
	} else {
		log.Info("relay telemetry disabled")
	}

	chat, err := tgbot.Connect(cfg.Telegram, log.With("component", "telegram"))
	if err != nil {
		return fmt.Errorf("connecting to Telegram: %w", err)
	}
	log.Info("Telegram bot authorised", "bot", chat.BotName())

	router, err := telegram.NewRouter(cfg.Topics)
	if err != nil {
		return fmt.Errorf("building topic router: %w", err)
	}

	brokerOpts, err := telegram.BrokerOptions(cfg.MQTT, router, log.With("component", "mqtt"))
	if err != nil {
		return fmt.Errorf("building broker options: %w", err)
	}
	broker, err := mqtt.New(brokerOpts)
	if err != nil {
		return fmt.Errorf("creating broker connection: %w", err)
	}
	broker.OnConnected(func() {
		log.Info("MQTT connected", "reconnects", broker.ReconnectCount())
	})

	bridge, err := telegram.NewBridge(telegram.BridgeOptions{
		Router:    router,
		Broker:    broker,
		Chat:      chat,
		QoS:       byte(cfg.MQTT.QoS), // #nosec G115 -- validated 0..2
		Retain:    cfg.MQTT.Retain,
		Registry:  registry,
		Telemetry: telemetry,
		Logger:    log.With("component", "bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		// ctx is already cancelled here, so the broker takes the graceful
		// disconnect path before the unconditional one.
		log.Info("stopping bridge")
		if stopErr := bridge.Stop(ctx); stopErr != nil {
			log.Error("error stopping bridge", "error", stopErr)
		}
	}()
	log.Info("bridge running",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Status API (optional)
	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:        cfg.API,
			Logger:        log.With("component", "api"),
			Bridge:        bridge,
			MQTT:          broker,
			Telegram:      chat,
			Database:      dbCheck,
			InfluxDB:      influxCheck,
			Conversations: conversations,
			Version:       version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}
