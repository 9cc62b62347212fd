// Gray Logic EnOcean bridge
//
// Listens to EnOcean rocker switches through a USB gateway stick and turns
// a completed press (press, then release) into a toggle of the KNX switch
// bound to that button.
//
//	EnOcean stick (ESP3) -> device manager -> rocker translator -> knxd
//	                                                 |
//	                                     SQLite, MQTT, InfluxDB
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/peterbourgon/ff/v3"

	_ "github.com/nerrad567/gray-logic-enocean/migrations"

	"github.com/nerrad567/gray-logic-enocean/internal/bridges/knx"
	"github.com/nerrad567/gray-logic-enocean/internal/directory"
	"github.com/nerrad567/gray-logic-enocean/internal/enocean"
	"github.com/nerrad567/gray-logic-enocean/internal/events"
	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-enocean/internal/rocker"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flags holds the command line, each also settable as GRAYLOGIC_<NAME>.
type flags struct {
	configPath  string
	migrateDown bool
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("enocean-bridge", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", defaultConfigPath, "path to the configuration file")
	fs.BoolVar(&f.migrateDown, "migrate-down", false, "roll back the latest database migration and exit")

	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("GRAYLOGIC")); err != nil {
		return flags{}, fmt.Errorf("parsing arguments: %w", err)
	}
	return f, nil
}

// run wires the bridge and blocks until ctx is cancelled. Components are
// closed in reverse order of opening.
func run(ctx context.Context, args []string) error {
	log := logging.Default()
	log.Info("starting Gray Logic EnOcean bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	configPath := opts.configPath
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // Best effort on exit
	log.Info("configuration loaded", "path", configPath, "site", cfg.Site.ID)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if opts.migrateDown {
		return rollbackMigration(ctx, db, log)
	}
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// The directory is imported in full before any device is registered, so
	// the first telegram always sees the complete configuration.
	store := directory.NewSQLiteStore(db)
	dir, err := directory.LoadFile(cfg.EnOcean.DirectoryFile)
	if err != nil {
		return fmt.Errorf("loading directory: %w", err)
	}
	if importErr := store.Import(ctx, dir); importErr != nil {
		return fmt.Errorf("importing directory: %w", importErr)
	}
	log.Info("directory imported",
		"path", cfg.EnOcean.DirectoryFile,
		"devices", len(dir.Devices),
		"buttons", len(dir.Buttons),
		"toggles", len(dir.Toggles),
	)

	var sinks events.Fanout

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT connection lost, events dropped until reconnect", "error", err)
		})
		sinks = append(sinks, events.NewMQTTSink(mqttClient))
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB, influxdb.Options{
			Site: cfg.Site.ID,
			OnError: func(err error) {
				log.Error("InfluxDB write error", "error", err)
			},
		})
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		sinks = append(sinks, events.NewInfluxSink(influxClient))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	knxdClient, err := knx.Connect(ctx, knx.KNXDConfig{Connection: cfg.KNX.Connection})
	if err != nil {
		return fmt.Errorf("connecting to knxd: %w", err)
	}
	defer func() {
		log.Info("closing knxd connection")
		if closeErr := knxdClient.Close(); closeErr != nil {
			log.Error("error closing knxd", "error", closeErr)
		}
	}()
	knxdClient.SetLogger(log)
	log.Info("connected to knxd", "url", cfg.KNX.Connection)

	gateway := knx.NewGateway(knxdClient, knx.GatewayConfig{
		ReadTimeout:  cfg.KNX.ReadTimeout,
		WriteTimeout: cfg.KNX.WriteTimeout,
	})

	translator, err := rocker.NewTranslator(rocker.TranslatorOptions{
		Store:            store,
		Bus:              gateway,
		Events:           eventSink(sinks),
		Logger:           log,
		SerializeToggles: cfg.Translator.SerializeToggles,
	})
	if err != nil {
		return fmt.Errorf("creating translator: %w", err)
	}

	manager := enocean.NewDeviceManager(log)
	manager.AddDeviceListener(translator)
	manager.AddAttributeListener(translator)
	if regErr := registerDevices(ctx, store, manager); regErr != nil {
		return regErr
	}

	if err := healthCheck(ctx, db, knxdClient, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if cfg.EnOcean.ListPorts {
		logSerialPorts(log)
	}

	link, err := enocean.OpenSerial(ctx, enocean.SerialConfig{
		Port:     cfg.EnOcean.Port,
		BaudRate: cfg.EnOcean.BaudRate,
	}, manager, log)
	if err != nil {
		// Degraded: no telegrams arrive until restart.
		log.Error("EnOcean gateway unavailable, running without radio", "port", cfg.EnOcean.Port, "error", err)
	} else {
		defer func() {
			log.Info("closing EnOcean link")
			if closeErr := link.Close(); closeErr != nil {
				log.Error("error closing EnOcean link", "error", closeErr)
			}
		}()
		log.Info("EnOcean gateway opened", "port", cfg.EnOcean.Port, "baud_rate", cfg.EnOcean.BaudRate)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if link != nil {
		stats := link.Stats()
		log.Info("EnOcean link statistics",
			"packets", stats.PacketsRx,
			"telegrams", stats.TelegramsRx,
			"crc_errors", stats.CRCErrors,
		)
	}
	knxStats := knxdClient.Stats()
	log.Info("knxd statistics",
		"telegrams_tx", knxStats.TelegramsTx,
		"telegrams_rx", knxStats.TelegramsRx,
		"reads_answered", knxStats.ReadsAnswered,
	)
	if influxClient != nil {
		influxStats := influxClient.Stats()
		log.Info("InfluxDB statistics",
			"points_queued", influxStats.PointsQueued,
			"write_errors", influxStats.WriteErrors,
		)
	}

	return nil
}

// rollbackMigration undoes the latest applied migration for -migrate-down.
func rollbackMigration(ctx context.Context, db *database.DB, log *logging.Logger) error {
	if err := db.MigrateDown(ctx); err != nil {
		return fmt.Errorf("rolling back migration: %w", err)
	}
	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	log.Info("migration rolled back", "applied", len(applied), "pending", len(pending))
	return nil
}

// eventSink returns nil when no sink is configured so the translator skips
// event construction entirely.
func eventSink(sinks events.Fanout) rocker.EventSink {
	if len(sinks) == 0 {
		return nil
	}
	return sinks
}

// deviceSource lists the devices known to the store.
type deviceSource interface {
	Devices(ctx context.Context) ([]enocean.Device, error)
}

func registerDevices(ctx context.Context, src deviceSource, manager *enocean.DeviceManager) error {
	devices, err := src.Devices(ctx)
	if err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}
	for _, d := range devices {
		if err := manager.RegisterDevice(ctx, d); err != nil {
			return fmt.Errorf("registering device %s: %w", d.ID.Hex(), err)
		}
	}
	return nil
}

func logSerialPorts(log *logging.Logger) {
	ports, err := enocean.ListPorts()
	if err != nil {
		log.Warn("listing serial ports failed", "error", err)
		return
	}
	if len(ports) == 0 {
		log.Warn("no serial ports found")
		return
	}
	for _, p := range ports {
		log.Info("found serial port", "port", p)
	}
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

type namedCheck struct {
	name    string
	checker healthChecker
}

func healthCheck(ctx context.Context, db *database.DB, knxdClient *knx.KNXDClient, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	checks := []namedCheck{
		{"database", db},
		{"knxd", knxdClient},
	}
	if mqttClient != nil {
		checks = append(checks, namedCheck{"mqtt", mqttClient})
	}
	if influxClient != nil {
		checks = append(checks, namedCheck{"influxdb", influxClient})
	}
	return runChecks(ctx, checks)
}

func runChecks(ctx context.Context, checks []namedCheck) error {
	for _, c := range checks {
		if err := c.checker.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return nil
}
