// Liftgate - vendor cloud garage door bridge
//
// This is the main entry point for the Liftgate daemon. Liftgate signs in
// to the vendor cloud, mirrors the account's garage doors and lamps into a
// local registry, polls on an adaptive cadence, and exposes the devices
// over a REST/WebSocket API and (optionally) an MQTT bridge.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/liftgate-io/liftgate/internal/api"
	mqttbridge "github.com/liftgate-io/liftgate/internal/bridges/mqtt"
	"github.com/liftgate-io/liftgate/internal/cloud"
	"github.com/liftgate-io/liftgate/internal/device"
	"github.com/liftgate-io/liftgate/internal/infrastructure/config"
	"github.com/liftgate-io/liftgate/internal/infrastructure/logging"
	"github.com/liftgate-io/liftgate/internal/infrastructure/mqtt"
	"github.com/liftgate-io/liftgate/internal/poller"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Liftgate",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Cloud session and client. The session performs the web-form login
	// lazily on first use, so startup does not block on the vendor.
	session := cloud.NewSession(cfg.Cloud, log)
	client := cloud.NewClient(session, cfg.Cloud, log)
	log.Info("cloud client initialised", "region", cfg.Cloud.Region)

	// Device registry mirrors the vendor account
	registry := device.NewRegistry(client, cfg)
	registry.SetLogger(log)

	// Poll scheduler drives registry refreshes on idle/burst cadence
	scheduler := poller.NewScheduler(cfg.Polling, registry.Refresh, log)
	registry.SetBurstFunc(scheduler.ResetBurst)

	// First sync. A failure is not fatal: the scheduler retries and the
	// API reports a "starting" health status until the mirror populates.
	if registry.Refresh(ctx) {
		log.Info("device registry populated", "devices", len(registry.Devices()))
	} else {
		log.Warn("initial device sync failed, scheduler will retry")
	}

	// API server
	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log,
		Registry:  registry,
		Scheduler: scheduler,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// MQTT bridge (optional)
	var bridge *mqttbridge.Bridge
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT, log)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", mqttClient.ClientID(),
		)

		bridge = mqttbridge.NewBridge(registry, mqttClient, byte(cfg.MQTT.QoS), log)
		if startErr := bridge.Start(); startErr != nil {
			return fmt.Errorf("starting MQTT bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			if stopErr := bridge.Stop(); stopErr != nil {
				log.Error("error stopping MQTT bridge", "error", stopErr)
			}
		}()
	} else {
		log.Info("MQTT bridge disabled")
	}

	// Registry events fan out to the WebSocket hub and the MQTT bridge
	registry.SetEventHandler(func(e device.Event) {
		server.BroadcastDeviceEvent(e)
		if bridge != nil {
			bridge.HandleEvent(e)
		}
	})

	// Start polling
	scheduler.Start(ctx)
	defer func() {
		log.Info("stopping poll scheduler")
		scheduler.Stop()
	}()

	// Start the API server
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"addr", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"tls", cfg.API.TLS.Enabled,
	)

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server
	// 2. Poll scheduler
	// 3. MQTT bridge and client (if enabled)

	log.Info("Liftgate stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LIFTGATE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LIFTGATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
