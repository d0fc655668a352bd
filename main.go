package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"barcode-sink-go/internal/config"
	"barcode-sink-go/internal/sink"
)

// licenseEnvVar names the environment variable holding the decoder
// pool's license key. A key is a secret and does not belong in the
// config file.
const licenseEnvVar = "BARCODE_SINK_LICENSE_KEY"

// Version information - set by linker flags during build.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

type cmdFlags struct {
	host       string
	client     string
	enableDBR  bool
	configPath string
}

var flags cmdFlags

var rootCmd = &cobra.Command{
	Use:   "barcode-sink",
	Short: "Sink node for the camera-capture barcode ROI pipeline",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(flags)
	},
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (built %s)", Version, BuildTime)
	rootCmd.Flags().StringVar(&flags.host, "host", "", "listen bind address (default from config or 0.0.0.0)")
	rootCmd.Flags().StringVar(&flags.client, "client", "", "producer IP used for ACK dial (default from config or 192.168.0.176)")
	rootCmd.Flags().BoolVar(&flags.enableDBR, "dbr", false, "enable the decoder pool")
	rootCmd.Flags().StringVar(&flags.configPath, "config", "config/camera_config.json", "path to the JSON configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(f cmdFlags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: config load error: %v (using defaults)\n", err)
	}
	if f.host != "" {
		cfg.ListenHost = f.host
	}
	if f.client != "" {
		cfg.CameraNodeIP = f.client
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("main: build logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	log.Infow("starting barcode sink", "version", Version, "build_time", BuildTime,
		"listen_host", cfg.ListenHost, "camera_node_ip", cfg.CameraNodeIP, "dbr", f.enableDBR)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infow("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	s, err := sink.New(cfg,
		sink.WithLogger(log),
		sink.WithDecoder(f.enableDBR),
		sink.WithLicenseKey(os.Getenv(licenseEnvVar)),
	)
	if err != nil {
		return fmt.Errorf("main: failed to start sink: %w", err)
	}

	runErr := s.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Errorw("sink run error", "error", runErr)
	}

	if err := s.Shutdown(); err != nil {
		log.Warnw("shutdown reported errors", "error", err)
	}

	return nil
}
