package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/remote/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/server"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath string
	host       string
	port       string
	profileDir string
	logLevel   string
	dev        bool
)

// rootCmd starts the server
var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Remote automation server for the headless browser",
	Long: `Serves the remote automation protocol over a WebSocket at
/devtools/browser, with discovery routes under /json.

Configuration comes from the environment, then the optional --config
YAML file, then flags.`,
	SilenceUsage: true,
	RunE:         run,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the protocol version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "protocol", http.ProtocolVersion)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file, watched for log level changes")
	rootCmd.Flags().StringVar(&host, "host", "", "Listen host")
	rootCmd.Flags().StringVarP(&port, "port", "p", "", "Listen port")
	rootCmd.Flags().StringVar(&profileDir, "profile-dir", "", "Profile directory for browser contexts")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.Flags().BoolVar(&dev, "dev", false, "Development logging")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = host
	}
	if flags.Changed("port") {
		cfg.Server.Port = port
	}
	if flags.Changed("profile-dir") {
		cfg.Browser.ProfileDir = profileDir
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if flags.Changed("dev") {
		cfg.Logging.Development = dev
	}
	return cfg, nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if configPath != "" {
		err := config.Watch(ctx, configPath, logger.Named("config"), func(next *config.Config) {
			if err := logger.SetLevel(next.Logging.Level); err != nil {
				logger.Warn("Ignoring log level", zap.String("level", next.Logging.Level), zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("Config watch disabled", zap.Error(err))
		}
	}

	srv, err := server.NewServer(cfg, logger, server.Options{})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("Shutting down gracefully", zap.String("signal", sig.String()))
	case <-srv.Done():
		logger.Info("Browser closed, shutting down")
	case runErr = <-errChan:
		if runErr != nil {
			logger.Error("Server error", zap.Error(runErr))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Close(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
	}
	return runErr
}
