package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rtmpscout/pkg/config"
	"rtmpscout/pkg/logger"
)

var (
	configPath string
	logLevel   string

	cfg *config.Config
	log *zap.SugaredLogger
)

// Searched in order when --config is not given.
var defaultConfigPaths = []string{
	"configs/config.yaml",
	"./configs/config.yaml",
	"/etc/rtmpscout/config.yaml",
	"config.yaml",
}

var rootCmd = &cobra.Command{
	Use:   "rtmpscout",
	Short: "Sniff RTMP ingest credentials and push them to OBS",
	Long: `rtmpscout watches network traffic for RTMP connect, releaseStream and
publish commands, recovers the ingest server URL and stream key, and applies
them to OBS Studio over obs-websocket.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		log = logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format).Sugar()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")

	rootCmd.AddCommand(runCmd, interfacesCmd, tokenCmd, replayCmd)
}

// loadConfig reads an explicit path strictly; otherwise the first default
// path that loads wins and defaults are used when none does.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		return config.Load(path)
	}

	for _, p := range defaultConfigPaths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		loaded, err := config.Load(p)
		if err != nil {
			return nil, err
		}
		return loaded, nil
	}

	return config.Load("")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
