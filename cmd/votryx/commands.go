package main

import (
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/votryx/votryx/internal/config"
	"github.com/votryx/votryx/internal/domain"
	"github.com/votryx/votryx/internal/driver"
	"github.com/votryx/votryx/internal/engine"
	"github.com/votryx/votryx/internal/logsink"
	"github.com/votryx/votryx/tui"
	"github.com/votryx/votryx/web/api"
)

const roundTo = 100 * time.Millisecond

var (
	flagURL       string
	flagVotes     int
	flagUnbounded bool
	flagHeadless  bool
)

func init() {
	runCmd.Flags().StringVar(&flagURL, "url", "", "voting page URL (overrides config)")
	runCmd.Flags().IntVar(&flagVotes, "votes", 0, "target vote count (overrides config)")
	runCmd.Flags().BoolVar(&flagUnbounded, "unbounded", false, "run until stopped")
	runCmd.Flags().BoolVar(&flagHeadless, "headless", true, "run browsers headless")

	configCmd.AddCommand(configValidateCmd, configInitCmd, configShowCmd)
	rootCmd.AddCommand(runCmd, panelCmd, serveCmd, configCmd)
}

// loadConfig reads the config file, overlays the profile if given and
// applies command line overrides.
func loadConfig(cmd *cobra.Command) (*config.RunConfiguration, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	if profilePath != "" {
		p, err := config.LoadProfile(profilePath)
		if err != nil {
			return nil, fmt.Errorf("loading profile %s: %w", profilePath, err)
		}
		cfg.ApplyProfile(p)
	}

	if cmd.Flags().Changed("url") {
		cfg.TargetURL = flagURL
	}
	if cmd.Flags().Changed("votes") {
		cfg.TargetVotes = flagVotes
	}
	if cmd.Flags().Changed("unbounded") {
		cfg.Unbounded = flagUnbounded
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = flagHeadless
	}

	return cfg, nil
}

// buildSinks assembles the configured log sinks. An unavailable sink is
// reported and skipped rather than blocking the run.
func buildSinks(cfg *config.RunConfiguration) *logsink.MultiSink {
	var sinks []logsink.Sink

	if cfg.Logs.Dir != "" {
		fs, err := logsink.NewFileSink(cfg.Logs.Dir)
		if err != nil {
			log.Printf("file log sink unavailable: %v", err)
		} else {
			sinks = append(sinks, fs)
		}
	}
	if cfg.Logs.Database != "" {
		ss, err := logsink.NewSQLiteSink(cfg.Logs.Database)
		if err != nil {
			log.Printf("sqlite log sink unavailable: %v", err)
		} else {
			sinks = append(sinks, ss)
		}
	}

	return logsink.NewMultiSink(sinks...)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a voting batch in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		sinks := buildSinks(cfg)
		defer sinks.Close()

		ctrl := engine.NewController(driver.NewChrome())
		ctrl.RegisterLogObserver(func(entry domain.LogEntry) {
			log.Printf("[%s] %s", entry.Level, entry.Message)
			sinks.Write(entry) //nolint:errcheck // MultiSink reports per-sink failures
		})

		if err := ctrl.Start(*cfg); err != nil {
			return err
		}

		summary := ctrl.Wait()
		if summary == nil {
			return fmt.Errorf("run did not produce a summary")
		}

		fmt.Printf("Run finished: %d votes, %d errors, %d batches in %s (%s)\n",
			summary.Stats.VoteCount, summary.Stats.ErrorCount,
			summary.Batches, summary.Duration.Round(roundTo), summary.Reason)

		if summary.Reason == domain.StopSustainedFailure {
			os.Exit(2)
		}
		return nil
	},
}

var panelCmd = &cobra.Command{
	Use:   "panel",
	Short: "Open the interactive control panel",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		sinks := buildSinks(cfg)
		defer sinks.Close()

		ctrl := engine.NewController(driver.NewChrome())
		ctrl.RegisterLogObserver(func(entry domain.LogEntry) {
			sinks.Write(entry) //nolint:errcheck // MultiSink reports per-sink failures
		})

		p := tea.NewProgram(tui.NewModel(ctrl, *cfg), tea.WithAltScreen())
		_, err = p.Run()
		return err
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		sinks := buildSinks(cfg)
		defer sinks.Close()

		ctrl := engine.NewController(driver.NewChrome())
		ctrl.RegisterLogObserver(func(entry domain.LogEntry) {
			sinks.Write(entry) //nolint:errcheck // MultiSink reports per-sink failures
		})

		srv := api.NewServer(ctrl, cfg.Web.Addr())
		srv.SetBaseConfig(*cfg)

		// Pick up config edits between runs; a run in flight keeps its copy.
		path := configPath
		if path == "" {
			path = config.DefaultConfigPath()
		}
		watcher, err := config.NewWatcher(path, func(next *config.RunConfiguration) {
			if err := next.Validate(); err != nil {
				log.Printf("ignoring invalid config update: %v", err)
				return
			}
			srv.SetBaseConfig(*next)
			log.Printf("configuration reloaded from %s", path)
		})
		if err != nil {
			log.Printf("config watcher unavailable: %v", err)
		} else {
			watcher.Start(cmd.Context())
			defer watcher.Stop()
		}

		log.Printf("serving on http://%s", cfg.Web.Addr())
		return srv.Start()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and manage the configuration file",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		fmt.Println("Configuration is valid.")
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultConfigPath()
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		fmt.Printf("Wrote default configuration to %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		data, err := toml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}
