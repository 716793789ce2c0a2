package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/caresync/caresync/internal/model"
)

// loadConfig resolves the effective configuration: defaults, then config
// file, then CARESYNC_* environment variables. The oracle credential only
// ever comes from the environment.
func loadConfig() *model.Config {
	cfg := model.DefaultConfig()

	if path := viper.GetString("notes.path"); path != "" {
		cfg.Notes.Path = path
	}
	if m := viper.GetString("oracle.model"); m != "" {
		cfg.Oracle.Model = m
	}
	if u := viper.GetString("oracle.base_url"); u != "" {
		cfg.Oracle.BaseURL = u
	}
	if d := viper.GetDuration("oracle.timeout"); d > 0 {
		cfg.Oracle.Timeout = d
	}
	if n := viper.GetInt("oracle.max_tokens"); n > 0 {
		cfg.Oracle.MaxTokens = n
	}
	if n := viper.GetInt("detection.concurrency"); n > 0 {
		cfg.Detection.Concurrency = n
	}
	if r := viper.GetFloat64("detection.requests_per_second"); r > 0 {
		cfg.Detection.RequestsPerSecond = r
	}
	if b := viper.GetInt("detection.burst"); b > 0 {
		cfg.Detection.Burst = b
	}
	if d := viper.GetDuration("cache.max_age"); d > 0 {
		cfg.Cache.MaxAge = d
	}
	if viper.IsSet("cache.enabled") {
		cfg.Cache.Enabled = viper.GetBool("cache.enabled")
	}
	if addr := viper.GetString("server.addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	cfg.Output.Verbose = verbose

	cfg.Oracle.APIKey = os.Getenv("OPENAI_API_KEY")
	return cfg
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CareSync configuration",
	Long: `Manage CareSync configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (CARESYNC_*, OPENAI_API_KEY)
3. Config file (~/.caresync/config.yaml)
4. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		if configFile := viper.ConfigFileUsed(); configFile != "" {
			fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", configFile)
		} else {
			fmt.Fprintf(os.Stderr, "No configuration file found (using defaults)\n\n")
		}

		yamlData, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Println(string(yamlData))

		if cfg.Oracle.APIKey == "" {
			fmt.Println("Warning: OPENAI_API_KEY is not set; alert detection is disabled.")
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default configuration file",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("error finding home directory: %w", err)
		}

		configDir := home + "/.caresync"
		configPath := configDir + "/config.yaml"

		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists: %s\nUse 'caresync config show' to view it, or delete it first to recreate", configPath)
		}

		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}

		yamlData, err := yaml.Marshal(model.DefaultConfig())
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}

		header := `# CareSync Configuration File
#
# Configuration hierarchy (highest to lowest priority):
#   1. CLI flags
#   2. Environment variables (CARESYNC_*)
#   3. This config file
#   4. Built-in defaults
#
# The oracle API key is never read from this file:
#   export OPENAI_API_KEY=sk-...

`
		if err := os.WriteFile(configPath, append([]byte(header), yamlData...), 0644); err != nil {
			return fmt.Errorf("error writing config: %w", err)
		}

		fmt.Printf("Created default configuration: %s\n", configPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
