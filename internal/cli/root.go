// Package cli implements the caresync command tree.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "caresync",
	Short: "CareSync - cross-role clinical documentation drift detection",
	Long: `CareSync flags documentation inconsistencies between what different
clinical roles recorded about the same patient within a time window.

It does not diagnose, recommend treatment, or adjudicate clinical
correctness. Every alert it emits is traceable to real source notes:
identifiers returned by the reasoning service are verified and repaired,
quoted evidence must appear verbatim in the note text, and a deterministic
post-filter suppresses known false-positive classes.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("caresync v0.2.1")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.caresync/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads the config file, environment variables, and any local
// .env files carrying the oracle credential.
func initConfig() {
	loadDotEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(home + "/.caresync")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("CARESYNC")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadDotEnv looks for .env.local (then .env) in the working directory
// and its parent, matching where deployments keep the API key.
func loadDotEnv() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	for _, name := range []string{".env.local", ".env"} {
		for _, dir := range []string{cwd, filepath.Dir(cwd)} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				if err := godotenv.Load(path); err == nil {
					if verbose {
						fmt.Fprintf(os.Stderr, "Loaded environment from %s\n", path)
					}
					return
				}
			}
		}
	}
}
