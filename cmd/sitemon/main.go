// Package main is the CLI entry point for sitemon.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eliteGoblin/focusd/site_mon/internal/infra"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

// Setting keys.
const (
	keyDataDir         = "data-dir"
	keyLogLevel        = "loglevel"
	keyRedirectURL     = "redirect-url"
	keyFallbackMessage = "fallback-message"
	keyInterval        = "interval"
	keyBudgetDaily     = "budget.daily"
	keyBudgetNightly   = "budget.nightly"
	keyNightStart      = "budget.night-start"
	keyNightEnd        = "budget.night-end"
	keyCalendarAPI     = "calendar.api"
	keyCalendarID      = "calendar.id"
	keyRuleFile        = "engine.rule-file"
	keyEngineCapacity  = "engine.capacity"
	keyRulesDocument   = "rules-file"
)

const (
	defaultRedirectURL     = "chrome-extension://sitemon/blocked.html"
	defaultFallbackMessage = "This site is blocked while you focus."
	historyRetention       = 30 * 24 * time.Hour
)

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sitemon",
	Short: "Website monitor - blocks distracting sites while you focus",
	Long: `sitemon blocks distracting websites while a focus session is active.

Focus starts when a calendar event matches a profile keyword, or manually
with 'sitemon focus start'. Short exceptions are granted from a daily budget.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file (default is $HOME/.sitemon.yaml)")
	rootCmd.PersistentFlags().String(keyDataDir, "", "data directory (default ~/.sitemon, or /var/lib/sitemon as root)")
	rootCmd.PersistentFlags().String(keyLogLevel, "info", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag(keyDataDir, rootCmd.PersistentFlags().Lookup(keyDataDir))
	_ = viper.BindPFlag(keyLogLevel, rootCmd.PersistentFlags().Lookup(keyLogLevel))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".sitemon")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("sitemon")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Warning: could not read settings: %v\n", err)
		}
	}
}

func setDefaults() {
	viper.SetDefault(keyRedirectURL, defaultRedirectURL)
	viper.SetDefault(keyFallbackMessage, defaultFallbackMessage)
	viper.SetDefault(keyInterval, 5*time.Minute)
	viper.SetDefault(keyBudgetDaily, 30*time.Minute)
	viper.SetDefault(keyBudgetNightly, 10*time.Minute)
	viper.SetDefault(keyNightStart, 21)
	viper.SetDefault(keyNightEnd, 6)
	viper.SetDefault(keyCalendarAPI, infra.DefaultCalendarAPI)
	viper.SetDefault(keyCalendarID, "primary")
	viper.SetDefault(keyRuleFile, "")
	viper.SetDefault(keyEngineCapacity, infra.DefaultEngineCapacity)
	viper.SetDefault(keyRulesDocument, "")
}
