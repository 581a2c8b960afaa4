package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/loopwidget/planscope/internal/utils"
	"github.com/spf13/cobra"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `	       _
	 _ __ | | __ _ _ __  ___  ___ ___  _ __   ___
	| '_ \| |/ _' | '_ \/ __|/ __/ _ \| '_ \ / _ \
	| |_) | | (_| | | | \__ \ (_| (_) | |_) |  __/
	| .__/|_|\__,_|_| |_|___/\___\___/| .__/ \___|
	|_|                               |_|

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "planscope",
	Short: "Subscription plan resolver and pricing engine for storefront products.",
	Long: LOGO + `planscope loads the selling plans of storefront products from the product JSON
document, the product page or the storefront API, prices them, tracks plan changes
in a local database and serves the subscription widget state over HTTP.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.planscope.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("store", "", "Storefront base URL (overrides store.url from the config file)")
	rootCmd.PersistentFlags().String("dbpath", "", "Path to SQLite DB file (default: ~/.config/planscope/planscope.sqlite)")
}

// initConfig reads in config file and ENV variables if set.
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
		viper.SetConfigName(".planscope")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("planscope")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setConfigDefaults()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.planscope.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				utils.Log.Debugf("Could not create config file: %s", err)
			}
		}
	}

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}

func setConfigDefaults() {
	viper.SetDefault("store.url", "")
	viper.SetDefault("store.storefront_token", "")
	viper.SetDefault("store.api_version", "2024-01")
	viper.SetDefault("http.retries", 3)
	viper.SetDefault("http.timeout", "15s")
	viper.SetDefault("bundles.heuristic", true)
	viper.SetDefault("bundles.quantities", map[string]int{})
	viper.SetDefault("display.min_fraction_digits", 0)
	viper.SetDefault("display.max_fraction_digits", 0)
	viper.SetDefault("widget.default_mode", "ONE_TIME")
	viper.SetDefault("cache.redis_addr", "")
	viper.SetDefault("cache.redis_password", "")
	viper.SetDefault("cache.redis_db", 0)
	viper.SetDefault("cache.ttl", "5m")
	viper.SetDefault("server.username", "")
	viper.SetDefault("server.password", "")
}
