// Package commands provides the CLI command implementations for adm.
package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AshkanYarmoradi/go-adm/cli/styles"
	"github.com/AshkanYarmoradi/go-adm/cli/ui"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// EnvPrefix prefixes the environment variables bound to flags,
// e.g. ADM_GATEWAY_URL for --gateway-url.
const EnvPrefix = "ADM"

// Keys of the settings shared by every command.
const (
	keyConfig       = "config"
	keyGatewayURL   = "gateway.url"
	keyGatewayToken = "gateway.token"
	keyCacheDriver  = "cache.driver"
	keyCacheURL     = "cache.url"
	keyCacheCodec   = "cache.codec"
	keyVerbose      = "verbose"
	keyNoColor      = "no-color"
)

// newViper returns a viper instance reading ADM_* environment variables.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// NewRootCommand creates the root command for the adm CLI
func NewRootCommand() *cobra.Command {
	v := newViper()

	rootCmd := &cobra.Command{
		Use:   "adm",
		Short: "Inspect data models, aggregations and caches",
		Long: ui.Banner() + `

adm talks to the configured data layer through the same gateway, cache and
aggregation code applications use.

` + styles.Title.Render("Quick Start:") + `

  ` + styles.Code.Render("adm init") + `                 Create adm.yaml
  ` + styles.Code.Render("adm aggs response.json") + `   Render the aggregations of a search response
  ` + styles.Code.Render("adm get article 42") + `       Load a model
  ` + styles.Code.Render("adm diagnose") + `             Check gateway and cache`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if v.GetBool(keyNoColor) {
				styles.DisableColors()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String(keyConfig, "", "Path to adm.yaml (default: searched from the working directory up)")
	flags.String("gateway-url", "", "Data layer base URL")
	flags.String("gateway-token", "", "Bearer token for the data layer")
	flags.String("cache-driver", "", "Cache driver (memory, redis, postgres)")
	flags.String("cache-url", "", "Cache connection URL")
	flags.String("cache-codec", "", "Cache codec (json, msgpack, protobuf)")
	flags.BoolP(keyVerbose, "v", false, "Log gateway and cache activity")
	flags.Bool(keyNoColor, false, "Disable colored output")

	for key, flag := range map[string]string{
		keyConfig:       keyConfig,
		keyGatewayURL:   "gateway-url",
		keyGatewayToken: "gateway-token",
		keyCacheDriver:  "cache-driver",
		keyCacheURL:     "cache-url",
		keyCacheCodec:   "cache-codec",
		keyVerbose:      keyVerbose,
		keyNoColor:      keyNoColor,
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(NewInitCommand())
	rootCmd.AddCommand(NewAggsCommand())
	rootCmd.AddCommand(NewGetCommand(v))
	rootCmd.AddCommand(NewSearchCommand(v))
	rootCmd.AddCommand(NewCacheCommand(v))
	rootCmd.AddCommand(NewDiagnoseCommand(v))
	rootCmd.AddCommand(NewVersionCommand(Version, Commit, BuildDate))

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styles.FormatError(err.Error()))
		return err
	}

	return nil
}
