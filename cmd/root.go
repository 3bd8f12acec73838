package cmd

import (
	"context"
	"os"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	log    = logging.Logger("cmd")
	tracer = otel.Tracer("cmd")
)

var rootCmd = &cobra.Command{
	Use:   "sfdump",
	Short: "Export, verify and reconcile CRM data and documents",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			logging.SetAllLoggers(logging.LevelError)
			if err := logging.SetLogLevelRegex("sfapi|export/.*|cmd", level); err != nil {
				log.Warnf("invalid log level %q: %v", level, err)
			}
		}
		span := trace.SpanFromContext(cmd.Context())
		setSpanAttributes(cmd, span)
	},
	// We handle errors ourselves when they're returned from ExecuteContext.
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	cobra.EnableTraverseRunHooks = true
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)

	cobra.OnInitialize(initRootFlags, initConfig)
}

var cfgFilePath string

func initRootFlags() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFilePath,
		"config",
		"",
		"Path to the config file",
	)

	rootCmd.PersistentFlags().String(
		"export-root",
		".",
		"Directory the export lives under",
	)
	cobra.CheckErr(viper.BindPFlag("export.root", rootCmd.PersistentFlags().Lookup("export-root")))

	rootCmd.PersistentFlags().Int(
		"workers",
		8,
		"Concurrent downloads during bulk dump passes",
	)
	cobra.CheckErr(viper.BindPFlag("export.workers", rootCmd.PersistentFlags().Lookup("workers")))

	rootCmd.PersistentFlags().String(
		"instance-url",
		"",
		"Base URL of the org to talk to",
	)
	cobra.CheckErr(viper.BindPFlag("api.instance_url", rootCmd.PersistentFlags().Lookup("instance-url")))

	rootCmd.PersistentFlags().String(
		"token",
		"",
		"Access token for the org",
	)
	cobra.CheckErr(viper.BindPFlag("api.token", rootCmd.PersistentFlags().Lookup("token")))

	rootCmd.PersistentFlags().String(
		"api-version",
		"",
		"REST API version (e.g. v59.0)",
	)
	cobra.CheckErr(viper.BindPFlag("api.version", rootCmd.PersistentFlags().Lookup("api-version")))

	rootCmd.PersistentFlags().String(
		"log-level",
		"",
		"Log level for pipeline loggers (debug, info, warn, error)",
	)
}

func initConfig() {
	// environment variables mirror config keys: export.root -> SFDUMP_EXPORT_ROOT
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetEnvPrefix("SFDUMP")

	viper.SetConfigName("sfdump-config")
	viper.SetConfigType("yaml")

	// if no config file was provided, look in the current directory then in
	// $XDG_CONFIG_HOME/sfdump/
	if cfgFilePath == "" {
		viper.AddConfigPath(".")
		if configDir, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(configDir + "/sfdump")
		}
	} else {
		viper.SetConfigFile(cfgFilePath)
	}
	if err := viper.ReadInConfig(); err == nil {
		log.Debugf("using config file %s", viper.ConfigFileUsed())
	}
}

// ExecuteContext adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func ExecuteContext(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "cli")
	defer span.End()

	return rootCmd.ExecuteContext(ctx)
}

// commandPath returns the command path for a `cobra.Command`. Where
// `cmd.CommandPath()` returns a concatenated string, this returns a slice of
// the individual commands in the path.
func commandPath(c *cobra.Command) []string {
	var path []string
	if c.HasParent() {
		path = commandPath(c.Parent())
	}
	path = append(path, c.Name())
	return path
}

// setSpanAttributes sets attributes on the provided span based on the command
// and its flags. It will set:
//   - command.path: the full path of the command as a string slice
//   - command.flag.<flag-name>: the value of each flag, as the appropriate type
func setSpanAttributes(cmd *cobra.Command, span trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.StringSlice("command.path", commandPath(cmd)),
	}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		var err error
		k := "command.flag." + f.Name

		var attr attribute.KeyValue
		switch f.Value.Type() {
		case "bool":
			var v bool
			v, err = cmd.Flags().GetBool(f.Name)
			attr = attribute.Bool(k, v)
		case "int":
			var v int
			v, err = cmd.Flags().GetInt(f.Name)
			attr = attribute.Int(k, v)
		case "int64":
			var v int64
			v, err = cmd.Flags().GetInt64(f.Name)
			attr = attribute.Int64(k, v)
		case "string":
			var v string
			v, err = cmd.Flags().GetString(f.Name)
			attr = attribute.String(k, v)
		case "stringSlice":
			var v []string
			v, err = cmd.Flags().GetStringSlice(f.Name)
			attr = attribute.StringSlice(k, v)
		default:
			attr = attribute.String(k, f.Value.String())
		}
		if err != nil {
			log.Warnf("getting flag %q value %v for telemetry: %v", f.Name, f.Value, err)
			return
		}

		attrs = append(attrs, attr)
	})

	span.SetAttributes(attrs...)
}
