package main

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/observatory-remote/internal/config"
	"github.com/signalsfoundry/observatory-remote/internal/logging"
)

// app carries what PersistentPreRunE resolves for the subcommands.
type app struct {
	v   *viper.Viper
	cfg *config.Config
	log logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "skyremote",
		Short: "Remote client for an astrophotography imaging server",
		Long: `skyremote talks to an imaging server on behalf of an observer.

It converts between sky coordinate systems, reports progress of a running
sequence tree, and runs capture, filter and focuser flows with settle-waits.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $XDG_CONFIG_HOME/skyremote/config.yaml)")
	flags.String("env-file", ".env", "dotenv file loaded before reading the environment")
	flags.Float64("lat", 0, "observer latitude in degrees, north positive")
	flags.Float64("lon", 0, "observer longitude in degrees, east positive")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text or json)")

	_ = a.v.BindPFlag("config", flags.Lookup("config"))
	_ = a.v.BindPFlag("observer.latitude", flags.Lookup("lat"))
	_ = a.v.BindPFlag("observer.longitude", flags.Lookup("lon"))
	_ = a.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("logging.format", flags.Lookup("log-format"))

	root.AddCommand(
		newSkyCmd(a),
		newRadecCmd(a),
		newConvertCmd(a),
		newSequenceCmd(a),
		newSimulateCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	config.SetDefaults(a.v)
	config.BindEnv(a.v)

	if cfgFile := a.v.GetString("config"); cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return err
		}
	} else {
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
		a.v.AddConfigPath(config.ConfigDir())
		a.v.AddConfigPath(".")
		// Read config file if it exists (ignore error if not found)
		_ = a.v.ReadInConfig()
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cmd.ErrOrStderr(),
	})
	return nil
}
