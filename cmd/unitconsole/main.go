package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// globalFlags are the persistent flags every command accepts. Set flags win
// over the environment and the settings file.
type globalFlags struct {
	configPath string
	baseURL    string
	token      string
	userID     string
	logLevel   string
	logFormat  string
	language   string
}

func rootCmd() *cobra.Command {
	var gf globalFlags

	cmd := &cobra.Command{
		Use:           "unitconsole",
		Short:         "Operator console for AI orchestration journeys of monitored units",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&gf.configPath, "config", "", "settings file (default ~/.unitconsole/settings.yaml)")
	pf.StringVar(&gf.baseURL, "base-url", "", "backend origin")
	pf.StringVar(&gf.token, "token", "", "static bearer token")
	pf.StringVar(&gf.userID, "user-id", "", "user on whose behalf unit channels are negotiated")
	pf.StringVar(&gf.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&gf.logFormat, "log-format", "", "log format: text or json")
	pf.StringVar(&gf.language, "lang", "", "output language: en or hr")

	cmd.AddCommand(
		startCmd(&gf),
		watchCmd(&gf),
		flowsCmd(&gf),
		unitsCmd(&gf),
		profileCmd(&gf),
		serveCmd(&gf),
		mcpCmd(&gf),
		versionCmd(),
	)
	return cmd
}

// resolveConfig loads the layered configuration and applies changed flags.
func resolveConfig(cmd *cobra.Command, gf *globalFlags) (Config, error) {
	cfg, err := loadConfig(gf.configPath)
	if err != nil {
		return Config{}, err
	}
	flags := cmd.Flags()
	override := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	override("base-url", &cfg.BaseURL, gf.baseURL)
	override("token", &cfg.Token, gf.token)
	override("user-id", &cfg.UserID, gf.userID)
	override("log-level", &cfg.LogLevel, gf.logLevel)
	override("log-format", &cfg.LogFormat, gf.logFormat)
	override("lang", &cfg.Language, gf.language)
	return cfg, nil
}
