package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inkwell-ai/inkwell/pkg/client"
	"github.com/inkwell-ai/inkwell/pkg/session"
)

var rootCmd = &cobra.Command{
	Use:   "inkwell",
	Short: "inkwell is a streaming client for the document drafting assistant",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		return setupLogging(viper.GetString("log-level"))
	},
	SilenceUsage: true,
}

func init() {
	viper.SetEnvPrefix("INKWELL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.PersistentFlags().String("server", "http://localhost:5001", "Base URL of the drafting backend")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "Timeout for non-streaming requests")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("session", "", "Session id (a fresh one is generated when empty)")
	_ = viper.BindPFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newChatCommand())
	rootCmd.AddCommand(newChatsCommand())
	rootCmd.AddCommand(newHealthCommand())
}

func setupLogging(levelString string) error {
	level, err := zerolog.ParseLevel(levelString)
	if err != nil {
		return err
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)
	zerolog.SetGlobalLevel(level)
	return nil
}

func newClient() *client.Client {
	return client.NewClient(
		viper.GetString("server"),
		client.WithTimeout(viper.GetDuration("timeout")),
	)
}

// sessionID returns the configured session id, generating a fresh one when
// none was given. The generated id is printed so that later invocations can
// reuse it.
func sessionID(cmd *cobra.Command) session.ID {
	if s := viper.GetString("session"); s != "" {
		return session.ID(s)
	}
	id := session.NewID()
	fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", id)
	return id
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
