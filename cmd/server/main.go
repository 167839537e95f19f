package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lexiqai/voice-agent/internal/config"
	"github.com/lexiqai/voice-agent/internal/telephony"
)

var noDotenv bool

var rootCmd = &cobra.Command{
	Use:   "voice-agent",
	Short: "Phone voice agent for Twilio media streams",
	Long: `Phone voice agent for Twilio media streams.

Answers Twilio's voice webhook with a <Connect><Stream> instruction, then
relays the caller's audio to Deepgram, generates replies with Gemini and
speaks them back through Murf.

Configuration is read from the environment and, unless --no-dotenv is set,
from a .env file in the working directory.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

var twimlCmd = &cobra.Command{
	Use:   "twiml",
	Short: "Print the call-setup TwiML",
	Long: `Print the TwiML returned to Twilio for an incoming call.

Requires PUBLIC_BASE_URL so the stream address can be derived. API keys
are not needed.

Examples:
  PUBLIC_BASE_URL=https://xyz.ngrok-free.dev voice-agent twiml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Read(!noDotenv)
		if err != nil {
			return err
		}
		streamURL, err := cfg.StreamURL()
		if err != nil {
			return err
		}
		body, err := telephony.BuildStreamTwiML(streamURL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(body))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noDotenv, "no-dotenv", false, "do not read a .env file")
	rootCmd.AddCommand(twimlCmd)
}

func loadConfig() (*config.Config, error) {
	if noDotenv {
		return config.LoadFromEnv()
	}
	return config.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
