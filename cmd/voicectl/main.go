// Command voicectl is a terminal client for the habitvoice server.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lukasbauer/habitvoice/internal/dispatch"
	"github.com/lukasbauer/habitvoice/internal/httpapi"
	"github.com/lukasbauer/habitvoice/internal/tts"
)

var (
	cfgFile   string
	serverURL string
	token     string
	verbose   bool
	cfg       clientConfig
)

var rootCmd = &cobra.Command{
	Use:   "voicectl",
	Short: "Talk to your habit tracker from the terminal",
	Long: `voicectl sends voice and text commands to a habitvoice server.

Configuration is read from $HOME/.config/habitvoice/config.yaml and
HABITVOICE_* environment variables (HABITVOICE_SERVER, HABITVOICE_TOKEN).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = loadConfig(cfgFile)
		if err != nil {
			return err
		}
		if serverURL != "" {
			cfg.Server = serverURL
		}
		if token != "" {
			cfg.Token = token
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/habitvoice/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "bearer token")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(listenCmd, chatCmd, statusCmd, historyCmd, watchCmd, tokenCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() *log.Logger {
	if verbose {
		return log.New(os.Stderr, "", log.LstdFlags)
	}
	return log.New(io.Discard, "", 0)
}

func requireToken() error {
	if cfg.Token == "" {
		return fmt.Errorf("no token: pass --token or set HABITVOICE_TOKEN (see voicectl token)")
	}
	return nil
}

// newDispatcher prints every reply and, with speak enabled, reads it aloud
// through ElevenLabs. The returned cleanup releases the audio device.
func newDispatcher(logger *log.Logger) (*dispatch.Dispatcher, func(), error) {
	term := terminal{out: os.Stdout}
	var speaker dispatch.Speaker = term
	cleanup := func() {}

	if cfg.Speak {
		if cfg.ElevenLabs.APIKey == "" {
			return nil, nil, fmt.Errorf("speak is enabled but no ElevenLabs API key is set")
		}
		player, err := newMalgoPlayer()
		if err != nil {
			return nil, nil, err
		}
		client := tts.NewElevenLabsClient(tts.ElevenLabsConfig{
			APIKey:     cfg.ElevenLabs.APIKey,
			VoiceID:    cfg.ElevenLabs.VoiceID,
			ModelID:    cfg.ElevenLabs.ModelID,
			Stability:  -1,
			Similarity: -1,
			SampleRate: cfg.ElevenLabs.SampleRate,
		})
		speaker = bothSpeakers{first: term, second: dispatch.NewTTSSpeaker(client, player)}
		cleanup = player.Close
	}
	return dispatch.New(speaker, term, term, logger), cleanup, nil
}

var chatCmd = &cobra.Command{
	Use:   "chat MESSAGE...",
	Short: "Send a typed message",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireToken(); err != nil {
			return err
		}
		d, cleanup, err := newDispatcher(newLogger())
		if err != nil {
			return err
		}
		defer cleanup()

		env, err := newAPIClient(cfg.Server, cfg.Token).Chat(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		d.Dispatch(cmd.Context(), &env)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show speech model readiness",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := newAPIClient(cfg.Server, cfg.Token).Status(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "whisper enabled: %v\n", st.WhisperEnabled)
		fmt.Fprintf(out, "model ready:     %v\n", st.Ready)
		if st.Model != "" {
			fmt.Fprintf(out, "model:           %s on %s\n", st.Model, st.Device)
		}
		if st.Error != nil {
			fmt.Fprintf(out, "error:           %s\n", *st.Error)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print recent chat history",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := requireToken(); err != nil {
			return err
		}
		msgs, err := newAPIClient(cfg.Server, cfg.Token).History(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, m := range msgs {
			who := "assistant"
			if m.IsUser {
				who = "you"
			}
			fmt.Fprintf(out, "[%s] %s: %s\n", m.Timestamp.Local().Format("Jan 2 15:04"), who, m.Content)
		}
		return nil
	},
}

var (
	tokenSecret string
	tokenUser   string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development token signed with the server's JWT secret",
	RunE: func(cmd *cobra.Command, _ []string) error {
		secret := tokenSecret
		if secret == "" {
			secret = os.Getenv("JWT_SECRET")
		}
		tok, exp, err := httpapi.IssueToken(secret, tokenUser, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Local().Format(time.RFC1123))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "JWT secret (default $JWT_SECRET)")
	tokenCmd.Flags().StringVar(&tokenUser, "user", "dev-user", "user ID to embed")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
