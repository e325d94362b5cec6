package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cricket",
	Short: "cricket keeps a conversation inside its token budget",
	Long: `cricket is the conversation context manager of the pinocchio family:
it scores turns, summarizes the forgettable ones, and evicts what is left
over, so a chat thread never outgrows its token budget.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initLogging(cmd)
	},
}

func initLogging(cmd *cobra.Command) error {
	level, _ := cmd.Flags().GetString("log-level")
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "parse log level %q", level)
	}
	zerolog.SetGlobalLevel(parsed)

	format, _ := cmd.Flags().GetString("log-format")
	useConsole := false
	switch format {
	case "json":
	case "console":
		useConsole = true
	case "", "auto":
		useConsole = isatty.IsTerminal(os.Stderr.Fd())
	default:
		return errors.Errorf("unknown log format %q, want auto, console or json", format)
	}

	logger := zerolog.New(os.Stderr)
	if useConsole {
		logger = zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = os.Stderr
		}))
	}
	log.Logger = logger.With().Timestamp().Logger()
	if withCaller, _ := cmd.Flags().GetBool("with-caller"); withCaller {
		log.Logger = log.Logger.With().Caller().Logger()
	}
	return nil
}

func main() {
	rootCmd.PersistentFlags().String("log-level", "info", "trace, debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "auto", "auto, console or json")
	rootCmd.PersistentFlags().Bool("with-caller", false, "add caller information to log lines")

	rootCmd.AddCommand(newReplayCommand())
	rootCmd.AddCommand(newCountCommand())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := rootCmd.ExecuteContext(ctx)
	cobra.CheckErr(err)
}
