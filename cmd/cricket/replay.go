package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/cricket/pkg/archive"
	"github.com/go-go-golems/cricket/pkg/contextmgr"
	"github.com/go-go-golems/cricket/pkg/eventstream"
	"github.com/go-go-golems/cricket/pkg/summarize"
	"github.com/go-go-golems/cricket/pkg/turns"
)

// transcript is the YAML input of the replay command: a session id and the
// turns to feed through it, oldest first.
type transcript struct {
	SessionID string           `yaml:"session_id"`
	Turns     []transcriptTurn `yaml:"turns"`
}

type transcriptTurn struct {
	Role          string `yaml:"role"`
	Content       string `yaml:"content"`
	HasAttachment bool   `yaml:"has_attachment"`
}

type replayOptions struct {
	transcriptPath string
	configPath     string
	budget         int
	budgetSet      bool
	protected      int
	protectedSet   bool
	useOpenAI      bool
	openAIModel    string
	archivePath    string
	quiet          bool
}

func newReplayCommand() *cobra.Command {
	opts := replayOptions{}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Feed a YAML transcript through a session and watch it compact",
		Long: `replay builds a session, adds the transcript's turns one by one, and
prints the compaction events (summaries, evictions, budget violations) as
they happen, followed by the final session stats. Summaries come from the
deterministic extractive summarizer unless --openai is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.budgetSet = cmd.Flags().Changed("budget")
			opts.protectedSet = cmd.Flags().Changed("protected-window")
			return runReplay(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.transcriptPath, "transcript", "", "YAML transcript to replay (required)")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "YAML config file, defaults apply when empty")
	cmd.Flags().IntVar(&opts.budget, "budget", 0, "token budget, overrides the config")
	cmd.Flags().IntVar(&opts.protected, "protected-window", 0, "protected newest turns, overrides the config")
	cmd.Flags().BoolVar(&opts.useOpenAI, "openai", false, "summarize with OpenAI (needs OPENAI_API_KEY)")
	cmd.Flags().StringVar(&opts.openAIModel, "openai-model", "", "OpenAI model for summaries")
	cmd.Flags().StringVar(&opts.archivePath, "archive-db", "", "SQLite file recording retired turns")
	cmd.Flags().BoolVar(&opts.quiet, "quiet", false, "suppress per-event lines")
	_ = cmd.MarkFlagRequired("transcript")
	return cmd
}

func runReplay(ctx context.Context, out io.Writer, opts replayOptions) error {
	tr, err := loadTranscript(opts.transcriptPath)
	if err != nil {
		return err
	}

	cfg := contextmgr.DefaultConfig()
	if opts.configPath != "" {
		cfg, err = contextmgr.LoadConfig(opts.configPath)
		if err != nil {
			return err
		}
	}
	if opts.budgetSet {
		cfg.TokenBudget = opts.budget
	}
	if opts.protectedSet {
		cfg.ProtectedWindow = opts.protected
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var summarizer summarize.Summarizer = summarize.Extractive{}
	if opts.useOpenAI {
		s, err := summarize.NewOpenAISummarizer(summarize.OpenAIConfig{
			APIKey: os.Getenv("OPENAI_API_KEY"),
			Model:  opts.openAIModel,
		})
		if err != nil {
			return errors.Wrap(err, "configure openai summarizer")
		}
		summarizer = s
	}

	sessionOpts := []contextmgr.SessionOption{contextmgr.WithSummarizer(summarizer)}
	if opts.archivePath != "" {
		dsn, err := archive.SQLiteDSNForFile(opts.archivePath)
		if err != nil {
			return err
		}
		store, err := archive.NewSQLiteStore(dsn)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		sessionOpts = append(sessionOpts, contextmgr.WithArchive(store))
	}

	// Ack-blocking delivery keeps event lines ordered with the turns that
	// caused them.
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64, BlockPublishUntilSubscriberAck: true},
		eventstream.NewWatermillLogger(log.With().Str("component", "replay").Logger()),
	)
	sink, err := eventstream.NewWatermillSink(pubsub, eventstream.DefaultTopic)
	if err != nil {
		return err
	}
	sessionOpts = append(sessionOpts, contextmgr.WithEvents(sink))

	messages, err := pubsub.Subscribe(ctx, eventstream.DefaultTopic)
	if err != nil {
		return errors.Wrap(err, "subscribe to compaction events")
	}
	eg, _ := errgroup.WithContext(ctx)
	eg.Go(func() error {
		for msg := range messages {
			var ev eventstream.Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				log.Warn().Err(err).Msg("undecodable event payload")
			} else if !opts.quiet {
				printEvent(out, ev)
			}
			msg.Ack()
		}
		return nil
	})

	sess, err := contextmgr.NewSession(tr.SessionID, cfg, sessionOpts...)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "replaying %d turns into session %s (budget %d tokens)\n",
		len(tr.Turns), sess.ID(), cfg.TokenBudget)

	for i, tt := range tr.Turns {
		_, err := sess.AddTurn(ctx, turns.Role(tt.Role), tt.Content, tt.HasAttachment)
		if err != nil {
			var bee *contextmgr.BudgetExceededError
			if errors.As(err, &bee) {
				log.Warn().Err(err).Int("turn", i+1).Msg("budget could not be met, replay continues")
				continue
			}
			return errors.Wrapf(err, "add transcript turn %d", i+1)
		}
	}

	st := sess.Stats()
	_ = pubsub.Close()
	if err := eg.Wait(); err != nil {
		return err
	}

	b, err := yaml.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "marshal stats")
	}
	fmt.Fprintf(out, "\nfinal stats:\n%s", b)
	return nil
}

func loadTranscript(path string) (*transcript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read transcript")
	}
	var tr transcript
	if err := yaml.Unmarshal(b, &tr); err != nil {
		return nil, errors.Wrap(err, "parse transcript")
	}
	if len(tr.Turns) == 0 {
		return nil, errors.New("transcript has no turns")
	}
	for i, tt := range tr.Turns {
		if !turns.Role(tt.Role).Valid() {
			return nil, errors.Errorf("transcript turn %d: unknown role %q", i+1, tt.Role)
		}
	}
	return &tr, nil
}

func printEvent(out io.Writer, ev eventstream.Event) {
	switch ev.Type {
	case eventstream.EventSummaryCreated:
		fmt.Fprintf(out, "[summary_created] id=%d covers=%d saved=%d\n",
			ev.SummaryID, len(ev.Covers), ev.TokensSaved)
	case eventstream.EventTurnsEvicted:
		fmt.Fprintf(out, "[turns_evicted] ids=%v\n", ev.EvictedIDs)
	case eventstream.EventBudgetExceeded:
		fmt.Fprintf(out, "[budget_exceeded] total=%d budget=%d\n",
			ev.TotalTokens, ev.TokenBudget)
	case eventstream.EventSessionCleared:
		fmt.Fprintf(out, "[session_cleared]\n")
	default:
		fmt.Fprintf(out, "[%s]\n", ev.Type)
	}
}
