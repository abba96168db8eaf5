package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/fwojciec/chorus"
	bt "github.com/fwojciec/chorus/bubbletea"
	chorushttp "github.com/fwojciec/chorus/http"
	chorusjson "github.com/fwojciec/chorus/json"
	chorusprom "github.com/fwojciec/chorus/prometheus"
	"github.com/fwojciec/chorus/sse"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type askOptions struct {
	models     []string
	system     string
	maxTokens  int
	plain      bool
	asJSON     bool
	save       string
	metricsOut string
}

func newAskCmd(a *app) *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Send one prompt to many models and stream the answers",
		Long: `Send one prompt to many models and stream the answers side by side.

Models may be names or glob patterns ('claude-*'). Without -m every model the
server offers is asked. A prompt of "-" is read from stdin.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(args, a.stdin)
			if err != nil {
				return err
			}
			return runAsk(cmd, a.cfg, prompt, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.models, "model", "m", nil, "Model name or glob pattern (repeatable)")
	cmd.Flags().StringVar(&opts.system, "system", "", "System prompt")
	cmd.Flags().IntVar(&opts.maxTokens, "max-tokens", 0, "Maximum output tokens per model (0: backend default)")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Line-oriented output instead of the TUI")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the final result as JSON")
	cmd.Flags().StringVar(&opts.save, "save", "", "Write the final result as JSON to this path")
	cmd.Flags().StringVar(&opts.metricsOut, "metrics-out", "", "Write session metrics in Prometheus text format to this path")
	cmd.MarkFlagsMutuallyExclusive("plain", "json")

	return cmd
}

func readPrompt(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read prompt: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return strings.Join(args, " "), nil
}

func runAsk(cmd *cobra.Command, cfg chorus.Config, prompt string, opts askOptions) error {
	interactive := !opts.plain && !opts.asJSON
	log, err := newLogger(cfg.Logging, interactive)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()
	client := chorushttp.NewClient(cfg.Client.URL)

	patterns := opts.models
	if len(patterns) == 0 {
		patterns = []string{"*"}
	}
	req := chorus.Request{
		Prompt:       prompt,
		SystemPrompt: opts.system,
		Models:       patterns,
		MaxTokens:    opts.maxTokens,
	}
	if err := req.Validate(); err != nil {
		return err
	}

	available, err := client.Models(ctx)
	if err != nil {
		log.Warn("list models", zap.Error(err))
	}
	requested := expandModels(patterns, available)

	sessionOpts := []chorus.Option{
		chorus.WithWindow(cfg.Client.Window),
		chorus.WithFlushInterval(cfg.Client.FlushInterval),
		chorus.WithEmptyAsFailure(cfg.Client.EmptyAsFailure),
		chorus.WithMaxBufferBytes(cfg.Client.MaxBufferBytes),
		chorus.WithLogger(log),
		chorus.WithReconciler(settle(log)),
	}
	var reg *prometheus.Registry
	if opts.metricsOut != "" {
		reg = prometheus.NewRegistry()
		sessionOpts = append(sessionOpts, chorus.WithObserver(chorusprom.NewCollector("chorus", reg)))
	}
	parser := sse.NewParser(sse.WithMalformedHandler(func(raw string, err error) {
		log.Debug("malformed frame", zap.String("raw", raw), zap.Error(err))
	}))
	transport := client.Transport(req)

	var res chorus.SessionResult
	switch {
	case interactive:
		res, err = askTUI(ctx, prompt, requested, parser, transport, sessionOpts)
	case opts.asJSON:
		res, err = chorus.NewSession(requested, parser, sessionOpts...).Run(ctx, transport)
	default:
		res, err = askPlain(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), requested, parser, transport, sessionOpts)
	}
	if err != nil {
		return err
	}

	if opts.asJSON {
		data, err := chorusjson.MarshalResult(res)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(data)); err != nil {
			return err
		}
	}
	if opts.save != "" {
		if err := chorusjson.Save(opts.save, res); err != nil {
			return fmt.Errorf("save result: %w", err)
		}
	}
	if reg != nil {
		if err := prometheus.WriteToTextfile(opts.metricsOut, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	if res.Outcome != chorus.OutcomeCompleted {
		return fmt.Errorf("session %s: %s", res.Outcome, res.Reason)
	}
	return nil
}

func askTUI(ctx context.Context, prompt string, requested []string, parser chorus.FrameParser, transport chorus.Transport, opts []chorus.Option) (chorus.SessionResult, error) {
	run := func(ctx context.Context, onSnapshot func(chorus.Snapshot), onFirst func(string)) (chorus.SessionResult, error) {
		all := append(slices.Clone(opts),
			chorus.WithSnapshotHandler(onSnapshot),
			chorus.WithFirstActivityHandler(onFirst),
		)
		return chorus.NewSession(requested, parser, all...).Run(ctx, transport)
	}

	final, err := bt.Run(ctx, bt.New(run, requested, chorus.DefaultTheme(), bt.WithPrompt(prompt), bt.WithContext(ctx)))
	if err != nil {
		return chorus.SessionResult{}, fmt.Errorf("TUI: %w", err)
	}
	if err := final.Err(); err != nil {
		return chorus.SessionResult{}, err
	}
	res, ok := final.Result()
	if !ok {
		return chorus.SessionResult{}, errors.New("quit before the session finished")
	}
	return res, nil
}

func askPlain(ctx context.Context, stdout, stderr io.Writer, requested []string, parser chorus.FrameParser, transport chorus.Transport, opts []chorus.Option) (chorus.SessionResult, error) {
	p := newProgressPrinter(stderr)
	all := append(slices.Clone(opts),
		chorus.WithSnapshotHandler(p.snapshot),
		chorus.WithFirstActivityHandler(p.first),
	)
	res, err := chorus.NewSession(requested, parser, all...).Run(ctx, transport)
	if err != nil {
		return res, err
	}
	printResult(stdout, stderr, res)
	return res, nil
}

// settle reports which channels consumed backend capacity once the session is
// final.
func settle(log *zap.Logger) chorus.Reconciler {
	return chorus.ReconcileFunc(func(_ context.Context, res chorus.SessionResult) error {
		log.Info("settle session",
			zap.String("session_id", res.SessionID),
			zap.Stringer("outcome", res.Outcome),
			zap.Strings("billable", res.Billable()),
			zap.Strings("not_started", res.NotStarted))
		return nil
	})
}
