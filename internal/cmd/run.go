package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/dsstar/internal/config"
	"github.com/Iron-Ham/dsstar/internal/event"
	"github.com/Iron-Ham/dsstar/internal/orchestrator"
	"github.com/Iron-Ham/dsstar/internal/session"
)

var runCmd = &cobra.Command{
	Use:   "run --query <question> <path>...",
	Short: "Answer a question about data files",
	Long: `Run a DS-STAR session over the given data files and print the answer.

Paths may be files, directories (walked recursively) or glob patterns such
as "data/**/*.csv". Only files with an allowed extension are analyzed.

Progress is written to stderr; the answer is written to stdout in the
selected output format.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("query", "q", "", "question to answer (required)")
	runCmd.Flags().StringP("output", "o", "", "output format: text, json or yaml")
	runCmd.Flags().Int("max-iterations", 0, "maximum plan/execute/verify rounds")
	runCmd.Flags().Int("max-debug-attempts", 0, "maximum executions per iteration")
	runCmd.Flags().Float64("timeout", 0, "program execution timeout in seconds (fractions allowed)")
	runCmd.Flags().String("answer-format", "", "instruction for formatting the final answer")
	runCmd.Flags().Bool("quiet", false, "do not print progress")
	_ = runCmd.MarkFlagRequired("query")

	_ = viper.BindPFlag("session.output_format", runCmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("session.max_iterations", runCmd.Flags().Lookup("max-iterations"))
	_ = viper.BindPFlag("session.max_debug_attempts", runCmd.Flags().Lookup("max-debug-attempts"))
	_ = viper.BindPFlag("executor.timeout_seconds", runCmd.Flags().Lookup("timeout"))
	_ = viper.BindPFlag("session.answer_format", runCmd.Flags().Lookup("answer-format"))
}

func runRun(cmd *cobra.Command, args []string) error {
	query, _ := cmd.Flags().GetString("query")
	quiet, _ := cmd.Flags().GetBool("quiet")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg, true)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	bus := event.NewBus(event.WithLogger(logger))
	if !quiet {
		bus.SubscribeAll(newProgressRenderer(cmd.ErrOrStderr()).Handle)
	}

	s, err := orchestrator.FromConfig(cfg, logger, orchestrator.WithEventBus(bus))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state, err := s.RunWithState(ctx, query, args, nil)
	if err != nil {
		return err
	}
	return writeResult(cmd.OutOrStdout(), state, cfg.Session.OutputFormat)
}

// writeResult prints the answer as plain text or the whole session as JSON
// or YAML.
func writeResult(w io.Writer, state *session.State, format string) error {
	switch format {
	case "", "text":
		_, err := fmt.Fprintln(w, strings.TrimRight(state.FinalAnswer, "\n"))
		return err
	case "json":
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(state.Export()); err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (valid: %s)", format, strings.Join(config.ValidOutputFormats(), ", "))
	}
}
