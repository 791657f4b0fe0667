package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pointercrate/demonlist/internal/adapters/repository"
	"github.com/pointercrate/demonlist/internal/simulate"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Steps      int
	Initial    int
	Seed       uint64
	CheckEvery int
	Backend    string
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}
	def := simulate.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run random list operations and check the invariants",
		Long: `Apply a random sequence of inserts, moves and removals to a scratch
store. After every operation the ranked positions must be exactly 1..n
and rejected operations must leave the list untouched. At the end the
time machine must reproduce every checkpoint and the live list.

The scratch store is in memory, or a temporary SQLite file with
--backend sqlite. The --db database is never touched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Steps, "steps", def.Steps, "number of random operations")
	cmd.Flags().IntVar(&opts.Initial, "initial", def.InitialDemons, "demons appended before the random phase")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", def.Seed, "random seed")
	cmd.Flags().IntVar(&opts.CheckEvery, "check-every", def.CheckEvery, "take a time machine checkpoint every N steps")
	cmd.Flags().StringVar(&opts.Backend, "backend", "memory", "scratch store (memory|sqlite)")

	return cmd
}

func runSimulate(cmd *cobra.Command, opts *SimulateOptions) error {
	ctx := cmd.Context()

	var store simulate.Store
	switch opts.Backend {
	case "memory":
		store = repository.NewMemoryStore()
	case "sqlite":
		dir, err := os.MkdirTemp("", "demonlist-sim-")
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create scratch directory", err)
		}
		defer os.RemoveAll(dir)
		st, err := repository.OpenSQLite(ctx, filepath.Join(dir, "sim.db"))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open scratch database", err)
		}
		defer st.Close()
		store = st
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid backend %q: must be memory or sqlite", opts.Backend))
	}

	cfg := simulate.DefaultConfig()
	cfg.Steps = opts.Steps
	cfg.InitialDemons = opts.Initial
	cfg.Seed = opts.Seed
	cfg.CheckEvery = opts.CheckEvery

	stats, err := simulate.New(store, cfg).Run(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("simulation failed (seed %d)", opts.Seed), err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(stats, func(w io.Writer) {
		fmt.Fprintf(w, "ok: %d steps (%d inserts, %d moves, %d removals, %d rejected)\n",
			stats.Steps, stats.Inserts, stats.Moves, stats.Removes, stats.Rejected)
		fmt.Fprintf(w, "%d checkpoints replayed, %d demons ranked, seed %d, %s\n",
			stats.Checkpoints, stats.FinalSize, stats.Seed, stats.Duration)
	})
}
