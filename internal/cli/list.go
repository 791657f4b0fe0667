package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	service "github.com/pointercrate/demonlist/internal/app"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	At string
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the ranked list, live or at a past instant",
		Long: `Show the ranked list with sections and scores.

With --at the list is rebuilt from the position log as it stood at that
instant. Entries that have moved since carry a "Currently" note.

Examples:
  demonlistctl list
  demonlistctl list --at 2024-01-01T00:00:00Z --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var at *time.Time
			if opts.At != "" {
				t, err := time.Parse(time.RFC3339, opts.At)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --at, want RFC3339", err)
				}
				at = &t
			}
			return withService(cmd.Context(), opts.RootOptions, func(svc *service.Service) error {
				listing, err := svc.Listed(cmd.Context(), at)
				if err != nil {
					return domainError("failed to load list", err)
				}
				out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
				return out.Success(listing, func(w io.Writer) { renderListing(w, listing) })
			})
		},
	}

	cmd.Flags().StringVar(&opts.At, "at", "", "RFC3339 instant to show the list at")

	return cmd
}

func renderListing(w io.Writer, listing service.Listing) {
	if !listing.Live {
		fmt.Fprintln(w, mutedStyle.Render("as of "+listing.At.Format(time.RFC3339)))
	}
	if len(listing.Demons) == 0 {
		fmt.Fprintln(w, "no ranked demons")
		return
	}
	t := newTable("POS", "ID", "NAME", "SECTION", "SCORE", "MIN", "NOTE")
	for _, d := range listing.Demons {
		t.addRow(
			strconv.Itoa(d.Position),
			strconv.FormatInt(d.ID, 10),
			d.Name,
			d.Section.String(),
			strconv.FormatFloat(d.Score, 'f', 2, 64),
			strconv.FormatFloat(d.MinimalScore, 'f', 2, 64),
			d.Annotation,
		)
	}
	t.render(w)
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history ID",
		Short: "Show the position history of a demon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withService(cmd.Context(), rootOpts, func(svc *service.Service) error {
				moves, err := svc.Movements(cmd.Context(), id)
				if err != nil {
					return domainError("failed to load history", err)
				}
				out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
				return out.Success(moves, func(w io.Writer) {
					if len(moves) == 0 {
						fmt.Fprintln(w, "never ranked")
						return
					}
					t := newTable("TIME", "POSITION", "KIND")
					for _, m := range moves {
						t.addRow(m.Time.Format(time.RFC3339), strconv.Itoa(m.Position), string(m.Kind))
					}
					t.render(w)
				})
			})
		},
	}
}

// NewRankingCommand creates the ranking command.
func NewRankingCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "ranking",
		Short: "Show the player ranking from approved records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), rootOpts, func(svc *service.Service) error {
				ranked, err := svc.Ranking(cmd.Context(), limit)
				if err != nil {
					return domainError("failed to rank players", err)
				}
				out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
				return out.Success(ranked, func(w io.Writer) {
					t := newTable("RANK", "PLAYER", "SCORE")
					for _, p := range ranked {
						t.addRow(strconv.Itoa(p.Rank), p.Player.Name, strconv.FormatFloat(p.Score, 'f', 2, 64))
					}
					t.render(w)
				})
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "number of players to show (default: max_ranking_limit)")

	return cmd
}
