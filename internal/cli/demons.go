package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	service "github.com/pointercrate/demonlist/internal/app"
	"github.com/pointercrate/demonlist/internal/domain/model"
)

// AddOptions holds flags for the add command.
type AddOptions struct {
	*RootOptions
	Position    int
	Requirement int
	Video       string
	Publisher   string
	Verifier    string
	Creators    []string
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Insert a demon at a position",
		Long: `Insert a new demon. Every demon at or below the position moves down
by one. The position may be at most one past the last ranked demon.

Examples:
  demonlistctl add "Bloodbath" --position 1 --requirement 60 --publisher Riot --verifier Riot`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), opts.RootOptions, func(svc *service.Service) error {
				d, err := svc.AddDemon(cmd.Context(), model.NewDemon{
					Name:        args[0],
					Position:    opts.Position,
					Requirement: opts.Requirement,
					Video:       opts.Video,
					Publisher:   opts.Publisher,
					Verifier:    opts.Verifier,
					Creators:    opts.Creators,
				})
				if err != nil {
					return domainError("failed to add demon", err)
				}
				return printDemon(cmd, opts.RootOptions, "added", d)
			})
		},
	}

	cmd.Flags().IntVarP(&opts.Position, "position", "p", 0, "position to insert at (required)")
	_ = cmd.MarkFlagRequired("position")
	cmd.Flags().IntVarP(&opts.Requirement, "requirement", "r", 100, "minimal progress for a record (0-100)")
	cmd.Flags().StringVar(&opts.Video, "video", "", "verification video URL")
	cmd.Flags().StringVar(&opts.Publisher, "publisher", "", "publisher name (required)")
	_ = cmd.MarkFlagRequired("publisher")
	cmd.Flags().StringVar(&opts.Verifier, "verifier", "", "verifier name (required)")
	_ = cmd.MarkFlagRequired("verifier")
	cmd.Flags().StringSliceVar(&opts.Creators, "creator", nil, "creator name, repeatable")

	return cmd
}

// NewMoveCommand creates the move command.
func NewMoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move ID POSITION",
		Short: "Move a ranked demon to a new position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			pos, err := strconv.Atoi(args[1])
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid position %q", args[1]))
			}
			return withService(cmd.Context(), rootOpts, func(svc *service.Service) error {
				d, err := svc.MoveDemon(cmd.Context(), id, pos)
				if err != nil {
					return domainError("failed to move demon", err)
				}
				return printDemon(cmd, rootOpts, "moved", d)
			})
		},
	}
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID",
		Short: "Move a demon to the legacy list",
		Long: `Remove a demon from the ranked list. Every demon below it moves up
by one. Removing a legacy demon changes nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withService(cmd.Context(), rootOpts, func(svc *service.Service) error {
				d, err := svc.RemoveDemon(cmd.Context(), id)
				if err != nil {
					return domainError("failed to remove demon", err)
				}
				return printDemon(cmd, rootOpts, "removed", d)
			})
		},
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid demon id %q", raw))
	}
	return id, nil
}

func printDemon(cmd *cobra.Command, opts *RootOptions, verb string, d model.Demon) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(d, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s (id %d) %s\n", verb, d.Name, d.ID, positionLabel(d.Position))
		if len(d.Creators) > 0 {
			names := make([]string, 0, len(d.Creators))
			for _, c := range d.Creators {
				names = append(names, c.Name)
			}
			fmt.Fprintln(w, mutedStyle.Render("creators: "+strings.Join(names, ", ")))
		}
	})
}

func positionLabel(p *int) string {
	if p == nil {
		return "legacy"
	}
	return "#" + strconv.Itoa(*p)
}
