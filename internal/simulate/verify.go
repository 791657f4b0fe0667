package simulate

import (
	"context"
	"fmt"

	"github.com/google/go-cmp/cmp"

	"github.com/pointercrate/demonlist/internal/domain/model"
	"github.com/pointercrate/demonlist/pkg/logger"
)

// verify replays every checkpoint, then compares a replay at the current
// instant and each demon's movement history with the live list.
func (s *Simulator) verify(ctx context.Context) error {
	for _, cp := range s.checkpoints {
		snap, err := s.machine.At(ctx, cp.at)
		if err != nil {
			return err
		}
		if diff := diffEntries(cp.entries, project(snap.Demons)); diff != "" {
			s.log.Error(ctx, "replay mismatch", logger.Int("step", cp.step), logger.Time("at", cp.at))
			return fmt.Errorf("%w at step %d (-checkpoint +replay):\n%s", ErrReplayMismatch, cp.step, diff)
		}
	}

	live, err := s.machine.Current(ctx)
	if err != nil {
		return err
	}
	replay, err := s.machine.At(ctx, s.clock.Now())
	if err != nil {
		return err
	}
	if replay.Live {
		return fmt.Errorf("%w: replay fell through to the live list", ErrLiveMismatch)
	}
	if diff := diffEntries(project(live.Demons), project(replay.Demons)); diff != "" {
		return fmt.Errorf("%w (-live +replay):\n%s", ErrLiveMismatch, diff)
	}
	s.stats.FinalSize = len(live.Demons)

	for _, d := range live.Demons {
		moves, err := s.machine.Movements(ctx, d.ID)
		if err != nil {
			return err
		}
		if len(moves) == 0 || moves[len(moves)-1].Position != d.Position {
			return fmt.Errorf("%w: demon %d at %d", ErrHistoryMismatch, d.ID, d.Position)
		}
	}
	return nil
}

func project(demons []model.TimeShiftedDemon) []entry {
	out := make([]entry, 0, len(demons))
	for _, d := range demons {
		out = append(out, entry{ID: d.ID, Position: d.Position, Name: d.Name})
	}
	return out
}

func diffEntries(want, got []entry) string {
	return cmp.Diff(want, got)
}
