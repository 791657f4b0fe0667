// Package scoring implements the list's point formula and the player ranking
// built on top of it.
package scoring

import (
	"math"
	"sort"

	"github.com/pointercrate/demonlist/internal/domain/model"
)

// Formula constants. A demon at position 1 is worth maxScore points and
// the value decays exponentially so that position 100 is worth 1/30 of it.
const (
	maxScore     = 100.0
	decayTarget  = 1.0 / 30.0
	decaySpan    = -99.0
	fullProgress = 100
	partialBase  = 0.25
	partialRange = 0.25
)

// Score returns the points for completing progress percent of the demon at
// position with the given requirement.
//
// requirement == 100 with progress != 100 divides by zero; callers must not
// score such records (record submission rejects them).
func Score(position, progress, requirement int) float64 {
	score := maxScore * math.Exp(float64(1-position)*math.Log(decayTarget)/decaySpan)

	if progress != fullProgress {
		score *= partialBase + float64(progress-requirement)/float64(fullProgress-requirement)*partialRange
	}

	return score
}

// Sizes exposes the section thresholds. config.Live satisfies it.
type Sizes interface {
	ListSize() int
	ExtendedListSize() int
}

// DemonScore is Score for a demon; legacy demons are worth nothing.
func DemonScore(d model.Demon, progress int) float64 {
	if d.Position == nil {
		return 0
	}
	return Score(*d.Position, progress, d.Requirement)
}

// RecordScore applies the counting rules of the ranking: completions count
// within the extended list, progress records only within the main list.
func RecordScore(position *int, progress, requirement int, sizes Sizes) float64 {
	if position == nil {
		return 0
	}
	switch {
	case progress == fullProgress && *position <= sizes.ExtendedListSize():
		return Score(*position, progress, requirement)
	case progress != fullProgress && *position <= sizes.ListSize():
		return Score(*position, progress, requirement)
	default:
		return 0
	}
}

// Contribution is one scored claim of a player on a demon: an approved
// record or a verification (which counts as a 100% completion).
type Contribution struct {
	Player      model.Player
	DemonID     int64
	Position    *int
	Progress    int
	Requirement int
}

// Rank aggregates contributions into a ranking. Only the best contribution
// per player and demon counts. Banned and zero-score players are left out.
// Rows are ordered by score descending then name; equal scores share a rank.
func Rank(contribs []Contribution, sizes Sizes) []model.RankedPlayer {
	type key struct {
		player int64
		demon  int64
	}
	best := make(map[key]float64, len(contribs))
	players := make(map[int64]model.Player)
	for _, c := range contribs {
		if c.Player.Banned {
			continue
		}
		s := RecordScore(c.Position, c.Progress, c.Requirement, sizes)
		k := key{player: c.Player.ID, demon: c.DemonID}
		if cur, ok := best[k]; !ok || s > cur {
			best[k] = s
		}
		players[c.Player.ID] = c.Player
	}

	totals := make(map[int64]float64, len(players))
	for k, s := range best {
		totals[k.player] += s
	}

	out := make([]model.RankedPlayer, 0, len(totals))
	for id, total := range totals {
		if total <= 0 {
			continue
		}
		out = append(out, model.RankedPlayer{Player: players[id], Score: total})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Player.Name < out[j].Player.Name
	})

	rank := 0
	for i := range out {
		if i == 0 || out[i].Score != out[i-1].Score {
			rank++
		}
		out[i].Rank = rank
	}

	return out
}
