// Package simulate drives the ledger with random insert, move and remove
// sequences and checks the position invariants and the time machine
// against snapshots taken along the way.
package simulate

import "time"

// Config holds the parameters of one simulation run.
type Config struct {
	Steps         int           // Number of random operations to apply
	InitialDemons int           // Demons appended before the random phase
	Seed          uint64        // PRNG seed; equal seeds replay equal runs
	Start         time.Time     // Clock value of the first log entry
	Tick          time.Duration // Clock advance per reading
	CheckEvery    int           // Take a checkpoint every N steps
}

// DefaultConfig returns a small run suitable for tests and the CLI default.
func DefaultConfig() Config {
	return Config{
		Steps:         200,
		InitialDemons: 20,
		Seed:          1,
		Start:         time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
		Tick:          time.Second,
		CheckEvery:    1,
	}
}

// Op names a ledger operation.
type Op string

const (
	OpInsert Op = "insert"
	OpMove   Op = "move"
	OpRemove Op = "remove"
)

// Stats summarizes a finished run.
type Stats struct {
	Steps       int           `json:"steps" yaml:"steps"`
	Inserts     int           `json:"inserts" yaml:"inserts"`
	Moves       int           `json:"moves" yaml:"moves"`
	Removes     int           `json:"removes" yaml:"removes"`
	Rejected    int           `json:"rejected" yaml:"rejected"`
	Checkpoints int           `json:"checkpoints" yaml:"checkpoints"`
	FinalSize   int           `json:"final_size" yaml:"final_size"`
	Seed        uint64        `json:"seed" yaml:"seed"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
}
