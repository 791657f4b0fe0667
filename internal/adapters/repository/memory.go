package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pointercrate/demonlist/internal/domain/ledger"
	"github.com/pointercrate/demonlist/internal/domain/model"
	"github.com/pointercrate/demonlist/internal/domain/scoring"
)

// MemoryStore is an in-process Store.
//
// A transaction works on a private copy of the state and swaps it in on
// commit. A one-slot semaphore admits a single writer at a time, which
// gives the same serial transaction order as the SQLite store.
type MemoryStore struct {
	writer chan struct{}
	mu     sync.RWMutex
	state  *memState
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		writer: make(chan struct{}, 1),
		state:  newMemState(),
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) acquire(ctx context.Context) error {
	select {
	case s.writer <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *MemoryStore) release() { <-s.writer }

func (s *MemoryStore) read() *memState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// write applies fn under the writer slot. fn must validate before mutating.
func (s *MemoryStore) write(ctx context.Context, fn func(st *memState) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	next := s.read().clone()
	if err := fn(next); err != nil {
		return err
	}
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	return nil
}

// BeginTx starts a ledger transaction, waiting for the writer slot.
func (s *MemoryStore) BeginTx(ctx context.Context) (ledger.Tx, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	return &memTx{store: s, state: s.read().clone()}, nil
}

func (s *MemoryStore) LastPosition(_ context.Context) (int, error) {
	return s.read().lastPosition(), nil
}

func (s *MemoryStore) Demon(_ context.Context, id int64) (model.Demon, error) {
	return s.read().demon(id)
}

func (s *MemoryStore) DemonAt(_ context.Context, position int) (model.Demon, error) {
	return s.read().demonAt(position)
}

func (s *MemoryStore) Live(_ context.Context) ([]model.Demon, error) {
	return s.read().live(), nil
}

func (s *MemoryStore) Demons(_ context.Context) ([]model.Demon, error) {
	return s.read().all(), nil
}

func (s *MemoryStore) EventsUntil(_ context.Context, t time.Time) ([]model.PositionEvent, error) {
	st := s.read()
	var out []model.PositionEvent
	for _, ev := range st.events {
		if !ev.Time.After(t) {
			out = append(out, ev)
		}
	}
	sortEvents(out)
	return out, nil
}

func (s *MemoryStore) Events(_ context.Context, demonID int64) ([]model.PositionEvent, error) {
	st := s.read()
	var out []model.PositionEvent
	for _, ev := range st.events {
		if ev.DemonID == demonID {
			out = append(out, ev)
		}
	}
	sortEvents(out)
	return out, nil
}

func (s *MemoryStore) CreateRecord(ctx context.Context, sub model.Submission) (model.Record, error) {
	if sub.Progress < 0 || sub.Progress > 100 {
		return model.Record{}, ErrInvalidProgress
	}
	var id int64
	err := s.write(ctx, func(st *memState) error {
		if _, ok := st.demons[sub.DemonID]; !ok {
			return model.NotFound("demon", sub.DemonID)
		}
		if existing, ok := st.bySubmission[sub.ID]; ok {
			id = existing
			return nil
		}
		player := st.resolvePlayer(sub.Player)
		st.nextRecord++
		id = st.nextRecord
		st.records[id] = recordRow{
			progress: sub.Progress,
			video:    sub.Video,
			status:   model.StatusSubmitted,
			player:   player.ID,
			demon:    sub.DemonID,
		}
		st.bySubmission[sub.ID] = id
		return nil
	})
	if err != nil {
		return model.Record{}, err
	}
	return s.Record(ctx, id)
}

func (s *MemoryStore) SetRecordStatus(ctx context.Context, id int64, status model.RecordStatus) (model.Record, error) {
	err := s.write(ctx, func(st *memState) error {
		row, ok := st.records[id]
		if !ok {
			return model.NotFound("record", id)
		}
		row.status = status
		st.records[id] = row
		return nil
	})
	if err != nil {
		return model.Record{}, err
	}
	return s.Record(ctx, id)
}

func (s *MemoryStore) Record(_ context.Context, id int64) (model.Record, error) {
	st := s.read()
	row, ok := st.records[id]
	if !ok {
		return model.Record{}, model.NotFound("record", id)
	}
	d := st.demons[row.demon]
	return model.Record{
		ID:       id,
		Progress: row.progress,
		Video:    row.video,
		Status:   row.status,
		Player:   st.players[row.player],
		Demon:    model.MinimalDemon{ID: d.id, Name: d.name, Position: copyInt(d.position)},
	}, nil
}

func (s *MemoryStore) SetBanned(ctx context.Context, playerID int64, banned bool) (model.Player, error) {
	var out model.Player
	err := s.write(ctx, func(st *memState) error {
		p, ok := st.players[playerID]
		if !ok {
			return model.NotFound("player", playerID)
		}
		p.Banned = banned
		st.players[playerID] = p
		out = p
		return nil
	})
	return out, err
}

func (s *MemoryStore) Contributions(_ context.Context) ([]scoring.Contribution, error) {
	st := s.read()
	var out []scoring.Contribution
	for _, r := range st.records {
		if r.status != model.StatusApproved {
			continue
		}
		d := st.demons[r.demon]
		out = append(out, scoring.Contribution{
			Player:      st.players[r.player],
			DemonID:     d.id,
			Position:    copyInt(d.position),
			Progress:    r.progress,
			Requirement: d.requirement,
		})
	}
	for _, d := range st.demons {
		out = append(out, scoring.Contribution{
			Player:      st.players[d.verifier],
			DemonID:     d.id,
			Position:    copyInt(d.position),
			Progress:    100,
			Requirement: d.requirement,
		})
	}
	return out, nil
}

// memTx implements ledger.Tx over a private copy of the state.
type memTx struct {
	store *MemoryStore
	state *memState
	done  bool
}

func (t *memTx) check(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	return ctx.Err()
}

func (t *memTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.store.mu.Lock()
	t.store.state = t.state
	t.store.mu.Unlock()
	t.store.release()
	return nil
}

// Rollback discards the copy. It is a no-op after Commit.
func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.release()
	return nil
}

func (t *memTx) LastPosition(ctx context.Context) (int, error) {
	if err := t.check(ctx); err != nil {
		return 0, err
	}
	return t.state.lastPosition(), nil
}

func (t *memTx) Demon(ctx context.Context, id int64) (model.Demon, error) {
	if err := t.check(ctx); err != nil {
		return model.Demon{}, err
	}
	return t.state.demon(id)
}

func (t *memTx) DemonAt(ctx context.Context, position int) (model.Demon, error) {
	if err := t.check(ctx); err != nil {
		return model.Demon{}, err
	}
	return t.state.demonAt(position)
}

func (t *memTx) Live(ctx context.Context) ([]model.Demon, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	return t.state.live(), nil
}

func (t *memTx) Shift(ctx context.Context, from, to, delta int) ([]ledger.Placement, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	var moved []ledger.Placement
	for id, d := range t.state.demons {
		if d.position == nil || *d.position < from || (to > 0 && *d.position > to) {
			continue
		}
		d.position = model.IntPtr(*d.position + delta)
		t.state.demons[id] = d
		moved = append(moved, ledger.Placement{DemonID: id, Position: *d.position})
	}
	sort.Slice(moved, func(i, j int) bool { return moved[i].Position < moved[j].Position })
	return moved, nil
}

func (t *memTx) CreateDemon(ctx context.Context, nd model.NewDemon) (model.Demon, error) {
	if err := t.check(ctx); err != nil {
		return model.Demon{}, err
	}
	st := t.state
	publisher := st.resolvePlayer(nd.Publisher)
	verifier := st.resolvePlayer(nd.Verifier)
	var creators []int64
	seen := make(map[int64]bool)
	for _, name := range nd.Creators {
		p := st.resolvePlayer(name)
		if !seen[p.ID] {
			seen[p.ID] = true
			creators = append(creators, p.ID)
		}
	}

	st.nextDemon++
	row := demonRow{
		id:          st.nextDemon,
		name:        nd.Name,
		position:    model.IntPtr(nd.Position),
		requirement: nd.Requirement,
		video:       nd.Video,
		publisher:   publisher.ID,
		verifier:    verifier.ID,
		creators:    creators,
	}
	st.demons[row.id] = row
	return st.toDemon(row, true), nil
}

func (t *memTx) SetPosition(ctx context.Context, id int64, position *int) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	d, ok := t.state.demons[id]
	if !ok {
		return model.NotFound("demon", id)
	}
	d.position = copyInt(position)
	t.state.demons[id] = d
	return nil
}

func (t *memTx) AppendEvent(ctx context.Context, ev model.PositionEvent) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	ev.Position = copyInt(ev.Position)
	ev.Time = ev.Time.UTC()
	t.state.events = append(t.state.events, ev)
	return nil
}

type demonRow struct {
	id          int64
	name        string
	position    *int
	requirement int
	video       string
	publisher   int64
	verifier    int64
	creators    []int64
}

type recordRow struct {
	progress int
	video    string
	status   model.RecordStatus
	player   int64
	demon    int64
}

type memState struct {
	nextDemon, nextPlayer, nextRecord int64

	demons        map[int64]demonRow
	players       map[int64]model.Player
	playersByName map[string]int64
	events        []model.PositionEvent
	records       map[int64]recordRow
	bySubmission  map[string]int64
}

func newMemState() *memState {
	return &memState{
		demons:        make(map[int64]demonRow),
		players:       make(map[int64]model.Player),
		playersByName: make(map[string]int64),
		records:       make(map[int64]recordRow),
		bySubmission:  make(map[string]int64),
	}
}

// clone copies everything mutable. Rows are values; position pointers are
// replaced rather than written through, so sharing them is safe.
func (st *memState) clone() *memState {
	c := &memState{
		nextDemon:     st.nextDemon,
		nextPlayer:    st.nextPlayer,
		nextRecord:    st.nextRecord,
		demons:        make(map[int64]demonRow, len(st.demons)),
		players:       make(map[int64]model.Player, len(st.players)),
		playersByName: make(map[string]int64, len(st.playersByName)),
		events:        append([]model.PositionEvent(nil), st.events...),
		records:       make(map[int64]recordRow, len(st.records)),
		bySubmission:  make(map[string]int64, len(st.bySubmission)),
	}
	for k, v := range st.demons {
		c.demons[k] = v
	}
	for k, v := range st.players {
		c.players[k] = v
	}
	for k, v := range st.playersByName {
		c.playersByName[k] = v
	}
	for k, v := range st.records {
		c.records[k] = v
	}
	for k, v := range st.bySubmission {
		c.bySubmission[k] = v
	}
	return c
}

// resolvePlayer matches names case-insensitively, like the SQLite schema.
func (st *memState) resolvePlayer(name string) model.Player {
	key := strings.ToLower(name)
	if id, ok := st.playersByName[key]; ok {
		return st.players[id]
	}
	st.nextPlayer++
	p := model.Player{ID: st.nextPlayer, Name: name}
	st.players[p.ID] = p
	st.playersByName[key] = p.ID
	return p
}

func (st *memState) lastPosition() int {
	last := 0
	for _, d := range st.demons {
		if d.position != nil && *d.position > last {
			last = *d.position
		}
	}
	return last
}

func (st *memState) demon(id int64) (model.Demon, error) {
	d, ok := st.demons[id]
	if !ok {
		return model.Demon{}, model.NotFound("demon", id)
	}
	return st.toDemon(d, true), nil
}

func (st *memState) demonAt(position int) (model.Demon, error) {
	for _, d := range st.demons {
		if d.position != nil && *d.position == position {
			return st.toDemon(d, true), nil
		}
	}
	return model.Demon{}, model.NotFound("demon at position", position)
}

func (st *memState) live() []model.Demon {
	var out []model.Demon
	for _, d := range st.demons {
		if d.position != nil {
			out = append(out, st.toDemon(d, false))
		}
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].Position < *out[j].Position })
	return out
}

func (st *memState) all() []model.Demon {
	out := make([]model.Demon, 0, len(st.demons))
	for _, d := range st.demons {
		out = append(out, st.toDemon(d, false))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (st *memState) toDemon(d demonRow, withCreators bool) model.Demon {
	out := model.Demon{
		ID:          d.id,
		Name:        d.name,
		Position:    copyInt(d.position),
		Requirement: d.requirement,
		Video:       d.video,
		Publisher:   st.players[d.publisher],
		Verifier:    st.players[d.verifier],
	}
	if withCreators {
		for _, id := range d.creators {
			out.Creators = append(out.Creators, st.players[id])
		}
	}
	return out
}

// sortEvents orders by time; append order breaks ties, matching seq.
func sortEvents(evs []model.PositionEvent) {
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Time.Before(evs[j].Time) })
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
