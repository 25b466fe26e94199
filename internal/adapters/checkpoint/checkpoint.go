// Package checkpoint persists run progress in a SQLite file: the dependency
// graph with layer numbers, the ratings as of the last completed layer, and
// the fingerprint of the input they were computed from. Every layer is
// committed in one transaction, so a crash leaves the previous layer intact.
package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/diamond/internal/domain/evaluator"
	"github.com/okian/diamond/internal/domain/layering"
	"github.com/okian/diamond/internal/domain/model"
	"github.com/okian/diamond/internal/domain/playgraph"
	"github.com/okian/diamond/internal/domain/rating"
	"github.com/okian/diamond/pkg/logger"
	"github.com/okian/diamond/pkg/metrics"
)

// NoLayer is the last completed layer of a fresh checkpoint.
const NoLayer = -1

// State is what a checkpoint says about a previous run.
type State struct {
	Fingerprint    uint64
	HasFingerprint bool
	LastLayer      int
	Layers         int
}

// Matches reports whether the checkpoint belongs to input with fingerprint fp.
func (s State) Matches(fp uint64) bool { return s.HasFingerprint && s.Fingerprint == fp }

// Complete reports whether every layer was committed.
func (s State) Complete() bool { return s.Layers > 0 && s.LastLayer == s.Layers-1 }

// Node is one persisted graph node.
type Node struct {
	PlayID      string
	Seq         int
	BatterPred  string
	PitcherPred string
	Layer       int
}

// Store is a SQLite-backed evaluator.Checkpointer.
type Store struct {
	db     *sql.DB
	path   string
	logger logger.Logger
}

var _ evaluator.Checkpointer = (*Store)(nil)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open opens or creates the checkpoint at path.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint %s: %w", path, err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("checkpoint")
	}

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL", schema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init checkpoint %s: %w", path, err)
		}
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// State reads the checkpoint header.
func (s *Store) State(ctx context.Context) (State, error) {
	st := State{LastLayer: NoLayer}
	rows, err := s.db.QueryContext(ctx, `SELECT k, v FROM meta`)
	if err != nil {
		return st, fmt.Errorf("read checkpoint state: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return st, err
		}
		switch k {
		case metaFingerprint:
			if st.Fingerprint, err = strconv.ParseUint(v, 16, 64); err != nil {
				return st, fmt.Errorf("%w: fingerprint %q", ErrCorrupt, v)
			}
			st.HasFingerprint = true
		case metaLastLayer:
			if st.LastLayer, err = strconv.Atoi(v); err != nil {
				return st, fmt.Errorf("%w: last layer %q", ErrCorrupt, v)
			}
		case metaLayers:
			if st.Layers, err = strconv.Atoi(v); err != nil {
				return st, fmt.Errorf("%w: layers %q", ErrCorrupt, v)
			}
		}
	}
	return st, rows.Err()
}

// Reset drops all progress and claims the checkpoint for input fp.
func (s *Store) Reset(ctx context.Context, fp uint64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{`DELETE FROM nodes`, `DELETE FROM ratings`, `DELETE FROM meta`} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, upsertMeta, metaFingerprint, strconv.FormatUint(fp, 16)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, upsertMeta, metaLastLayer, strconv.Itoa(NoLayer))
		return err
	})
}

// Begin implements evaluator.Checkpointer. It writes the graph with layer
// numbers unless a resumed run already stored it.
func (s *Store) Begin(ctx context.Context, g *playgraph.Graph, plan *layering.Plan) error {
	var have int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&have); err != nil {
		return err
	}
	if have == g.Len() && have > 0 {
		return nil
	}

	start := time.Now()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM nodes`); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO nodes (play_id, seq, batter_pred, pitcher_pred, layer) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := 0; i < g.Len(); i++ {
			if _, err := stmt.ExecContext(ctx, g.Play(i).ID, i,
				predID(g, i, model.Batter), predID(g, i, model.Pitcher), plan.Assignment[i]); err != nil {
				return fmt.Errorf("node %s: %w", g.Play(i).ID, err)
			}
		}
		_, err = tx.ExecContext(ctx, upsertMeta, metaLayers, strconv.Itoa(plan.Len()))
		return err
	})
	if err != nil {
		return fmt.Errorf("write graph: %w", err)
	}
	s.logger.Info(ctx, "graph checkpointed",
		logger.Int("nodes", g.Len()),
		logger.Int("layers", plan.Len()),
		logger.Int64("ms", time.Since(start).Milliseconds()),
	)
	return nil
}

func predID(g *playgraph.Graph, i int, r model.Role) sql.NullString {
	p := g.Pred(i, r)
	if p == playgraph.None {
		return sql.NullString{}
	}
	return sql.NullString{String: g.Play(p).ID, Valid: true}
}

// Commit implements evaluator.Checkpointer. Layers must be committed in
// order.
func (s *Store) Commit(ctx context.Context, layer int, touched []rating.Snapshot) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var v string
		if err := tx.QueryRowContext(ctx, `SELECT v FROM meta WHERE k = ?`, metaLastLayer).Scan(&v); err != nil {
			return fmt.Errorf("%w: no layer marker: %w", ErrCorrupt, err)
		}
		last, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: last layer %q", ErrCorrupt, v)
		}
		if layer != last+1 {
			return fmt.Errorf("%w: got %d after %d", ErrOutOfOrder, layer, last)
		}

		stmt, err := tx.PrepareContext(ctx, upsertRating)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, snap := range touched {
			if err := writeSnapshot(ctx, stmt, &snap); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx, upsertMeta, metaLastLayer, strconv.Itoa(layer))
		return err
	})
}

func writeSnapshot(ctx context.Context, stmt *sql.Stmt, snap *rating.Snapshot) error {
	for t, v := range snap.Vectors {
		args := make([]any, 0, 15)
		args = append(args, snap.Key.Entity, int(snap.Key.Role), int(snap.Key.Hand), t, snap.Timescales[t])
		for _, p := range v {
			args = append(args, p)
		}
		args = append(args, snap.Appearances)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("rating %s: %w", snap.Key, err)
		}
	}
	return nil
}

// Ratings loads every stored rating.
func (s *Store) Ratings(ctx context.Context) ([]rating.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity, role, hand, ts_index, timescale, p0, p1, p2, p3, p4, p5, p6, p7, p8, appearances
		FROM ratings ORDER BY role, entity, hand, ts_index`)
	if err != nil {
		return nil, fmt.Errorf("read ratings: %w", err)
	}
	defer rows.Close()

	var out []rating.Snapshot
	for rows.Next() {
		var (
			key         rating.Key
			role, hand  int
			idx, ts     int
			v           rating.Vector
			appearances int64
		)
		dest := []any{&key.Entity, &role, &hand, &idx, &ts}
		for i := range v {
			dest = append(dest, &v[i])
		}
		dest = append(dest, &appearances)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		key.Role, key.Hand = model.Role(role), model.Hand(hand)

		if idx == 0 {
			out = append(out, rating.Snapshot{Key: key, Appearances: appearances})
		}
		last := len(out) - 1
		if last < 0 || out[last].Key != key || len(out[last].Vectors) != idx {
			return nil, fmt.Errorf("%w: rating %s timescale %d out of sequence", ErrCorrupt, key, idx)
		}
		out[last].Timescales = append(out[last].Timescales, ts)
		out[last].Vectors = append(out[last].Vectors, v)
	}
	return out, rows.Err()
}

// Nodes loads the stored graph in evaluation order.
func (s *Store) Nodes(ctx context.Context) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT play_id, seq, batter_pred, pitcher_pred, layer FROM nodes ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("read nodes: %w", err)
	}
	defer rows.Close()

	var out []Node
	for rows.Next() {
		var (
			n      Node
			bp, pp sql.NullString
		)
		if err := rows.Scan(&n.PlayID, &n.Seq, &bp, &pp, &n.Layer); err != nil {
			return nil, err
		}
		n.BatterPred, n.PitcherPred = bp.String, pp.String
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			metrics.RecordErrorByComponent("checkpoint", "tx")
			err = errors.Join(err, ignoreDone(tx.Rollback()))
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func ignoreDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}
