// Package playstore reads the play corpus from JSON Lines files, one play per
// line, optionally gzip-compressed.
//
// A row carries either a canonical outcome name or the raw play-by-play
// description. Rows whose description is not a plate-appearance outcome are
// skipped. Handedness is taken from batter_faces/pitcher_faces when present
// and otherwise resolved from the players' bats/throws.
package playstore

import (
	"bufio"
	"bytes"
	"cmp"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/gzip"

	"github.com/okian/diamond/internal/domain/model"
	"github.com/okian/diamond/pkg/logger"
	"github.com/okian/diamond/pkg/metrics"
)

const maxLineBytes = 1 << 20

// Row is the on-disk shape of one play.
type Row struct {
	ID          string `json:"id"`
	GameID      string `json:"game_id"`
	Date        string `json:"date"`
	Index       int    `json:"index"`
	BatterID    string `json:"batter_id"`
	PitcherID   string `json:"pitcher_id"`
	Outcome     string `json:"outcome,omitempty"`
	Description string `json:"description,omitempty"`

	Bats         string `json:"bats,omitempty"`
	Throws       string `json:"throws,omitempty"`
	BatterFaces  string `json:"batter_faces,omitempty"`
	PitcherFaces string `json:"pitcher_faces,omitempty"`
}

// Stats describes one load.
type Stats struct {
	Rows        int
	Plays       int
	Skipped     int
	Fingerprint uint64
}

// Store loads plays.
type Store struct {
	logger logger.Logger
	salt   string
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithFingerprintSalt mixes salt into the fingerprint, so a change of run
// parameters invalidates checkpoints of the same corpus.
func WithFingerprintSalt(salt string) Option {
	return func(s *Store) { s.salt = salt }
}

// New creates a play store.
func New(opts ...Option) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("playstore")
	}
	return s
}

// Load reads every play from path. Paths ending in .gz are decompressed.
func (s *Store) Load(ctx context.Context, path string) ([]model.Play, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		metrics.RecordErrorByComponent("playstore", "open")
		return nil, Stats{}, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, Stats{}, fmt.Errorf("%w: %s: %w", ErrOpen, path, err)
		}
		defer zr.Close()
		r = zr
	}

	plays, st, err := s.Read(ctx, r)
	if err != nil {
		return nil, st, fmt.Errorf("%s: %w", path, err)
	}
	s.logger.Info(ctx, "plays loaded",
		logger.String("path", path),
		logger.Int("rows", st.Rows),
		logger.Int("plays", st.Plays),
		logger.Int("skipped", st.Skipped),
		logger.String("fingerprint", fmt.Sprintf("%016x", st.Fingerprint)),
	)
	return plays, st, nil
}

// Read decodes plays from r. A row that cannot be decoded is fatal and
// reported with its line number.
func (s *Store) Read(ctx context.Context, r io.Reader) ([]model.Play, Stats, error) {
	var (
		st    Stats
		plays []model.Play
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, st, err
			}
		}
		b := sc.Bytes()
		if len(bytes.TrimSpace(b)) == 0 {
			continue
		}
		st.Rows++

		var row Row
		if err := json.Unmarshal(b, &row); err != nil {
			return nil, st, fmt.Errorf("%w: line %d: %w", ErrInvalidRow, line, err)
		}
		p, ok, err := row.Play()
		if err != nil {
			return nil, st, fmt.Errorf("line %d: %w", line, err)
		}
		if !ok {
			st.Skipped++
			s.logger.Debug(ctx, "skipping non-outcome play",
				logger.String("id", row.ID),
				logger.String("description", row.Description),
			)
			continue
		}
		plays = append(plays, p)
	}
	if err := sc.Err(); err != nil {
		return nil, st, fmt.Errorf("%w: line %d: %w", ErrInvalidRow, line+1, err)
	}

	st.Plays = len(plays)
	st.Fingerprint = Fingerprint(plays, s.salt)
	metrics.RecordPlaysLoaded(st.Plays)
	metrics.RecordPlaysSkipped(st.Skipped)
	return plays, st, nil
}

// Play converts the row. ok is false when the row is not a plate
// appearance. Missing ids are left for the graph builder to report.
func (r *Row) Play() (p model.Play, ok bool, err error) {
	p = model.Play{
		ID:        strings.TrimSpace(r.ID),
		GameID:    strings.TrimSpace(r.GameID),
		Index:     r.Index,
		BatterID:  strings.TrimSpace(r.BatterID),
		PitcherID: strings.TrimSpace(r.PitcherID),
	}
	if p.Date, err = parseDate(r.Date); err != nil {
		return p, false, fmt.Errorf("%w: play %s: %w", ErrInvalidRow, r.ID, err)
	}

	switch {
	case r.Outcome != "":
		if p.Outcome, err = model.ParseOutcomeName(r.Outcome); err != nil {
			return p, false, fmt.Errorf("%w: play %s: %w", ErrInvalidRow, r.ID, err)
		}
	case r.Description != "":
		if p.Outcome, ok = model.ParseOutcome(r.Description); !ok {
			return p, false, nil
		}
	default:
		return p, false, fmt.Errorf("%w: play %s has neither outcome nor description", ErrInvalidRow, r.ID)
	}

	if p.BatterFaces, p.PitcherFaces, err = r.hands(); err != nil {
		return p, false, fmt.Errorf("%w: play %s: %w", ErrInvalidRow, r.ID, err)
	}
	return p, true, nil
}

func (r *Row) hands() (batterFaces, pitcherFaces model.Hand, err error) {
	if r.BatterFaces != "" && r.PitcherFaces != "" {
		if batterFaces, err = model.ParseHand(r.BatterFaces); err != nil {
			return 0, 0, err
		}
		if pitcherFaces, err = model.ParseHand(r.PitcherFaces); err != nil {
			return 0, 0, err
		}
		if !batterFaces.Bucket() || !pitcherFaces.Bucket() {
			return 0, 0, fmt.Errorf("%w: faced hand must be L or R", model.ErrInvalidHand)
		}
		return batterFaces, pitcherFaces, nil
	}
	bats, err := model.ParseHand(r.Bats)
	if err != nil {
		return 0, 0, fmt.Errorf("bats: %w", err)
	}
	throws, err := model.ParseHand(r.Throws)
	if err != nil {
		return 0, 0, fmt.Errorf("throws: %w", err)
	}
	batterFaces, pitcherFaces = model.ResolveMatchup(bats, throws)
	return batterFaces, pitcherFaces, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// Fingerprint hashes the play set independently of input order.
func Fingerprint(plays []model.Play, salt string) uint64 {
	idx := make([]int, len(plays))
	for i := range idx {
		idx[i] = i
	}
	slices.SortFunc(idx, func(a, b int) int {
		if c := plays[a].Key().Compare(plays[b].Key()); c != 0 {
			return c
		}
		return cmp.Compare(plays[a].ID, plays[b].ID)
	})

	h := xxhash.New()
	_, _ = h.WriteString(salt)
	var buf [8]byte
	for _, i := range idx {
		p := &plays[i]
		for _, s := range []string{p.ID, p.GameID, p.Date.UTC().Format(time.DateOnly), p.BatterID, p.PitcherID} {
			_, _ = h.WriteString(s)
			_, _ = h.Write([]byte{0})
		}
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(p.Index)))
		_, _ = h.Write(buf[:])
		_, _ = h.Write([]byte{byte(p.Outcome), byte(p.BatterFaces), byte(p.PitcherFaces)})
	}
	return h.Sum64()
}
