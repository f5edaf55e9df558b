// Package checkpoint persists SCCN parameters in a SQLite database.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	bosherr "github.com/cloudfoundry/bosh-utils/errors"
	boshlog "github.com/cloudfoundry/bosh-utils/logger"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/zstreet87/TopoModelX/core"
	"github.com/zstreet87/TopoModelX/simplicial"
	"github.com/zstreet87/TopoModelX/tensor"
)

// FormatVersion is written with every checkpoint.
const FormatVersion = "1.0.0"

// compatible lists the format versions this build can read.
const compatible = "^1.0"

const logTag = "checkpoint"

// timeLayout is fixed width so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when no checkpoint matches.
var ErrNotFound = errors.New("checkpoint not found")

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	id             TEXT PRIMARY KEY,
	format_version TEXT NOT NULL,
	channels       INTEGER NOT NULL,
	max_rank       INTEGER NOT NULL,
	layers         INTEGER NOT NULL,
	out_channels   INTEGER NOT NULL,
	created_at     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS parameters (
	checkpoint_id TEXT NOT NULL REFERENCES checkpoints(id) ON DELETE CASCADE,
	name          TEXT NOT NULL,
	shape         TEXT NOT NULL,
	data          BLOB NOT NULL,
	PRIMARY KEY (checkpoint_id, name)
);
`

// Meta describes a stored checkpoint.
type Meta struct {
	ID            string    `json:"id"`
	FormatVersion string    `json:"format_version"`
	Channels      int       `json:"channels"`
	MaxRank       int       `json:"max_rank"`
	Layers        int       `json:"layers"`
	OutChannels   int       `json:"out_channels"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store is a SQLite-backed checkpoint store.
type Store struct {
	db     *sql.DB
	logger boshlog.Logger
	now    func() time.Time
}

// Open creates or opens the database at path and ensures the schema.
func Open(path string, logger boshlog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, bosherr.WrapErrorf(err, "Opening checkpoint database '%s'", path)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, bosherr.WrapError(err, "Creating checkpoint schema")
	}
	if logger == nil {
		logger = boshlog.NewLogger(boshlog.LevelNone)
	}
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes every parameter of model under a new checkpoint id.
func (s *Store) Save(ctx context.Context, model *simplicial.SCCN) (Meta, error) {
	meta := Meta{
		ID:            uuid.NewString(),
		FormatVersion: FormatVersion,
		Channels:      model.Channels,
		MaxRank:       model.MaxRank,
		Layers:        len(model.Layers),
		OutChannels:   model.OutChannels,
		CreatedAt:     s.now().UTC(),
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Meta{}, bosherr.WrapError(err, "Starting checkpoint transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO checkpoints (id, format_version, channels, max_rank, layers, out_channels, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.FormatVersion, meta.Channels, meta.MaxRank, meta.Layers, meta.OutChannels,
		meta.CreatedAt.Format(timeLayout))
	if err != nil {
		return Meta{}, bosherr.WrapError(err, "Inserting checkpoint")
	}
	for _, p := range model.Parameters() {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO parameters (checkpoint_id, name, shape, data) VALUES (?, ?, ?, ?)`,
			meta.ID, p.Name, encodeShape(p.Data.Shape), encodeData(p.Data.Float32()))
		if err != nil {
			return Meta{}, bosherr.WrapErrorf(err, "Inserting parameter '%s'", p.Name)
		}
	}
	if err := tx.Commit(); err != nil {
		return Meta{}, bosherr.WrapError(err, "Committing checkpoint")
	}
	s.logger.Info(logTag, "Saved checkpoint %s with %d parameters", meta.ID, len(model.Parameters()))
	return meta, nil
}

// Load copies the parameters of checkpoint id into model. The model must have
// the same hyperparameters and parameter names as the saved one.
func (s *Store) Load(ctx context.Context, id string, model *simplicial.SCCN) (Meta, error) {
	meta, err := s.get(ctx, id)
	if err != nil {
		return Meta{}, err
	}
	if err := checkVersion(meta.FormatVersion); err != nil {
		return Meta{}, err
	}
	if meta.Channels != model.Channels || meta.MaxRank != model.MaxRank ||
		meta.Layers != len(model.Layers) || meta.OutChannels != model.OutChannels {
		return Meta{}, bosherr.Errorf("Checkpoint %s is for channels=%d max_rank=%d layers=%d out_channels=%d",
			id, meta.Channels, meta.MaxRank, meta.Layers, meta.OutChannels)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name, shape, data FROM parameters WHERE checkpoint_id = ?`, id)
	if err != nil {
		return Meta{}, bosherr.WrapError(err, "Querying parameters")
	}
	defer rows.Close()
	stored := map[string]*tensor.Tensor{}
	for rows.Next() {
		var name, shape string
		var data []byte
		if err := rows.Scan(&name, &shape, &data); err != nil {
			return Meta{}, bosherr.WrapError(err, "Scanning parameter")
		}
		t, err := decode(shape, data)
		if err != nil {
			return Meta{}, bosherr.WrapErrorf(err, "Decoding parameter '%s'", name)
		}
		stored[name] = t
	}
	if err := rows.Err(); err != nil {
		return Meta{}, bosherr.WrapError(err, "Reading parameters")
	}

	params := model.Parameters()
	if len(params) != len(stored) {
		return Meta{}, bosherr.Errorf("Checkpoint %s has %d parameters, model has %d", id, len(stored), len(params))
	}
	for _, p := range params {
		t, ok := stored[p.Name]
		if !ok {
			return Meta{}, bosherr.Errorf("Checkpoint %s lacks parameter '%s'", id, p.Name)
		}
		if !t.Shape.Equal(p.Data.Shape) {
			return Meta{}, bosherr.Errorf("Checkpoint %s stores '%s' with shape %v, model has %v", id, p.Name, t.Shape, p.Data.Shape)
		}
	}
	for _, p := range params {
		if err := p.Data.CopyFrom(stored[p.Name]); err != nil {
			return Meta{}, bosherr.WrapErrorf(err, "Restoring parameter '%s'", p.Name)
		}
	}
	s.logger.Debug(logTag, "Loaded checkpoint %s", id)
	return meta, nil
}

// List returns all checkpoints, newest first.
func (s *Store) List(ctx context.Context) ([]Meta, error) {
	rows, err := s.db.QueryContext(ctx, selectMeta+` ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, bosherr.WrapError(err, "Listing checkpoints")
	}
	defer rows.Close()
	var out []Meta
	for rows.Next() {
		m, err := scanMeta(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Latest returns the newest checkpoint or ErrNotFound.
func (s *Store) Latest(ctx context.Context) (Meta, error) {
	all, err := s.List(ctx)
	if err != nil {
		return Meta{}, err
	}
	if len(all) == 0 {
		return Meta{}, ErrNotFound
	}
	return all[0], nil
}

// Delete removes a checkpoint and its parameters.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE id = ?`, id)
	if err != nil {
		return bosherr.WrapErrorf(err, "Deleting checkpoint %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return bosherr.WrapErrorf(err, "Deleting checkpoint %s", id)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

const selectMeta = `SELECT id, format_version, channels, max_rank, layers, out_channels, created_at FROM checkpoints`

func (s *Store) get(ctx context.Context, id string) (Meta, error) {
	row := s.db.QueryRowContext(ctx, selectMeta+` WHERE id = ?`, id)
	m, err := scanMeta(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Meta{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMeta(row scanner) (Meta, error) {
	var m Meta
	var created string
	if err := row.Scan(&m.ID, &m.FormatVersion, &m.Channels, &m.MaxRank, &m.Layers, &m.OutChannels, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Meta{}, err
		}
		return Meta{}, bosherr.WrapError(err, "Scanning checkpoint")
	}
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return Meta{}, bosherr.WrapErrorf(err, "Parsing checkpoint time '%s'", created)
	}
	m.CreatedAt = t
	return m, nil
}

func checkVersion(v string) error {
	version, err := semver.NewVersion(v)
	if err != nil {
		return bosherr.WrapErrorf(err, "Parsing checkpoint format version '%s'", v)
	}
	constraint, err := semver.NewConstraint(compatible)
	if err != nil {
		return bosherr.WrapError(err, "Parsing format constraint")
	}
	if !constraint.Check(version) {
		return bosherr.Errorf("Checkpoint format %s is not supported (want %s)", v, compatible)
	}
	return nil
}

func encodeShape(s core.Shape) string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

func encodeData(data []float32) []byte {
	buf := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decode(shape string, data []byte) (*tensor.Tensor, error) {
	var dims []int
	if shape != "" {
		for _, p := range strings.Split(shape, ",") {
			d, err := strconv.Atoi(p)
			if err != nil {
				return nil, err
			}
			dims = append(dims, d)
		}
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("data length %d is not a multiple of 4", len(data))
	}
	values := make([]float32, len(data)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return tensor.FromFloat32(values, dims...)
}
