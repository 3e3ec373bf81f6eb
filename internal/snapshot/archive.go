package snapshot

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"ising/internal/core"
)

var (
	// ErrNotFound reports a step with no archived snapshot.
	ErrNotFound = errors.New("snapshot: step not archived")
	// ErrCorrupt reports an archived value that is not a square lattice.
	ErrCorrupt = errors.New("snapshot: corrupt archive entry")
)

// ArchiveConfig configures the badger-backed snapshot archive.
type ArchiveConfig struct {
	// Path is the directory for badger files. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in memory. Useful for testing.
	InMemory bool
	// RunID prefixes every key. Empty generates a new id.
	RunID string
	// Logger receives badger's internal log lines. Nil disables them.
	Logger *slog.Logger
}

// Archive stores every emitted snapshot under run/<run-id>/step/<step>.
// It is a record of observed states, not a restart checkpoint.
type Archive struct {
	db    *badger.DB
	runID string
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// OpenArchive opens or creates the archive database.
func OpenArchive(cfg ArchiveConfig) (*Archive, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("snapshot: archive path is required")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("snapshot: create archive directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open archive: %w", err)
	}
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Archive{db: db, runID: runID}, nil
}

// RunID returns the key prefix of this run.
func (a *Archive) RunID() string { return a.runID }

func (a *Archive) prefix() []byte {
	return []byte("run/" + a.runID + "/step/")
}

func (a *Archive) key(step int) []byte {
	return fmt.Appendf(a.prefix(), "%010d", step)
}

// Emit stores the committed state of lat, one byte per spin.
func (a *Archive) Emit(step int, lat *core.Lattice) error {
	val := make([]byte, lat.Len())
	core.EncodeSpins(val, lat.Current())
	if err := a.db.Update(func(txn *badger.Txn) error {
		return txn.Set(a.key(step), val)
	}); err != nil {
		return fmt.Errorf("snapshot: archive step %d: %w", step, err)
	}
	return nil
}

// Steps lists the archived steps of this run in ascending order.
func (a *Archive) Steps() ([]int, error) {
	var steps []int
	prefix := a.prefix()
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().Key()
			step, err := strconv.Atoi(string(k[len(prefix):]))
			if err != nil {
				return fmt.Errorf("snapshot: malformed key %q: %w", k, err)
			}
			steps = append(steps, step)
		}
		return nil
	})
	return steps, err
}

// Load reads an archived snapshot back into a fresh lattice. The side is
// recovered from the stored length, one byte per cell.
func (a *Archive) Load(step int) (*core.Lattice, error) {
	var lat *core.Lattice
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(a.key(step))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %d", ErrNotFound, step)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			side := int(math.Sqrt(float64(len(val))))
			if side == 0 || side*side != len(val) {
				return fmt.Errorf("%w: step %d holds %d bytes, not a square lattice", ErrCorrupt, step, len(val))
			}
			lat, err = core.NewLattice(side)
			if err != nil {
				return err
			}
			return core.DecodeSpins(lat.Current(), val)
		})
	})
	if err != nil {
		return nil, err
	}
	return lat, nil
}

// Close flushes and closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}
