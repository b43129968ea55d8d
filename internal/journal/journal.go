// Package journal persists in-flight replacements so an interrupted run can
// be settled with `rdup recover`.
package journal

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ivoronin/rdup/internal/types"
)

const bucketName = "pending"

const valueVersion byte = 1 // Increment when value format changes

// ErrCorrupt is returned for entries that cannot be decoded.
var ErrCorrupt = errors.New("corrupt journal entry")

// Entry is one replacement that was started but not yet settled.
type Entry struct {
	Target string
	Source string
	Kind   types.LinkKind
}

// Journal records replacements in a BoltDB file.
// Every Begin and Commit is its own fsynced transaction.
type Journal struct {
	db      *bolt.DB
	path    string
	enabled bool
}

// Open opens or creates the journal at path.
// BoltDB's file lock keeps two instances from sharing one journal.
// Returns a disabled journal if path is empty.
func Open(path string) (*Journal, error) {
	if path == "" {
		return &Journal{enabled: false}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal (locked by another instance?): %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Journal{db: db, path: path, enabled: true}, nil
}

// Begin records that target is about to be replaced by a link to source.
func (j *Journal) Begin(source, target string, kind types.LinkKind) error {
	if !j.enabled {
		return nil
	}
	err := j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(target), encode(source, kind))
	})
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	return nil
}

// Commit removes the entry for target.
func (j *Journal) Commit(target string) error {
	if !j.enabled {
		return nil
	}
	err := j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(target))
	})
	if err != nil {
		return fmt.Errorf("journal commit: %w", err)
	}
	return nil
}

// Pending returns unsettled entries ordered by target path.
func (j *Journal) Pending() ([]Entry, error) {
	if !j.enabled {
		return nil, nil
	}
	var entries []Entry
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			source, kind, err := decode(v)
			if err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			entries = append(entries, Entry{Target: string(k), Source: source, Kind: kind})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("journal read: %w", err)
	}
	return entries, nil
}

// Close closes the database. A journal with nothing pending is removed.
func (j *Journal) Close() error {
	if !j.enabled || j.db == nil {
		return nil
	}
	pending, pendErr := j.Pending()
	if err := j.db.Close(); err != nil {
		return err
	}
	j.db = nil
	if pendErr == nil && len(pending) == 0 {
		if err := os.Remove(j.path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// encode builds the stored value.
// Value = ver(1) + kind(1) + source
func encode(source string, kind types.LinkKind) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(valueVersion)
	buf.WriteByte(byte(kind))
	buf.WriteString(source)
	return buf.Bytes()
}

func decode(v []byte) (string, types.LinkKind, error) {
	if len(v) < 2 || v[0] != valueVersion {
		return "", 0, ErrCorrupt
	}
	kind := types.LinkKind(v[1])
	if kind != types.LinkHard && kind != types.LinkSoft {
		return "", 0, ErrCorrupt
	}
	return string(v[2:]), kind, nil
}
