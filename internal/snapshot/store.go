// Package snapshot keeps a bounded, timestamped history of note contents and
// restores earlier versions.
//
// Every operation on one note runs under that note's lock, including creating
// and removing the note itself, so a snapshot is only ever taken of content
// that became the durable current state and eviction finishes before the next
// save on the same note starts. Different notes do not block each other.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/starford/quire/internal/apperr"
)

// DefaultMaxSnapshots is the retention cap used when none is configured.
const DefaultMaxSnapshots = 50

// HistoryProvider is the durable backing for snapshots, keyed by note name
// and snapshot id.
type HistoryProvider interface {
	List(note string) ([]string, error)
	Read(note, id string) ([]byte, error)
	Write(note, id string, content []byte) error
	Delete(note, id string) error
	// Prune drops the per-note container once it is empty.
	Prune(note string) error
}

// DocumentStore holds the current content of each note. *storage.FS
// implements it.
type DocumentStore interface {
	Read(name string) ([]byte, error)
	Exists(name string) (bool, error)
	Write(name string, content []byte) error
	Delete(name string) error
}

// Precondition inspects the current content of a note before a conditional
// commit. exists is false for a note that has not been created yet. A
// non-nil error aborts the commit and is returned unchanged.
type Precondition func(current []byte, exists bool) error

// Snapshot is an immutable full copy of a note at one instant.
type Snapshot struct {
	Document  string    `json:"document"`
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Content   []byte    `json:"-"`
}

// Info describes a snapshot without its content.
type Info struct {
	Document  string    `json:"document"`
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Store manages the snapshot history of every note.
type Store struct {
	docs    DocumentStore
	history HistoryProvider
	max     int
	now     func() time.Time
	logger  *slog.Logger
	locks   keyedMutex
}

// Option configures a Store.
type Option func(*Store)

// WithMaxSnapshots sets the retention cap per note. Values below 1 are
// ignored.
func WithMaxSnapshots(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.max = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger used for skipped entries and evictions.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates a Store writing current content to docs and snapshots to
// history.
func New(docs DocumentStore, history HistoryProvider, opts ...Option) *Store {
	s := &Store{
		docs:    docs,
		history: history,
		max:     DefaultMaxSnapshots,
		now:     time.Now,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxSnapshots returns the retention cap.
func (s *Store) MaxSnapshots() int {
	return s.max
}

// Commit is the save action for a note: it replaces the current content and
// then snapshots it. If the content cannot be written no snapshot is taken.
func (s *Store) Commit(_ context.Context, doc string, content []byte) (*Snapshot, error) {
	unlock := s.locks.lock(doc)
	defer unlock()

	return s.commit(doc, content)
}

// CommitIf is Commit guarded by check, which runs under the note's lock
// against the content being replaced.
func (s *Store) CommitIf(_ context.Context, doc string, content []byte, check Precondition) (*Snapshot, error) {
	unlock := s.locks.lock(doc)
	defer unlock()

	current, err := s.docs.Read(doc)
	exists := true
	switch {
	case errors.Is(err, os.ErrNotExist):
		exists = false
	case err != nil:
		return nil, storageErr("commit", doc, err)
	}
	if err := check(current, exists); err != nil {
		return nil, err
	}
	return s.commit(doc, content)
}

func (s *Store) commit(doc string, content []byte) (*Snapshot, error) {
	if err := s.docs.Write(doc, content); err != nil {
		return nil, storageErr("commit", doc, err)
	}
	return s.save(doc, content)
}

// Create writes the first content of a note without taking a snapshot. An
// existing note is apperr.ErrAlreadyExists and is left untouched.
func (s *Store) Create(_ context.Context, doc string, content []byte) error {
	unlock := s.locks.lock(doc)
	defer unlock()

	exists, err := s.docs.Exists(doc)
	if err != nil {
		return storageErr("create", doc, err)
	}
	if exists {
		return fmt.Errorf("snapshot: create %s: %w", doc, apperr.ErrAlreadyExists)
	}
	if err := s.docs.Write(doc, content); err != nil {
		return storageErr("create", doc, err)
	}
	return nil
}

// Remove deletes the current content of a note. Its snapshots are kept, so
// Restore can bring it back.
func (s *Store) Remove(_ context.Context, doc string) error {
	unlock := s.locks.lock(doc)
	defer unlock()

	if err := s.docs.Delete(doc); err != nil {
		return storageErr("remove", doc, err)
	}
	return nil
}

// Save stores a snapshot of content for doc and evicts the oldest snapshots
// beyond the retention cap. A second save within the same second replaces
// the earlier snapshot.
func (s *Store) Save(_ context.Context, doc string, content []byte) (*Snapshot, error) {
	unlock := s.locks.lock(doc)
	defer unlock()
	return s.save(doc, content)
}

func (s *Store) save(doc string, content []byte) (*Snapshot, error) {
	created := s.now().UTC().Truncate(time.Second)
	snap := &Snapshot{
		Document:  doc,
		ID:        FormatID(created),
		CreatedAt: created,
		Content:   append([]byte(nil), content...),
	}
	if err := s.history.Write(doc, snap.ID, snap.Content); err != nil {
		return nil, storageErr("save", doc, err)
	}
	if _, err := s.evict(doc); err != nil {
		return nil, err
	}
	return snap, nil
}

// Evict deletes the oldest snapshots of doc until at most the retention cap
// remain and returns how many were deleted.
func (s *Store) Evict(_ context.Context, doc string) (int, error) {
	unlock := s.locks.lock(doc)
	defer unlock()
	return s.evict(doc)
}

func (s *Store) evict(doc string) (int, error) {
	infos, err := s.list(doc)
	if err != nil {
		return 0, err
	}
	if len(infos) <= s.max {
		return 0, nil
	}
	deleted := 0
	// infos is newest first; walk from the oldest end.
	for i := len(infos) - 1; i >= s.max; i-- {
		if err := s.history.Delete(doc, infos[i].ID); err != nil {
			return deleted, storageErr("evict", doc, err)
		}
		deleted++
	}
	s.logger.Debug("snapshot: evicted",
		slog.String("document", doc),
		slog.Int("count", deleted),
		slog.Int("max", s.max))
	return deleted, nil
}

// List returns the snapshots of doc, newest first. Entries whose id is not a
// valid timestamp are skipped.
func (s *Store) List(_ context.Context, doc string) ([]Info, error) {
	return s.list(doc)
}

func (s *Store) list(doc string) ([]Info, error) {
	ids, err := s.history.List(doc)
	if err != nil {
		return nil, storageErr("list", doc, err)
	}
	out := make([]Info, 0, len(ids))
	for _, id := range ids {
		created, err := ParseID(id)
		if err != nil {
			s.logger.Debug("snapshot: skipped entry",
				slog.String("document", doc),
				slog.String("id", id),
				slog.String("error", err.Error()))
			continue
		}
		out = append(out, Info{Document: doc, ID: id, CreatedAt: created})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Get reads one snapshot with its content.
func (s *Store) Get(_ context.Context, doc, id string) (*Snapshot, error) {
	return s.get(doc, id)
}

func (s *Store) get(doc, id string) (*Snapshot, error) {
	created, err := ParseID(id)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %s/%s: %w", doc, id, apperr.ErrNotFound)
	}
	data, err := s.history.Read(doc, id)
	if err != nil {
		return nil, storageErr("read", doc, err)
	}
	return &Snapshot{Document: doc, ID: id, CreatedAt: created, Content: data}, nil
}

// Restore overwrites the current content of doc with snapshot id. It does not
// snapshot the state being replaced. A missing snapshot is apperr.ErrNotFound
// and leaves the note untouched.
func (s *Store) Restore(_ context.Context, id, doc string) (*Snapshot, error) {
	unlock := s.locks.lock(doc)
	defer unlock()

	snap, err := s.get(doc, id)
	if err != nil {
		return nil, err
	}
	if err := s.docs.Write(doc, snap.Content); err != nil {
		return nil, storageErr("restore", doc, err)
	}
	return snap, nil
}

// DeleteAll removes every snapshot of doc and its history container and
// returns how many snapshots were removed.
func (s *Store) DeleteAll(_ context.Context, doc string) (int, error) {
	unlock := s.locks.lock(doc)
	defer unlock()

	ids, err := s.history.List(doc)
	if err != nil {
		return 0, storageErr("delete all", doc, err)
	}
	deleted := 0
	for _, id := range ids {
		if err := s.history.Delete(doc, id); err != nil {
			return deleted, storageErr("delete all", doc, err)
		}
		deleted++
	}
	if err := s.history.Prune(doc); err != nil {
		return deleted, storageErr("delete all", doc, err)
	}
	return deleted, nil
}

// storageErr classifies a backend error: missing files become
// apperr.ErrNotFound, invalid names pass through and everything else is
// apperr.ErrStorage.
func storageErr(op, doc string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("snapshot: %s %s: %w", op, doc, apperr.ErrNotFound)
	case errors.Is(err, apperr.ErrInvalidName):
		return fmt.Errorf("snapshot: %s %s: %w", op, doc, err)
	default:
		return fmt.Errorf("snapshot: %s %s: %w: %w", op, doc, apperr.ErrStorage, err)
	}
}
