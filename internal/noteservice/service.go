// Package noteservice implements the note operations shared by the HTTP API
// and the MCP server: reading and rendering notes, saving them through the
// snapshot store, and browsing or restoring their history.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/checksum"
	"github.com/starford/quire/internal/index"
	"github.com/starford/quire/internal/markdown"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/parser"
	"github.com/starford/quire/internal/snapshot"
	"github.com/starford/quire/internal/sse"
	"github.com/starford/quire/internal/storage"
)

// DefaultNote is the note seeded into an empty vault.
const DefaultNote = "welcome.md"

const welcomeContent = `# Welcome to Quire!

This is your notes app. You can:

* Write in **Markdown**
* Create multiple notes
* Restore any saved version from the history

## Features

- Headers, *emphasis*, ` + "`code`" + ` and [links](welcome.md)
- Tables and nested lists
  - like this one
- Full-text search

Start taking notes!`

// Notifier receives change notifications. *sse.Broker implements it.
type Notifier interface {
	PublishNoteEvent(kind, name string)
	PublishSnapshotEvent(typ, name, snapshotID string, count int)
}

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Name      string           `json:"name"`
	Title     string           `json:"title"`
	Content   string           `json:"content"`
	Checksum  string           `json:"checksum"`
	HTML      string           `json:"html"`
	Headings  []models.Heading `json:"headings"`
	Links     []string         `json:"links"`
	Backlinks []string         `json:"backlinks"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NoteListItem is one entry of a list response.
type NoteListItem struct {
	Name      string    `json:"name"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SnapshotDetail is one snapshot with its content and rendering.
type SnapshotDetail struct {
	snapshot.Info
	Content string `json:"content"`
	HTML    string `json:"html"`
}

// SaveResult is returned by SaveNote.
type SaveResult struct {
	Note     *NoteDetail   `json:"note"`
	Snapshot snapshot.Info `json:"snapshot"`
	Created  bool          `json:"created"`
}

// Service coordinates storage, the index, the snapshot store and rendering.
type Service struct {
	store       storage.Provider
	db          index.NoteIndex
	snaps       *snapshot.Store
	renderer    *markdown.Renderer
	notifier    Notifier
	defaultNote string
	logger      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRenderer sets the Markdown renderer.
func WithRenderer(r *markdown.Renderer) Option {
	return func(s *Service) { s.renderer = r }
}

// WithNotifier sets the change notifier.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithDefaultNote sets the note seeded into an empty vault.
func WithDefaultNote(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.defaultNote = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a note service.
func NewService(store storage.Provider, db index.NoteIndex, snaps *snapshot.Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		db:          db,
		snaps:       snaps,
		renderer:    markdown.New(),
		defaultNote: DefaultNote,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetNote reads a note and its rendering, outline and backlinks.
func (s *Service) GetNote(_ context.Context, rawName string) (*NoteDetail, error) {
	name, data, err := s.read(rawName)
	if err != nil {
		return nil, err
	}
	return s.buildNoteDetail(name, data)
}

// RenderNote returns the HTML rendering of a stored note.
func (s *Service) RenderNote(_ context.Context, rawName string) (string, error) {
	_, data, err := s.read(rawName)
	if err != nil {
		return "", err
	}
	return s.renderer.Render(string(data)), nil
}

// Render renders arbitrary text for live preview.
func (s *Service) Render(text string) string {
	return s.renderer.Render(text)
}

// CreateNote creates a note that must not exist yet. Empty content is
// replaced by the new-note template. Creating does not take a snapshot.
func (s *Service) CreateNote(ctx context.Context, rawName, content string) (*NoteDetail, error) {
	name, err := storage.SanitizeName(rawName)
	if err != nil {
		return nil, err
	}
	if content == "" {
		content = NewNoteTemplate(name)
	}
	data := []byte(content)
	if err := s.snaps.Create(ctx, name, data); err != nil {
		return nil, err
	}
	s.reindex(name, data)
	s.notifyNote("created", name)
	return s.buildNoteDetail(name, data)
}

// NewNoteTemplate is the initial content of a note created without content.
func NewNoteTemplate(name string) string {
	return "# " + storage.Stem(name) + "\n\nStart writing your notes here..."
}

// SaveNote is the save action: it replaces the content of a note and takes a
// snapshot of it. A missing note is created. A non-empty ifMatch must name
// the current content, otherwise the save fails with apperr.ErrConflict. The
// check and the write run under the note's lock.
func (s *Service) SaveNote(ctx context.Context, rawName, content, ifMatch string) (*SaveResult, error) {
	name, err := storage.SanitizeName(rawName)
	if err != nil {
		return nil, err
	}

	created := false
	data := []byte(content)
	snap, err := s.snaps.CommitIf(ctx, name, data, func(current []byte, exists bool) error {
		created = !exists
		switch {
		case !exists && ifMatch != "" && ifMatch != "*":
			return fmt.Errorf("noteservice: save %s: %w", name, apperr.ErrConflict)
		case exists && !checksum.Matches(ifMatch, current):
			return fmt.Errorf("noteservice: save %s: %w", name, apperr.ErrConflict)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.reindex(name, data)

	if created {
		s.notifyNote("created", name)
	} else {
		s.notifyNote("updated", name)
	}
	s.notifySnapshot(sse.SnapshotCreated, name, snap.ID, 0)

	detail, err := s.buildNoteDetail(name, data)
	if err != nil {
		return nil, err
	}
	return &SaveResult{
		Note:     detail,
		Snapshot: snapshot.Info{Document: snap.Document, ID: snap.ID, CreatedAt: snap.CreatedAt},
		Created:  created,
	}, nil
}

// DeleteNote removes a note. Its history is kept and can restore it.
func (s *Service) DeleteNote(ctx context.Context, rawName string) error {
	name, err := storage.SanitizeName(rawName)
	if err != nil {
		return err
	}
	if err := s.snaps.Remove(ctx, name); err != nil {
		return err
	}
	if err := s.db.DeleteNote(name); err != nil {
		s.logger.Warn("noteservice: unindex failed", slog.String("name", name), slog.String("error", err.Error()))
	}
	s.notifyNote("deleted", name)
	return nil
}

// ListNotes returns one page of notes from the index.
func (s *Service) ListNotes(_ context.Context, limit, offset int, sort string) ([]NoteListItem, int, error) {
	rows, total, err := s.db.ListNotes(limit, offset, sort)
	if err != nil {
		return nil, 0, err
	}
	items := make([]NoteListItem, len(rows))
	for i, r := range rows {
		items[i] = NoteListItem{
			Name:      r.Name,
			Title:     r.Title,
			Checksum:  r.Checksum,
			UpdatedAt: r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// History lists the snapshots of a note, newest first.
func (s *Service) History(ctx context.Context, rawName string) ([]snapshot.Info, error) {
	name, err := storage.SanitizeName(rawName)
	if err != nil {
		return nil, err
	}
	infos, err := s.snaps.List(ctx, name)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(infos), nil
}

// GetSnapshot reads one snapshot of a note.
func (s *Service) GetSnapshot(ctx context.Context, rawName, id string) (*SnapshotDetail, error) {
	name, err := storage.SanitizeName(rawName)
	if err != nil {
		return nil, err
	}
	snap, err := s.snaps.Get(ctx, name, id)
	if err != nil {
		return nil, err
	}
	return &SnapshotDetail{
		Info:    snapshot.Info{Document: snap.Document, ID: snap.ID, CreatedAt: snap.CreatedAt},
		Content: string(snap.Content),
		HTML:    s.renderer.Render(string(snap.Content)),
	}, nil
}

// RestoreSnapshot makes snapshot id the current content of a note. The
// replaced content is not snapshotted.
func (s *Service) RestoreSnapshot(ctx context.Context, rawName, id string) (*NoteDetail, error) {
	name, err := storage.SanitizeName(rawName)
	if err != nil {
		return nil, err
	}
	snap, err := s.snaps.Restore(ctx, id, name)
	if err != nil {
		return nil, err
	}
	s.reindex(name, snap.Content)
	s.notifySnapshot(sse.NoteRestored, name, snap.ID, 0)
	return s.buildNoteDetail(name, snap.Content)
}

// ClearHistory deletes every snapshot of a note and returns how many were
// removed.
func (s *Service) ClearHistory(ctx context.Context, rawName string) (int, error) {
	name, err := storage.SanitizeName(rawName)
	if err != nil {
		return 0, err
	}
	n, err := s.snaps.DeleteAll(ctx, name)
	if err != nil {
		return n, err
	}
	s.notifySnapshot(sse.HistoryCleared, name, "", n)
	return n, nil
}

// EnsureDefault seeds the default note when the vault holds no notes.
func (s *Service) EnsureDefault(ctx context.Context) error {
	metas, err := s.store.List()
	if err != nil {
		return storageErr("seed", s.defaultNote, err)
	}
	if len(metas) > 0 {
		return nil
	}
	name, err := storage.SanitizeName(s.defaultNote)
	if err != nil {
		return err
	}
	data := []byte(welcomeContent)
	if err := s.snaps.Create(ctx, name, data); err != nil {
		return err
	}
	s.reindex(name, data)
	s.logger.Info("noteservice: seeded default note", slog.String("name", name))
	return nil
}

// DefaultNoteName returns the configured default note.
func (s *Service) DefaultNoteName() string {
	return s.defaultNote
}

func (s *Service) read(rawName string) (string, []byte, error) {
	name, err := storage.SanitizeName(rawName)
	if err != nil {
		return "", nil, err
	}
	data, err := s.store.Read(name)
	if err != nil {
		return "", nil, storageErr("read", name, err)
	}
	return name, data, nil
}

// reindex refreshes the index entry of a durable note. Failures are logged:
// the watcher reconciles the index later.
func (s *Service) reindex(name string, data []byte) {
	if err := index.IndexNote(s.db, name, data, time.Now()); err != nil {
		s.logger.Warn("noteservice: index failed", slog.String("name", name), slog.String("error", err.Error()))
	}
}

func (s *Service) buildNoteDetail(name string, data []byte) (*NoteDetail, error) {
	o := parser.Parse(data)
	bl, err := s.db.Backlinks(name)
	if err != nil {
		return nil, err
	}
	updated := time.Now().UTC()
	if row, err := s.db.GetNote(name); err == nil {
		updated = row.UpdatedAt
	}
	return &NoteDetail{
		Name:      name,
		Title:     titleOr(o.Title, name),
		Content:   string(data),
		Checksum:  checksum.Sum(data),
		HTML:      s.renderer.Render(string(data)),
		Headings:  nonNilSlice(o.Headings),
		Links:     nonNilSlice(o.Links),
		Backlinks: nonNilSlice(bl),
		UpdatedAt: updated,
	}, nil
}

func (s *Service) notifyNote(kind, name string) {
	if s.notifier != nil {
		s.notifier.PublishNoteEvent(kind, name)
	}
}

func (s *Service) notifySnapshot(typ, name, id string, count int) {
	if s.notifier != nil {
		s.notifier.PublishSnapshotEvent(typ, name, id, count)
	}
}

func titleOr(title, name string) string {
	if title != "" {
		return title
	}
	return storage.Stem(name)
}

// storageErr maps vault errors: missing notes become apperr.ErrNotFound,
// invalid names pass through and everything else is apperr.ErrStorage.
func storageErr(op, name string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("noteservice: %s %s: %w", op, name, apperr.ErrNotFound)
	case errors.Is(err, apperr.ErrInvalidName):
		return fmt.Errorf("noteservice: %s %s: %w", op, name, err)
	default:
		return fmt.Errorf("noteservice: %s %s: %w: %w", op, name, apperr.ErrStorage, err)
	}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
