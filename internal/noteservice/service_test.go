package noteservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/checksum"
	"github.com/starford/quire/internal/snapshot"
	"github.com/starford/quire/internal/sse"
	"github.com/starford/quire/internal/storage"
	"github.com/starford/quire/internal/testutil"
)

type recordedEvent struct {
	typ, name, id string
	count         int
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) PublishNoteEvent(kind, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{typ: "note." + kind, name: name})
}

func (r *recorder) PublishSnapshotEvent(typ, name, id string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{typ: typ, name: name, id: id, count: count})
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.typ)
	}
	return out
}

type fixture struct {
	svc   *Service
	vault *storage.FS
	rec   *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	vault := testutil.TestVault(t)
	// A ticking clock gives every save its own snapshot id.
	var mu sync.Mutex
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	snaps := testutil.TestSnapshots(t, vault, snapshot.WithMaxSnapshots(3), snapshot.WithClock(clock))
	rec := &recorder{}
	svc := NewService(vault, testutil.TestDB(t), snaps, WithNotifier(rec))
	return &fixture{svc: svc, vault: vault, rec: rec}
}

func TestCreateNote_Template(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.svc.CreateNote(ctx, "My Ideas!", "")
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if n.Name != "MyIdeas.md" {
		t.Errorf("name = %q", n.Name)
	}
	if n.Content != "# MyIdeas\n\nStart writing your notes here..." {
		t.Errorf("content = %q", n.Content)
	}
	if n.Title != "MyIdeas" || !strings.Contains(n.HTML, "<h1>MyIdeas</h1>") {
		t.Errorf("detail = %+v", n)
	}

	if _, err := f.svc.CreateNote(ctx, "MyIdeas", "x"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate: err = %v, want ErrAlreadyExists", err)
	}
	if _, err := f.svc.CreateNote(ctx, "!!!", ""); !errors.Is(err, apperr.ErrInvalidName) {
		t.Errorf("bad name: err = %v, want ErrInvalidName", err)
	}

	hist, _ := f.svc.History(ctx, "MyIdeas.md")
	if len(hist) != 0 {
		t.Errorf("create took %d snapshots, want 0", len(hist))
	}
}

func TestGetNote_NotFound(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.GetNote(context.Background(), "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveNote_SnapshotsAndIfMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.SaveNote(ctx, "plan", "# Plan\nv1", "")
	if err != nil {
		t.Fatalf("SaveNote: %v", err)
	}
	if !res.Created || res.Snapshot.ID == "" {
		t.Fatalf("result = %+v", res)
	}

	if _, err := f.svc.SaveNote(ctx, "plan", "v2", "stale"); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("stale If-Match: err = %v, want ErrConflict", err)
	}

	current := checksum.ETag([]byte("# Plan\nv1"))
	res, err = f.svc.SaveNote(ctx, "plan.md", "# Plan\nv2", current)
	if err != nil {
		t.Fatalf("SaveNote with If-Match: %v", err)
	}
	if res.Created {
		t.Error("second save reported created")
	}

	hist, err := f.svc.History(ctx, "plan")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 || hist[0].ID != res.Snapshot.ID {
		t.Errorf("history = %+v", hist)
	}

	got, _ := f.vault.Read("plan.md")
	if string(got) != "# Plan\nv2" {
		t.Errorf("vault content = %q", got)
	}

	want := []string{sse.NoteCreated, sse.SnapshotCreated, sse.NoteUpdated, sse.SnapshotCreated}
	if got := f.rec.types(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestSaveNote_IfMatchOnMissingNote(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.SaveNote(context.Background(), "new", "x", `"abc"`); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestSaveNote_RetentionCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := f.svc.SaveNote(ctx, "n", fmt.Sprintf("v%d", i), ""); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	hist, _ := f.svc.History(ctx, "n")
	if len(hist) != 3 {
		t.Fatalf("history len = %d, want 3", len(hist))
	}
	oldest, err := f.svc.GetSnapshot(ctx, "n", hist[2].ID)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if oldest.Content != "v2" {
		t.Errorf("oldest kept = %q, want v2", oldest.Content)
	}
}

func TestRestoreSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, _ := f.svc.SaveNote(ctx, "r", "# First", "")
	_, _ = f.svc.SaveNote(ctx, "r", "# Second", "")

	n, err := f.svc.RestoreSnapshot(ctx, "r", first.Snapshot.ID)
	if err != nil {
		t.Fatalf("RestoreSnapshot: %v", err)
	}
	if n.Content != "# First" || n.Title != "First" {
		t.Errorf("restored = %+v", n)
	}

	hist, _ := f.svc.History(ctx, "r")
	if len(hist) != 2 {
		t.Errorf("restore changed history: %d entries", len(hist))
	}

	if _, err := f.svc.RestoreSnapshot(ctx, "r", "20000101T000000Z"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing snapshot: err = %v", err)
	}
	got, _ := f.vault.Read("r.md")
	if string(got) != "# First" {
		t.Errorf("failed restore changed content to %q", got)
	}
}

func TestRestoreAfterDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, _ := f.svc.SaveNote(ctx, "gone", "keep me", "")
	if err := f.svc.DeleteNote(ctx, "gone"); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if _, err := f.svc.GetNote(ctx, "gone"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("deleted note readable: %v", err)
	}
	if err := f.svc.DeleteNote(ctx, "gone"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete: err = %v", err)
	}

	n, err := f.svc.RestoreSnapshot(ctx, "gone", res.Snapshot.ID)
	if err != nil {
		t.Fatalf("RestoreSnapshot: %v", err)
	}
	if n.Content != "keep me" {
		t.Errorf("content = %q", n.Content)
	}
}

func TestClearHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.svc.SaveNote(ctx, "c", "1", "")
	_, _ = f.svc.SaveNote(ctx, "c", "2", "")

	n, err := f.svc.ClearHistory(ctx, "c")
	if err != nil || n != 2 {
		t.Fatalf("ClearHistory = %d, %v", n, err)
	}
	if hist, _ := f.svc.History(ctx, "c"); len(hist) != 0 {
		t.Errorf("history = %+v", hist)
	}
	if n, _ := f.svc.ClearHistory(ctx, "c"); n != 0 {
		t.Errorf("second clear = %d", n)
	}
	if _, err := f.svc.GetNote(ctx, "c"); err != nil {
		t.Errorf("clear removed the note: %v", err)
	}
}

func TestBacklinksAndListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.svc.SaveNote(ctx, "a", "# A\nsee [b](b.md)", "")
	_, _ = f.svc.SaveNote(ctx, "b", "# B", "")

	b, err := f.svc.GetNote(ctx, "b")
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if len(b.Backlinks) != 1 || b.Backlinks[0] != "a.md" {
		t.Errorf("backlinks = %v", b.Backlinks)
	}

	items, total, err := f.svc.ListNotes(ctx, 10, 0, "")
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if total != 2 || items[0].Name != "a.md" || items[0].Title != "A" {
		t.Errorf("items = %+v total %d", items, total)
	}

	hits, err := f.svc.Search(ctx, "B", 10)
	if err != nil || len(hits) == 0 {
		t.Errorf("Search = %+v, %v", hits, err)
	}
}

func TestRenderNote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.vault.Write("r.md", []byte("**bold**"))

	html, err := f.svc.RenderNote(ctx, "r")
	if err != nil {
		t.Fatalf("RenderNote: %v", err)
	}
	if html != "<strong>bold</strong>" {
		t.Errorf("html = %q", html)
	}
	if got := f.svc.Render("*x*"); got != "<em>x</em>" {
		t.Errorf("Render = %q", got)
	}
}

func TestEnsureDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.svc.EnsureDefault(ctx); err != nil {
		t.Fatalf("EnsureDefault: %v", err)
	}
	n, err := f.svc.GetNote(ctx, DefaultNote)
	if err != nil {
		t.Fatalf("default note missing: %v", err)
	}
	if !strings.HasPrefix(n.Content, "# Welcome to Quire!") {
		t.Errorf("content = %q", n.Content)
	}

	_ = f.vault.Delete(DefaultNote)
	_ = f.vault.Write("other.md", []byte("x"))
	if err := f.svc.EnsureDefault(ctx); err != nil {
		t.Fatalf("EnsureDefault: %v", err)
	}
	if ok, _ := f.vault.Exists(DefaultNote); ok {
		t.Error("default note seeded into a non-empty vault")
	}
}

func TestCreateNote_ConcurrentSameName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for trial := 0; trial < 10; trial++ {
		name := fmt.Sprintf("race-%d", trial)
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.svc.CreateNote(ctx, name, fmt.Sprintf("writer %d", i))
				switch {
				case err == nil:
					mu.Lock()
					created++
					mu.Unlock()
				case !errors.Is(err, apperr.ErrAlreadyExists):
					t.Errorf("CreateNote: %v", err)
				}
			}()
		}
		wg.Wait()
		if created != 1 {
			t.Errorf("trial %d: %d creates succeeded, want 1", trial, created)
		}
	}
}

func TestSaveNote_ConcurrentIfMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.SaveNote(ctx, "shared", "base", "")
	if err != nil {
		t.Fatalf("SaveNote: %v", err)
	}
	base := res.Note.Checksum

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		saved     int
		conflicts int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.SaveNote(ctx, "shared", fmt.Sprintf("edit %d", i), base)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				saved++
			case errors.Is(err, apperr.ErrConflict):
				conflicts++
			default:
				t.Errorf("SaveNote: %v", err)
			}
		}()
	}
	wg.Wait()
	if saved != 1 || conflicts != 5 {
		t.Errorf("saved = %d, conflicts = %d, want 1 and 5", saved, conflicts)
	}
}
