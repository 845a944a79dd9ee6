package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/quire/internal/noteservice"
	"github.com/starford/quire/internal/snapshot"
	"github.com/starford/quire/internal/testutil"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	vault := testutil.TestVault(t)
	var mu sync.Mutex
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	snaps := testutil.TestSnapshots(t, vault, snapshot.WithClock(clock))
	svc := noteservice.NewService(vault, testutil.TestDB(t), snaps)
	return New(svc, "test")
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process call helper, so dispatch to the handlers.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	case "render_note":
		result, err = srv.renderNote(ctx, req)
	case "create_note":
		result, err = srv.createNote(ctx, req)
	case "save_note":
		result, err = srv.saveNote(ctx, req)
	case "search_notes":
		result, err = srv.searchNotes(ctx, req)
	case "get_backlinks":
		result, err = srv.getBacklinks(ctx, req)
	case "list_snapshots":
		result, err = srv.listSnapshots(ctx, req)
	case "read_snapshot":
		result, err = srv.readSnapshot(ctx, req)
	case "restore_snapshot":
		result, err = srv.restoreSnapshot(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateAndReadNote(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "create_note", map[string]any{
		"name":    "hello",
		"content": "# Hello\nWorld",
	})
	if r.IsError {
		t.Fatalf("create error: %s", resultText(r))
	}
	if got := resultText(r); got != "created: hello.md" {
		t.Errorf("create result = %q", got)
	}

	r = callTool(t, srv, "read_note", map[string]any{"name": "hello.md"})
	if r.IsError {
		t.Fatalf("read error: %s", resultText(r))
	}
	var note struct {
		Name, Checksum, Content string
	}
	if err := json.Unmarshal([]byte(resultText(r)), &note); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if note.Content != "# Hello\nWorld" || note.Checksum == "" {
		t.Errorf("note = %+v", note)
	}
}

func TestCreateDuplicate(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "create_note", map[string]any{"name": "dup.md", "content": "x"})

	r := callTool(t, srv, "create_note", map[string]any{"name": "dup.md", "content": "y"})
	if !r.IsError {
		t.Fatal("expected error for duplicate note")
	}
}

func TestReadMissingNote(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "read_note", map[string]any{"name": "nope.md"})
	if !r.IsError {
		t.Fatal("expected error for missing note")
	}
	if !strings.Contains(resultText(r), "not found") {
		t.Errorf("error text = %q", resultText(r))
	}
}

func TestRequiredArgument(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "read_note", map[string]any{})
	if !r.IsError {
		t.Fatal("expected error without name")
	}
}

func TestRenderNote(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "render_note", map[string]any{"content": "**bold**"})
	if got := resultText(r); got != "<strong>bold</strong>" {
		t.Errorf("render content = %q", got)
	}

	callTool(t, srv, "create_note", map[string]any{"name": "r.md", "content": "# Title"})
	r = callTool(t, srv, "render_note", map[string]any{"name": "r.md"})
	if got := resultText(r); got != "<h1>Title</h1>" {
		t.Errorf("render note = %q", got)
	}

	r = callTool(t, srv, "render_note", map[string]any{})
	if !r.IsError {
		t.Error("expected error without name or content")
	}
}

func TestSaveNoteIfMatch(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "create_note", map[string]any{"name": "s.md", "content": "v1"})

	r := callTool(t, srv, "save_note", map[string]any{
		"name":     "s.md",
		"content":  "v2",
		"if_match": "stale",
	})
	if !r.IsError {
		t.Fatal("expected conflict for stale checksum")
	}

	var note struct{ Checksum string }
	_ = json.Unmarshal([]byte(resultText(callTool(t, srv, "read_note", map[string]any{"name": "s.md"}))), &note)

	r = callTool(t, srv, "save_note", map[string]any{
		"name":     "s.md",
		"content":  "v2",
		"if_match": note.Checksum,
	})
	if r.IsError {
		t.Fatalf("save error: %s", resultText(r))
	}
	var saved struct {
		Snapshot string `json:"snapshot"`
		Created  bool   `json:"created"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &saved); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if saved.Snapshot == "" || saved.Created {
		t.Errorf("save result = %+v", saved)
	}
}

func TestSnapshotsAndRestore(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "save_note", map[string]any{"name": "h.md", "content": "first"})
	callTool(t, srv, "save_note", map[string]any{"name": "h.md", "content": "second"})

	r := callTool(t, srv, "list_snapshots", map[string]any{"name": "h.md"})
	if r.IsError {
		t.Fatalf("list error: %s", resultText(r))
	}
	var infos []snapshot.Info
	if err := json.Unmarshal([]byte(resultText(r)), &infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(infos))
	}
	oldest := infos[1].ID

	r = callTool(t, srv, "read_snapshot", map[string]any{"name": "h.md", "id": oldest})
	if got := resultText(r); got != "first" {
		t.Errorf("snapshot content = %q", got)
	}

	r = callTool(t, srv, "restore_snapshot", map[string]any{"name": "h.md", "id": oldest})
	if r.IsError {
		t.Fatalf("restore error: %s", resultText(r))
	}

	var note struct{ Content string }
	_ = json.Unmarshal([]byte(resultText(callTool(t, srv, "read_note", map[string]any{"name": "h.md"}))), &note)
	if note.Content != "first" {
		t.Errorf("content after restore = %q", note.Content)
	}

	r = callTool(t, srv, "restore_snapshot", map[string]any{"name": "h.md", "id": "20000101T000000Z"})
	if !r.IsError {
		t.Error("expected error for missing snapshot")
	}
}

func TestListNotes(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "create_note", map[string]any{"name": "b.md", "content": "# B"})
	callTool(t, srv, "create_note", map[string]any{"name": "a.md", "content": "# A"})

	r := callTool(t, srv, "list_notes", map[string]any{"sort": "name"})
	var out struct {
		Notes []struct {
			Name string `json:"name"`
		} `json:"notes"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Total != 2 || len(out.Notes) != 2 || out.Notes[0].Name != "a.md" {
		t.Errorf("list = %+v", out)
	}
}

func TestSearchNotes(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "create_note", map[string]any{"name": "go.md", "content": "# Go\nconcurrency patterns"})

	r := callTool(t, srv, "search_notes", map[string]any{"query": "concurrency"})
	if r.IsError {
		t.Fatalf("search error: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "go.md") {
		t.Errorf("search result = %s", resultText(r))
	}
}

func TestGetBacklinks(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "create_note", map[string]any{"name": "target.md", "content": "# Target"})
	callTool(t, srv, "create_note", map[string]any{"name": "source.md", "content": "see [target](target.md)"})

	r := callTool(t, srv, "get_backlinks", map[string]any{"name": "target.md"})
	if got := resultText(r); got != "source.md" {
		t.Errorf("backlinks = %q", got)
	}

	r = callTool(t, srv, "get_backlinks", map[string]any{"name": "source.md"})
	if got := resultText(r); got != "no backlinks found" {
		t.Errorf("backlinks = %q", got)
	}
}

func TestContractResource(t *testing.T) {
	srv := testServer(t)
	contents, err := srv.readContractResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != ContractURI || !strings.Contains(tc.Text, "Quire Markdown Subset") {
		t.Errorf("contract resource = %+v", contents[0])
	}
}
