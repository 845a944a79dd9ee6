// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes Quire notes and their history to LLM clients over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/noteservice"
)

// ContractURI names the Markdown subset resource.
const ContractURI = "quire://markdown-subset"

// Server wraps the MCP server with Quire tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates an MCP server with all Quire tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Quire",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes in the vault with their titles and checksums."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of notes (default 100)")),
		mcp.WithString("sort", mcp.Description("Sort order: name, updated or title")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the raw Markdown of a note and its checksum."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Note name, e.g. plan.md")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("render_note",
		mcp.WithDescription("Render a note, or the given content, to HTML."),
		mcp.WithString("name", mcp.Description("Note name to render")),
		mcp.WithString("content", mcp.Description("Markdown to render instead of a stored note")),
	), s.renderNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note. Without content the note starts from the default template. "+
			"Read the "+ContractURI+" resource for the supported Markdown."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Name of the new note")),
		mcp.WithString("content", mcp.Description("Initial Markdown content")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("save_note",
		mcp.WithDescription("Replace the content of a note and keep a snapshot of the saved version."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Note name")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full new Markdown content")),
		mcp.WithString("if_match", mcp.Description("Checksum from read_note; the save fails if the note changed")),
	), s.saveNote)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note titles and content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all notes that link to the specified note."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Note name")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("list_snapshots",
		mcp.WithDescription("List the saved snapshots of a note, newest first."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Note name")),
	), s.listSnapshots)

	s.mcp.AddTool(mcp.NewTool("read_snapshot",
		mcp.WithDescription("Read the content of one snapshot."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Note name")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Snapshot id from list_snapshots")),
	), s.readSnapshot)

	s.mcp.AddTool(mcp.NewTool("restore_snapshot",
		mcp.WithDescription("Make a snapshot the current content of its note. The replaced content is not snapshotted."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Note name")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Snapshot id from list_snapshots")),
	), s.restoreSnapshot)

	s.mcp.AddResource(
		mcp.NewResource(ContractURI, "Markdown Subset",
			mcp.WithResourceDescription("The Markdown constructs Quire renders and how to use them."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// optString returns an optional string argument, or "" when it is absent.
func optString(req mcp.CallToolRequest, key string) string {
	if v, err := req.RequireString(key); err == nil {
		return v
	}
	return ""
}

// toolError turns a service error into a tool-level error result.
func toolError(name string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", name))
	case errors.Is(err, apperr.ErrAlreadyExists):
		return mcp.NewToolResultError(fmt.Sprintf("note already exists: %s", name))
	case errors.Is(err, apperr.ErrConflict):
		return mcp.NewToolResultError(fmt.Sprintf("note changed since it was read: %s", name))
	case errors.Is(err, apperr.ErrInvalidName):
		return mcp.NewToolResultError(fmt.Sprintf("invalid note name: %q", name))
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 100)
	items, total, err := s.svc.ListNotes(ctx, limit, 0, optString(req, "sort"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"notes": items, "total": total})
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.GetNote(ctx, name)
	if err != nil {
		return toolError(name, err), nil
	}
	return jsonResult(map[string]any{
		"name":     note.Name,
		"checksum": note.Checksum,
		"content":  note.Content,
	})
}

func (s *Server) renderNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if content := optString(req, "content"); content != "" {
		return mcp.NewToolResultText(s.svc.Render(content)), nil
	}
	name := optString(req, "name")
	if name == "" {
		return mcp.NewToolResultError("name or content is required"), nil
	}
	html, err := s.svc.RenderNote(ctx, name)
	if err != nil {
		return toolError(name, err), nil
	}
	return mcp.NewToolResultText(html), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.CreateNote(ctx, name, optString(req, "content"))
	if err != nil {
		return toolError(name, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", note.Name)), nil
}

func (s *Server) saveNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.SaveNote(ctx, name, content, optString(req, "if_match"))
	if err != nil {
		return toolError(name, err), nil
	}
	return jsonResult(map[string]any{
		"name":     res.Note.Name,
		"checksum": res.Note.Checksum,
		"snapshot": res.Snapshot.ID,
		"created":  res.Created,
	})
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.GetNote(ctx, name)
	if err != nil {
		return toolError(name, err), nil
	}
	if len(note.Backlinks) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(note.Backlinks, "\n")), nil
}

func (s *Server) listSnapshots(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	infos, err := s.svc.History(ctx, name)
	if err != nil {
		return toolError(name, err), nil
	}
	return jsonResult(infos)
}

func (s *Server) readSnapshot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snap, err := s.svc.GetSnapshot(ctx, name, id)
	if err != nil {
		return toolError(name+"@"+id, err), nil
	}
	return mcp.NewToolResultText(snap.Content), nil
}

func (s *Server) restoreSnapshot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.RestoreSnapshot(ctx, name, id)
	if err != nil {
		return toolError(name+"@"+id, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("restored: %s to %s", note.Name, id)), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ContractURI,
			MIMEType: "text/markdown",
			Text:     MarkdownContract,
		},
	}, nil
}
