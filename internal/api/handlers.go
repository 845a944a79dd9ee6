package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/quire/internal/checksum"
	"github.com/starford/quire/internal/noteservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc          *noteservice.Service
	maxSnapshots int
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service, maxSnapshots int) *Handler {
	return &Handler{svc: svc, maxSnapshots: maxSnapshots}
}

func noteName(r *http.Request) string {
	return chi.URLParam(r, "name")
}

func setETag(w http.ResponseWriter, sum string) {
	w.Header().Set("ETag", checksum.Quote(sum))
}

// ListNotes handles GET /api/notes.
//
//	@Summary	List notes with pagination
//	@Tags		notes
//	@Produce	json
//	@Param		limit	query		int		false	"Page size"
//	@Param		offset	query		int		false	"Page offset"
//	@Param		sort	query		string	false	"Sort field"	Enums(name, updated, title)
//	@Success	200		{object}	NoteListResponse
//	@Router		/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListNotes(r.Context(), limit, offset, q.Get("sort"))
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: total})
}

// CreateNote handles POST /api/notes.
//
//	@Summary	Create a note, from the template when content is empty
//	@Tags		notes
//	@Accept		json
//	@Produce	json
//	@Param		body	body		CreateNoteRequest	true	"Note to create"
//	@Success	201		{object}	NoteDetail
//	@Failure	400		{object}	errResponse
//	@Failure	409		{object}	errResponse
//	@Router		/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	note, err := h.svc.CreateNote(r.Context(), req.Name, req.Content)
	if err != nil {
		writeError(w, "create note", err, slog.String("name", req.Name))
		return
	}
	setETag(w, note.Checksum)
	writeJSON(w, http.StatusCreated, note)
}

// GetNote handles GET /api/notes/{name}.
//
//	@Summary	Get a note with its rendering and outline
//	@Tags		notes
//	@Produce	json
//	@Param		name	path		string	true	"Note name"
//	@Success	200		{object}	NoteDetail
//	@Failure	404		{object}	errResponse
//	@Router		/notes/{name} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	name := noteName(r)
	note, err := h.svc.GetNote(r.Context(), name)
	if err != nil {
		writeError(w, "get note", err, slog.String("name", name))
		return
	}
	setETag(w, note.Checksum)
	writeJSON(w, http.StatusOK, note)
}

// SaveNote handles PUT /api/notes/{name}. Every save takes a snapshot.
//
//	@Summary	Save a note and snapshot it
//	@Tags		notes
//	@Accept		json
//	@Produce	json
//	@Param		name		path		string			true	"Note name"
//	@Param		If-Match	header		string			false	"Checksum of the content being replaced"
//	@Param		body		body		SaveNoteRequest	true	"New content"
//	@Success	200			{object}	noteservice.SaveResult
//	@Success	201			{object}	noteservice.SaveResult
//	@Failure	400			{object}	errResponse
//	@Failure	409			{object}	errResponse
//	@Router		/notes/{name} [put]
func (h *Handler) SaveNote(w http.ResponseWriter, r *http.Request) {
	name := noteName(r)
	var req SaveNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	res, err := h.svc.SaveNote(r.Context(), name, *req.Content, r.Header.Get("If-Match"))
	if err != nil {
		writeError(w, "save note", err, slog.String("name", name))
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	setETag(w, res.Note.Checksum)
	writeJSON(w, status, res)
}

// DeleteNote handles DELETE /api/notes/{name}. History is kept.
//
//	@Summary	Delete a note
//	@Tags		notes
//	@Param		name	path	string	true	"Note name"
//	@Success	204		"Note deleted"
//	@Failure	404		{object}	errResponse
//	@Router		/notes/{name} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	name := noteName(r)
	if err := h.svc.DeleteNote(r.Context(), name); err != nil {
		writeError(w, "delete note", err, slog.String("name", name))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RenderNote handles GET /api/notes/{name}/html.
//
//	@Summary	Rendered HTML fragment of a note
//	@Tags		notes
//	@Produce	html
//	@Param		name	path	string	true	"Note name"
//	@Success	200		{string}	string
//	@Failure	404		{object}	errResponse
//	@Router		/notes/{name}/html [get]
func (h *Handler) RenderNote(w http.ResponseWriter, r *http.Request) {
	name := noteName(r)
	html, err := h.svc.RenderNote(r.Context(), name)
	if err != nil {
		writeError(w, "render note", err, slog.String("name", name))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
}

// Render handles POST /api/render for live preview.
//
//	@Summary	Render posted Markdown
//	@Tags		render
//	@Accept		json
//	@Produce	json
//	@Param		body	body		RenderRequest	true	"Markdown text"
//	@Success	200		{object}	RenderResponse
//	@Router		/render [post]
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	writeJSON(w, http.StatusOK, RenderResponse{HTML: h.svc.Render(req.Content)})
}

// History handles GET /api/notes/{name}/history.
//
//	@Summary	List snapshots of a note, newest first
//	@Tags		history
//	@Produce	json
//	@Param		name	path		string	true	"Note name"
//	@Success	200		{object}	HistoryResponse
//	@Router		/notes/{name}/history [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	name := noteName(r)
	infos, err := h.svc.History(r.Context(), name)
	if err != nil {
		writeError(w, "list history", err, slog.String("name", name))
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Snapshots: infos, Max: h.maxSnapshots})
}

// GetSnapshot handles GET /api/notes/{name}/history/{id}.
//
//	@Summary	Get one snapshot with content and rendering
//	@Tags		history
//	@Produce	json
//	@Param		name	path		string	true	"Note name"
//	@Param		id		path		string	true	"Snapshot id"
//	@Success	200		{object}	noteservice.SnapshotDetail
//	@Failure	404		{object}	errResponse
//	@Router		/notes/{name}/history/{id} [get]
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	name, id := noteName(r), chi.URLParam(r, "id")
	snap, err := h.svc.GetSnapshot(r.Context(), name, id)
	if err != nil {
		writeError(w, "get snapshot", err, slog.String("name", name), slog.String("id", id))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// RestoreSnapshot handles POST /api/notes/{name}/history/{id}/restore.
//
//	@Summary	Restore a note to a snapshot
//	@Tags		history
//	@Produce	json
//	@Param		name	path		string	true	"Note name"
//	@Param		id		path		string	true	"Snapshot id"
//	@Success	200		{object}	NoteDetail
//	@Failure	404		{object}	errResponse
//	@Router		/notes/{name}/history/{id}/restore [post]
func (h *Handler) RestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	name, id := noteName(r), chi.URLParam(r, "id")
	note, err := h.svc.RestoreSnapshot(r.Context(), name, id)
	if err != nil {
		writeError(w, "restore snapshot", err, slog.String("name", name), slog.String("id", id))
		return
	}
	setETag(w, note.Checksum)
	writeJSON(w, http.StatusOK, note)
}

// ClearHistory handles DELETE /api/notes/{name}/history.
//
//	@Summary	Delete every snapshot of a note
//	@Tags		history
//	@Produce	json
//	@Param		name	path		string	true	"Note name"
//	@Success	200		{object}	ClearHistoryResponse
//	@Router		/notes/{name}/history [delete]
func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	name := noteName(r)
	n, err := h.svc.ClearHistory(r.Context(), name)
	if err != nil {
		writeError(w, "clear history", err, slog.String("name", name))
		return
	}
	writeJSON(w, http.StatusOK, ClearHistoryResponse{Deleted: n})
}

// Search handles GET /api/search.
//
//	@Summary	Full-text search across notes
//	@Tags		search
//	@Produce	json
//	@Param		q		query		string	true	"Search query"
//	@Param		limit	query		int		false	"Max results"
//	@Success	200		{object}	SearchResponse
//	@Failure	400		{object}	errResponse
//	@Router		/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err, slog.String("query", q))
		return
	}
	writeJSON(w, http.StatusOK, toSearchResponse(results))
}
