package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/quire/internal/index"
	"github.com/starford/quire/internal/noteservice"
	"github.com/starford/quire/internal/snapshot"
)

// maxNameLen bounds note names before sanitising.
const maxNameLen = 255

// CreateNoteRequest is the request body for creating a note. Empty content
// uses the new-note template.
type CreateNoteRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Validate checks the request.
func (r *CreateNoteRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, maxNameLen)),
	)
}

// SaveNoteRequest is the request body for saving a note. Content may be
// empty but must be present.
type SaveNoteRequest struct {
	Content *string `json:"content"`
}

// Validate checks the request.
func (r *SaveNoteRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Content, validation.NotNil),
	)
}

// RenderRequest is the request body of the preview endpoint.
type RenderRequest struct {
	Content string `json:"content"`
}

// RenderResponse carries rendered HTML.
type RenderResponse struct {
	HTML string `json:"html"`
}

// NoteDetail is the full note response type.
type NoteDetail = noteservice.NoteDetail

// NoteListItem is one entry of a list response.
type NoteListItem = noteservice.NoteListItem

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes"`
	Total int            `json:"total"`
}

// SearchResult is a single search hit.
type SearchResult struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

func toSearchResponse(in []index.SearchResult) SearchResponse {
	out := make([]SearchResult, len(in))
	for i, r := range in {
		out[i] = SearchResult{Name: r.Name, Title: r.Title, Snippet: r.Snippet}
	}
	return SearchResponse{Results: out}
}

// HistoryResponse lists the snapshots of a note, newest first.
type HistoryResponse struct {
	Snapshots []snapshot.Info `json:"snapshots"`
	Max       int             `json:"max"`
}

// ClearHistoryResponse reports how many snapshots were deleted.
type ClearHistoryResponse struct {
	Deleted int `json:"deleted"`
}
