package index

// NoteIndex is the search and metadata index over the vault. Consumers
// depend on it rather than on *DB.
type NoteIndex interface {
	UpsertNote(n NoteRow, body string, links []string) error
	DeleteNote(name string) error
	GetChecksum(name string) (string, error)
	GetNote(name string) (*NoteRow, error)
	ListNotes(limit, offset int, sort string) ([]NoteRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Backlinks(target string) ([]string, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

var _ NoteIndex = (*DB)(nil)
