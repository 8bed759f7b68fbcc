package vectorindex

// CollectionName is the single Qdrant collection for all rulebook chunks.
const CollectionName = "rulebook_chunks"

// Record is one chunk vector with its retrieval payload. The payload is the
// source of truth for retrieval; chunks have no separate store.
type Record struct {
	ChunkID    string // UUID
	GameID     string // Every query filters on this; cross-game leakage is a correctness bug
	DocumentID string
	ChunkIndex int    // Position in document (0, 1, 2...)
	Page       int    // 1-based page the chunk starts on
	Section    string // Heading path, e.g. "Movement > Castling"
	CharStart  int
	CharEnd    int
	Text       string
	Vector     []float32
}

// ScoredRecord is a retrieval result ordered by descending similarity.
type ScoredRecord struct {
	Record
	Score float64
}
