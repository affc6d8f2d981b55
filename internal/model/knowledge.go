package model

// KnowledgeChunk is one unit of retrievable text produced by ingestion.
// Chunks are owned by exactly one tenant and are never mutated in place;
// a tenant's knowledge base is only replaced or deleted wholesale.
type KnowledgeChunk struct {
	Content  string            `json:"content"`
	DataType string            `json:"dataType"` // product, faq, policy, custom
	Metadata map[string]string `json:"metadata"`
}

// RetrievedChunk is a chunk returned by similarity search, in rank order.
type RetrievedChunk struct {
	Content  string            `json:"content"`
	Score    float64           `json:"score"`
	DataType string            `json:"dataType"`
	Metadata map[string]string `json:"metadata"`
}

// ChunkDocument is the Elasticsearch document shape for a knowledge chunk.
// The tenant never appears inside the document: isolation comes from the
// per-tenant index the document lives in.
type ChunkDocument struct {
	ChunkID  string            `json:"chunk_id"`
	Content  string            `json:"content"`
	Vector   []float32         `json:"vector"`
	DataType string            `json:"data_type"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
