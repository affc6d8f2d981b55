package service

import (
	"context"
	"time"

	"comerse-go/internal/model"
	"comerse-go/pkg/embedding"
	"comerse-go/pkg/log"
	"comerse-go/pkg/search"
)

// RetrievalService queries the tenant's knowledge namespace for passages
// relevant to the latest user utterance.
type RetrievalService interface {
	// Retrieve returns the top-k chunks in rank order. It never fails the
	// pipeline: an ungrounded answer beats no answer, so provider errors
	// and timeouts degrade to an empty result.
	Retrieve(ctx context.Context, tenant *model.Tenant, query string, k int) []model.RetrievedChunk
}

type retrievalService struct {
	embedder embedding.Client
	store    search.Store
	timeout  time.Duration
}

// NewRetrievalService creates a RetrievalService with an independent
// per-call timeout.
func NewRetrievalService(embedder embedding.Client, store search.Store, timeout time.Duration) RetrievalService {
	return &retrievalService{
		embedder: embedder,
		store:    store,
		timeout:  timeout,
	}
}

func (s *retrievalService) Retrieve(ctx context.Context, tenant *model.Tenant, query string, k int) []model.RetrievedChunk {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vector, err := s.embedder.CreateEmbedding(ctx, query)
	if err != nil {
		log.Warnf("retrieval degraded, embedding failed: tenant=%d err=%v", tenant.ID, err)
		return nil
	}

	// The query is addressed to the tenant's own namespace; other tenants'
	// chunks are unreachable by construction.
	chunks, err := s.store.Search(ctx, tenant.Namespace, vector, k)
	if err != nil {
		log.Warnf("retrieval degraded, search failed: tenant=%d err=%v", tenant.ID, err)
		return nil
	}
	return chunks
}
