package httpapi

import (
	"context"

	"github.com/modeldepot/depot/pkg/depot/adapter"
	"github.com/modeldepot/depot/pkg/depot/apperrors"
	"github.com/modeldepot/depot/pkg/depot/embedding"
	"github.com/modeldepot/depot/pkg/depot/generation"
	"github.com/modeldepot/depot/pkg/depot/repository"
)

// loadForGeneration resolves idOrAlias, loads its backend through the
// adapter.Loader, and returns a generation.Engine cached by canonical
// id, type-asserting the abstract adapter.Backend into the richer
// generation.Backend the concrete adapter must also satisfy.
func (s *Server) loadForGeneration(ctx context.Context, idOrAlias string) (*generation.Engine, *repository.Model, error) {
	model, backend, err := s.loadModel(ctx, idOrAlias)
	if err != nil {
		return nil, nil, err
	}
	genBackend, ok := backend.(generation.Backend)
	if !ok {
		return nil, nil, apperrors.New(apperrors.KindAdapterUnavailable,
			"loaded backend does not support generation")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	eng, ok := s.genEngine[model.ID]
	if !ok {
		eng = generation.New(genBackend, s.cfg.MaxConcurrentOperations)
		s.genEngine[model.ID] = eng
	}
	return eng, model, nil
}

// loadForEmbedding is loadForGeneration's embedding counterpart.
func (s *Server) loadForEmbedding(ctx context.Context, idOrAlias string) (*embedding.Engine, *repository.Model, error) {
	model, backend, err := s.loadModel(ctx, idOrAlias)
	if err != nil {
		return nil, nil, err
	}
	embBackend, ok := backend.(embedding.Backend)
	if !ok {
		return nil, nil, apperrors.New(apperrors.KindAdapterUnavailable,
			"loaded backend does not support embeddings")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	eng, ok := s.embEngine[model.ID]
	if !ok {
		eng = embedding.New(embBackend, s.cfg.MaxConcurrentOperations)
		s.embEngine[model.ID] = eng
	}
	return eng, model, nil
}

func (s *Server) loadModel(ctx context.Context, idOrAlias string) (*repository.Model, adapter.Backend, error) {
	model, err := s.cfg.Repo.Get(idOrAlias)
	if err != nil {
		return nil, nil, err
	}
	backend, err := s.cfg.Loader.Load(ctx, idOrAlias, nil)
	if err != nil {
		return nil, nil, err
	}
	return model, backend, nil
}
