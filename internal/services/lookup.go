package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/makors/vender/internal/config"
	"github.com/makors/vender/internal/logger"
	"github.com/makors/vender/internal/metrics"
	"github.com/makors/vender/internal/models"
	"github.com/makors/vender/internal/search"
	"github.com/makors/vender/internal/storage"
)

type LookupService struct {
	store          storage.Store
	log            *logger.Logger
	candidateLimit int
	resultLimit    int
	now            func() time.Time
}

func NewLookupService(store storage.Store, cfg config.LookupConfig, log *logger.Logger) *LookupService {
	return &LookupService{
		store:          store,
		log:            log,
		candidateLimit: cfg.CandidateLimit,
		resultLimit:    cfg.ResultLimit,
		now:            time.Now,
	}
}

// Search returns the best matching tickets for a free-text query. An empty query yields an
// empty list.
func (s *LookupService) Search(ctx context.Context, query string) ([]*models.LookupCandidate, error) {
	metrics.TrackLookup()

	query = strings.TrimSpace(query)
	if query == "" {
		return []*models.LookupCandidate{}, nil
	}

	candidates, err := s.store.SearchCandidates(ctx, search.Terms(query), s.candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: search candidates: %w", ErrTransient, err)
	}

	results := search.Rank(candidates, query, s.now(), s.resultLimit)
	s.log.Debug("LOOKUP", fmt.Sprintf("Query %q: %d candidates, %d results", query, len(candidates), len(results)))
	return results, nil
}
