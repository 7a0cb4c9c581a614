package service

import (
	"context"
	"sync"
	"time"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
)

const proposalCachePrefix = "timetable:proposal:"

// timetableProposal is a previewed engine result waiting to be committed.
type timetableProposal struct {
	ID           string                 `json:"id"`
	Dataset      dto.Dataset            `json:"dataset"`
	Schedule     []models.ScheduleSlot  `json:"schedule"`
	Seed         int64                  `json:"seed"`
	Requirements int                    `json:"requirements"`
	Placed       int                    `json:"placed"`
	Failed       int                    `json:"failed"`
	Audit        *scheduler.AuditReport `json:"audit,omitempty"`
	RequestedBy  *string                `json:"requestedBy,omitempty"`
	RequestedAt  time.Time              `json:"requestedAt"`
}

// proposalStore keeps proposals in memory and mirrors them to the shared cache when one is enabled,
// so a commit can land on another instance than the preview did.
type proposalStore struct {
	ttl   time.Duration
	cache *CacheService
	now   func() time.Time

	mu    sync.RWMutex
	items map[string]timetableProposal
}

func newProposalStore(ttl time.Duration, cache *CacheService) *proposalStore {
	return &proposalStore{
		ttl:   ttl,
		cache: cache,
		now:   time.Now,
		items: make(map[string]timetableProposal),
	}
}

func (s *proposalStore) Save(ctx context.Context, proposal timetableProposal) {
	s.mu.Lock()
	s.items[proposal.ID] = proposal
	s.mu.Unlock()
	// a failed mirror only costs cross-instance commits; the cache service logs it
	_ = s.cache.Set(ctx, proposalCachePrefix+proposal.ID, proposal, s.ttl)
}

func (s *proposalStore) Get(ctx context.Context, id string) (timetableProposal, bool) {
	s.mu.RLock()
	proposal, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		hit, err := s.cache.Get(ctx, proposalCachePrefix+id, &proposal)
		if err != nil || !hit {
			return timetableProposal{}, false
		}
	}
	if s.expired(proposal) {
		s.Delete(ctx, id)
		return timetableProposal{}, false
	}
	return proposal, true
}

func (s *proposalStore) Delete(ctx context.Context, id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
	_ = s.cache.Delete(ctx, proposalCachePrefix+id)
}

// Sweep drops expired in-memory proposals and returns how many were removed.
// Cached copies expire on their own TTL.
func (s *proposalStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, proposal := range s.items {
		if s.expired(proposal) {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}

func (s *proposalStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *proposalStore) expired(p timetableProposal) bool {
	return s.now().Sub(p.RequestedAt) > s.ttl
}
