package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/5vraa/swims.cc-website-sub000/internal/models"
)

type redemptionKey struct {
	codeID      uint
	principalID string
}

// memStore is an in-memory RedeemStore with the same atomicity as the SQL
// store: each method is one critical section.
type memStore struct {
	mu          sync.Mutex
	codes       map[uint]*models.RedeemCode
	redemptions map[redemptionKey]uint
	nextID      uint
	pending     []models.PendingBenefit
	applied     []string
	benefitErr  error
	incrErr     error
	deleteErr   error
	deleted     []uint
	// beforeIncrement runs outside the lock, between insert and increment.
	beforeIncrement func()
}

func newMemStore(codes ...*models.RedeemCode) *memStore {
	s := &memStore{codes: map[uint]*models.RedeemCode{}, redemptions: map[redemptionKey]uint{}}
	for _, c := range codes {
		c.Code = models.NormalizeCode(c.Code)
		s.codes[c.ID] = c
	}
	return s
}

func (s *memStore) FindActiveByCode(_ context.Context, code string) (*models.RedeemCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.codes {
		if c.Code == code && c.IsActive {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) InsertRedemptionIfAbsent(_ context.Context, codeID uint, principalID, _ string, _ time.Time) (uint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := redemptionKey{codeID, principalID}
	if _, exists := s.redemptions[key]; exists {
		return 0, false, nil
	}
	s.nextID++
	s.redemptions[key] = s.nextID
	return s.nextID, true, nil
}

func (s *memStore) IncrementUses(_ context.Context, codeID uint) (bool, error) {
	if s.beforeIncrement != nil {
		s.beforeIncrement()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.incrErr != nil {
		return false, s.incrErr
	}
	c := s.codes[codeID]
	if c == nil || c.CurrentUses >= c.MaxUses {
		return false, nil
	}
	c.CurrentUses++
	return true, nil
}

func (s *memStore) DeleteRedemption(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	for k, v := range s.redemptions {
		if v == id {
			delete(s.redemptions, k)
			s.deleted = append(s.deleted, id)
			return nil
		}
	}
	return errors.New("redemption not found")
}

func (s *memStore) ApplyBenefit(_ context.Context, principalID string, _ uint, typ models.CodeType, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.benefitErr != nil {
		return s.benefitErr
	}
	s.applied = append(s.applied, principalID+":"+string(typ))
	return nil
}

func (s *memStore) EnqueuePending(_ context.Context, p *models.PendingBenefit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = uint(len(s.pending) + 1)
	s.pending = append(s.pending, *p)
	return nil
}

func (s *memStore) ListPending(_ context.Context, limit, maxAttempts int) ([]models.PendingBenefit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PendingBenefit
	for _, p := range s.pending {
		if len(out) == limit {
			break
		}
		if p.AbandonedAt == nil && p.Attempts < maxAttempts {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) ApplyPending(_ context.Context, item models.PendingBenefit) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.pending {
		if p.ID != item.ID || p.AbandonedAt != nil {
			continue
		}
		if s.benefitErr != nil {
			return false, s.benefitErr
		}
		s.pending = append(s.pending[:i], s.pending[i+1:]...)
		s.applied = append(s.applied, item.PrincipalID+":"+string(item.Type))
		return true, nil
	}
	return false, nil
}

func (s *memStore) MarkPendingFailed(_ context.Context, id uint, cause error, abandon bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.pending {
		if s.pending[i].ID == id {
			s.pending[i].Attempts++
			s.pending[i].LastError = cause.Error()
			if abandon {
				now := time.Now()
				s.pending[i].AbandonedAt = &now
			}
		}
	}
	return nil
}

func (s *memStore) uses(codeID uint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[codeID].CurrentUses
}

func (s *memStore) redemptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.redemptions)
}
