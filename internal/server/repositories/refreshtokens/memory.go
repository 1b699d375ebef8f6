package refreshtokens

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/orgdesk/internal/common"
	"github.com/dmitrijs2005/orgdesk/internal/server/models"
)

// MemoryRepository keeps records in process memory. It is used by tests and
// by single-instance development setups.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]models.RefreshToken
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]models.RefreshToken), now: time.Now}
}

func (r *MemoryRepository) Create(_ context.Context, rt *models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[rt.ID]; ok {
		return common.ErrorAlreadyExists
	}
	rt.Revoked = false
	rt.CreatedAt = r.now()
	r.records[rt.ID] = *rt
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, ok := r.records[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &rt, nil
}

func (r *MemoryRepository) RevokeIfActive(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, ok := r.records[id]
	if !ok || rt.Revoked {
		return false, nil
	}
	rt.Revoked = true
	r.records[id] = rt
	return true, nil
}

func (r *MemoryRepository) RevokeFamily(_ context.Context, family string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, rt := range r.records {
		if rt.TokenFamily == family && !rt.Revoked {
			rt.Revoked = true
			r.records[id] = rt
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) CountActive(_ context.Context, family string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, rt := range r.records {
		if rt.TokenFamily == family && !rt.Revoked {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) Rotate(_ context.Context, oldID string, next *models.RefreshToken) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.records[oldID]
	if !ok || old.Revoked {
		return false, nil
	}
	if _, ok := r.records[next.ID]; ok {
		return false, common.ErrorAlreadyExists
	}

	old.Revoked = true
	r.records[oldID] = old

	next.Revoked = false
	next.CreatedAt = r.now()
	r.records[next.ID] = *next
	return true, nil
}
