package leads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for lead storage
type Repository interface {
	Create(ctx context.Context, lead *Lead) (*Lead, error)
	GetByID(ctx context.Context, id string) (*Lead, error)
	List(ctx context.Context, filter ListFilter) ([]*Lead, error)
}

// ListFilter pages through leads, newest first.
type ListFilter struct {
	Limit  int
	Offset int
	Source string
}

func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// InMemoryRepository keeps leads in process memory. Used for local runs and tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[string]*Lead
	now   func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*Lead),
		now:   time.Now,
	}
}

func (r *InMemoryRepository) Create(ctx context.Context, lead *Lead) (*Lead, error) {
	saved := *lead
	saved.ID = uuid.New().String()
	saved.CreatedAt = r.now().UTC()

	r.mu.Lock()
	r.leads[saved.ID] = &saved
	r.mu.Unlock()

	out := saved
	return &out, nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	out := *lead
	return &out, nil
}

func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Lead, error) {
	filter = filter.normalized()

	r.mu.RLock()
	all := make([]*Lead, 0, len(r.leads))
	for _, lead := range r.leads {
		if filter.Source != "" && lead.Source != filter.Source {
			continue
		}
		out := *lead
		all = append(all, &out)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if filter.Offset >= len(all) {
		return []*Lead{}, nil
	}
	all = all[filter.Offset:]
	if len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, nil
}
