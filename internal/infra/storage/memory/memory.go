package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/erc20-detector/internal/core/domain"
	"github.com/vietddude/erc20-detector/internal/infra/storage"
)

// MemoryStorage keeps contracts in a map. It is used when no database is configured
// and by tests.
type MemoryStorage struct {
	contracts       map[int64]*domain.Contract
	nextID          int64
	inFlightTimeout time.Duration
	now             func() time.Time
	mu              sync.RWMutex
}

func NewMemoryStorage(inFlightTimeout time.Duration) *MemoryStorage {
	return &MemoryStorage{
		contracts:       make(map[int64]*domain.Contract),
		nextID:          1,
		inFlightTimeout: inFlightTimeout,
		now:             time.Now,
	}
}

// SetClock overrides the time source.
func (s *MemoryStorage) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// -----------------------------------------------------------------------------
// Contract Repository
// -----------------------------------------------------------------------------

type ContractRepo struct {
	store *MemoryStorage
}

var _ storage.ContractStore = (*ContractRepo)(nil)

func NewContractRepo(store *MemoryStorage) *ContractRepo {
	return &ContractRepo{store: store}
}

func (r *ContractRepo) Create(ctx context.Context, c *domain.Contract) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, existing := range r.store.contracts {
		if existing.Address == c.Address {
			return storage.ErrDuplicateAddress
		}
	}

	if c.Status == "" {
		c.Status = domain.ContractStatusPendingAnalysis
	}
	c.ID = r.store.nextID
	c.UpdatedAt = r.store.now()
	r.store.nextID++

	cp := *c
	r.store.contracts[c.ID] = &cp
	return nil
}

func (r *ContractRepo) Get(ctx context.Context, id int64) (*domain.Contract, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	c, ok := r.store.contracts[id]
	if !ok {
		return nil, storage.ErrContractNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *ContractRepo) FetchEligible(ctx context.Context, limit int) ([]domain.ContractToAnalyze, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	now := r.store.now()
	ids := make([]int64, 0, len(r.store.contracts))
	for id, c := range r.store.contracts {
		if domain.IsEligible(c.Status, c.UpdatedAt, now, r.store.inFlightTimeout) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	res := make([]domain.ContractToAnalyze, 0, len(ids))
	for _, id := range ids {
		c := r.store.contracts[id]
		res = append(res, domain.ContractToAnalyze{ID: c.ID, SourceCode: c.SourceCode})
	}
	return res, nil
}

func (r *ContractRepo) BulkUpdate(ctx context.Context, ids []int64, update domain.ContractUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := r.store.now()
	for _, id := range ids {
		c, ok := r.store.contracts[id]
		if !ok || !update.AppliesTo(c.Status) {
			continue // UPDATE ... WHERE id IN (...) ignores unknown ids
		}
		c.Status = update.Status
		if update.IsCompliant != nil {
			v := *update.IsCompliant
			c.IsCompliant = &v
		}
		c.UpdatedAt = now
	}
	return nil
}

func (r *ContractRepo) CountByStatus(ctx context.Context) (map[domain.ContractStatus]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	counts := make(map[domain.ContractStatus]int)
	for _, c := range r.store.contracts {
		counts[c.Status]++
	}
	return counts, nil
}

func (r *ContractRepo) Requeue(ctx context.Context, ids []int64) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := r.store.now()
	changed := 0
	requeue := func(c *domain.Contract) {
		c.Status = domain.ContractStatusPendingAnalysis
		c.UpdatedAt = now
		changed++
	}

	if len(ids) == 0 {
		for _, c := range r.store.contracts {
			if c.Status == domain.ContractStatusFailed {
				requeue(c)
			}
		}
		return changed, nil
	}

	for _, id := range ids {
		if c, ok := r.store.contracts[id]; ok {
			requeue(c)
		}
	}
	return changed, nil
}
