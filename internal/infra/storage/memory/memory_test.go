package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/erc20-detector/internal/core/domain"
	"github.com/vietddude/erc20-detector/internal/infra/storage"
)

func seed(t *testing.T, repo *ContractRepo, statuses ...domain.ContractStatus) []int64 {
	t.Helper()
	var ids []int64
	for i, st := range statuses {
		c := &domain.Contract{
			Address:    "0x" + string(rune('a'+i)),
			SourceCode: "contract C {}",
			Status:     st,
		}
		if err := repo.Create(context.Background(), c); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		ids = append(ids, c.ID)
	}
	return ids
}

func TestFetchEligible(t *testing.T) {
	store := NewMemoryStorage(0)
	repo := NewContractRepo(store)
	ids := seed(t, repo,
		domain.ContractStatusPendingAnalysis,
		domain.ContractStatusInFlight,
		domain.ContractStatusProcessed,
		domain.ContractStatusFailed,
	)

	got, err := repo.FetchEligible(context.Background(), 10)
	if err != nil {
		t.Fatalf("FetchEligible failed: %v", err)
	}

	expected := []int64{ids[0], ids[1], ids[3]}
	if len(got) != len(expected) {
		t.Fatalf("FetchEligible returned %d contracts, want %d", len(got), len(expected))
	}
	for i, id := range expected {
		if got[i].ID != id {
			t.Errorf("contract %d: id = %d, want %d", i, got[i].ID, id)
		}
	}
}

func TestFetchEligible_Limit(t *testing.T) {
	repo := NewContractRepo(NewMemoryStorage(0))
	seed(t, repo,
		domain.ContractStatusPendingAnalysis,
		domain.ContractStatusPendingAnalysis,
		domain.ContractStatusPendingAnalysis,
	)

	got, err := repo.FetchEligible(context.Background(), 2)
	if err != nil {
		t.Fatalf("FetchEligible failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 contracts, got %d", len(got))
	}
}

func TestFetchEligible_InFlightTimeout(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStorage(10 * time.Minute)
	store.SetClock(func() time.Time { return now })
	repo := NewContractRepo(store)
	seed(t, repo, domain.ContractStatusInFlight)

	got, _ := repo.FetchEligible(context.Background(), 10)
	if len(got) != 0 {
		t.Fatalf("fresh in-flight contract should not be eligible, got %d", len(got))
	}

	now = now.Add(11 * time.Minute)
	got, _ = repo.FetchEligible(context.Background(), 10)
	if len(got) != 1 {
		t.Fatalf("stale in-flight contract should be eligible, got %d", len(got))
	}
}

func TestBulkUpdate_Idempotent(t *testing.T) {
	repo := NewContractRepo(NewMemoryStorage(0))
	ids := seed(t, repo, domain.ContractStatusInFlight, domain.ContractStatusInFlight)

	update := domain.ProcessedUpdate(true)
	for i := 0; i < 2; i++ {
		if err := repo.BulkUpdate(context.Background(), ids, update); err != nil {
			t.Fatalf("BulkUpdate #%d failed: %v", i+1, err)
		}
	}

	for _, id := range ids {
		c, err := repo.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if c.Status != domain.ContractStatusProcessed {
			t.Errorf("contract %d status = %s, want PROCESSED", id, c.Status)
		}
		if c.IsCompliant == nil || !*c.IsCompliant {
			t.Errorf("contract %d should be compliant", id)
		}
	}

	counts, _ := repo.CountByStatus(context.Background())
	if counts[domain.ContractStatusProcessed] != 2 || len(counts) != 1 {
		t.Errorf("unexpected counts after repeated update: %v", counts)
	}
}

func TestBulkUpdate_InFlightKeepsVerdict(t *testing.T) {
	repo := NewContractRepo(NewMemoryStorage(0))
	ids := seed(t, repo, domain.ContractStatusPendingAnalysis, domain.ContractStatusPendingAnalysis)

	if err := repo.BulkUpdate(context.Background(), ids[:1], domain.ProcessedUpdate(false)); err != nil {
		t.Fatalf("BulkUpdate failed: %v", err)
	}
	if err := repo.BulkUpdate(context.Background(), ids, domain.InFlightUpdate()); err != nil {
		t.Fatalf("BulkUpdate failed: %v", err)
	}

	c, _ := repo.Get(context.Background(), ids[0])
	if c.Status != domain.ContractStatusProcessed {
		t.Errorf("classified contract status = %s, want PROCESSED", c.Status)
	}
	if c.IsCompliant == nil || *c.IsCompliant {
		t.Errorf("classified contract lost its verdict: %v", c.IsCompliant)
	}

	c, _ = repo.Get(context.Background(), ids[1])
	if c.Status != domain.ContractStatusInFlight {
		t.Errorf("pending contract status = %s, want IN_FLIGHT", c.Status)
	}
}

func TestBulkUpdate_RejectsProcessedWithoutVerdict(t *testing.T) {
	repo := NewContractRepo(NewMemoryStorage(0))
	ids := seed(t, repo, domain.ContractStatusInFlight)

	err := repo.BulkUpdate(context.Background(), ids, domain.ContractUpdate{Status: domain.ContractStatusProcessed})
	if !errors.Is(err, domain.ErrInvalidUpdate) {
		t.Fatalf("expected ErrInvalidUpdate, got %v", err)
	}

	c, _ := repo.Get(context.Background(), ids[0])
	if c.Status != domain.ContractStatusInFlight {
		t.Errorf("rejected update must not change status, got %s", c.Status)
	}
}

func TestCreate_DuplicateAddress(t *testing.T) {
	repo := NewContractRepo(NewMemoryStorage(0))
	c := &domain.Contract{Address: "0xabc", SourceCode: "x"}
	if err := repo.Create(context.Background(), c); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if c.Status != domain.ContractStatusPendingAnalysis {
		t.Errorf("default status = %s, want PENDING_ANALYSIS", c.Status)
	}

	err := repo.Create(context.Background(), &domain.Contract{Address: "0xabc", SourceCode: "y"})
	if !errors.Is(err, storage.ErrDuplicateAddress) {
		t.Errorf("expected ErrDuplicateAddress, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := NewContractRepo(NewMemoryStorage(0))
	if _, err := repo.Get(context.Background(), 42); !errors.Is(err, storage.ErrContractNotFound) {
		t.Errorf("expected ErrContractNotFound, got %v", err)
	}
}

func TestRequeue(t *testing.T) {
	repo := NewContractRepo(NewMemoryStorage(0))
	ids := seed(t, repo,
		domain.ContractStatusFailed,
		domain.ContractStatusFailed,
		domain.ContractStatusProcessed,
	)

	n, err := repo.Requeue(context.Background(), nil)
	if err != nil {
		t.Fatalf("Requeue failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Requeue(nil) changed %d rows, want 2", n)
	}

	n, _ = repo.Requeue(context.Background(), []int64{ids[2], 999})
	if n != 1 {
		t.Errorf("Requeue(ids) changed %d rows, want 1", n)
	}

	counts, _ := repo.CountByStatus(context.Background())
	if counts[domain.ContractStatusPendingAnalysis] != 3 {
		t.Errorf("expected 3 pending contracts, got %v", counts)
	}
}
