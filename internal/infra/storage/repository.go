package storage

import (
	"context"
	"errors"

	"github.com/vietddude/erc20-detector/internal/core/domain"
)

var (
	// ErrContractNotFound is returned when a contract doesn't exist
	ErrContractNotFound = errors.New("contract not found")

	// ErrDuplicateAddress is returned when a contract address is already stored
	ErrDuplicateAddress = errors.New("contract address already exists")
)

// ContractRepository is what the pipeline loops need from storage
type ContractRepository interface {
	// FetchEligible returns up to limit contracts that need (re)analysis
	FetchEligible(ctx context.Context, limit int) ([]domain.ContractToAnalyze, error)

	// BulkUpdate applies update to all ids atomically; committed on return
	BulkUpdate(ctx context.Context, ids []int64, update domain.ContractUpdate) error
}

// ContractStore adds the admin operations used by the CLI and health checks
type ContractStore interface {
	ContractRepository

	// Create inserts a new contract and sets its ID
	Create(ctx context.Context, contract *domain.Contract) error

	// Get retrieves a contract by ID
	Get(ctx context.Context, id int64) (*domain.Contract, error)

	// CountByStatus returns the number of contracts per status
	CountByStatus(ctx context.Context) (map[domain.ContractStatus]int, error)

	// Requeue moves contracts back to pending analysis. With no ids, all failed
	// contracts are requeued. Returns the number of rows changed.
	Requeue(ctx context.Context, ids []int64) (int, error)
}
