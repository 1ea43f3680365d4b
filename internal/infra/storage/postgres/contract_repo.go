package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/vietddude/erc20-detector/internal/core/domain"
	"github.com/vietddude/erc20-detector/internal/infra/storage"
)

const uniqueViolation = "23505"

// ContractRepo implements storage.ContractStore using PostgreSQL.
type ContractRepo struct {
	db              *DB
	inFlightTimeout time.Duration
}

var _ storage.ContractStore = (*ContractRepo)(nil)

// NewContractRepo creates a new PostgreSQL contract repository. In-flight contracts
// become eligible again once they are older than inFlightTimeout.
func NewContractRepo(db *DB, inFlightTimeout time.Duration) *ContractRepo {
	return &ContractRepo{db: db, inFlightTimeout: inFlightTimeout}
}

type contractRow struct {
	ID                int64          `db:"id"`
	Address           string         `db:"contract_address"`
	SourceCode        CompressedText `db:"source_code"`
	IsCompliant       sql.NullBool   `db:"is_compliant"`
	ComplianceVersion sql.NullString `db:"compliance_version"`
	Status            string         `db:"status"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

func (row contractRow) toDomain() *domain.Contract {
	c := &domain.Contract{
		ID:         row.ID,
		Address:    row.Address,
		SourceCode: string(row.SourceCode),
		Status:     domain.ContractStatus(row.Status),
		UpdatedAt:  row.UpdatedAt,
	}
	if row.IsCompliant.Valid {
		v := row.IsCompliant.Bool
		c.IsCompliant = &v
	}
	if row.ComplianceVersion.Valid {
		v := row.ComplianceVersion.String
		c.ComplianceVersion = &v
	}
	return c
}

func statusStrings(statuses []domain.ContractStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

// FetchEligible returns pending and failed contracts plus in-flight ones that were
// published longer than the in-flight timeout ago.
func (r *ContractRepo) FetchEligible(ctx context.Context, limit int) ([]domain.ContractToAnalyze, error) {
	query, args, err := sqlx.In(`
		SELECT id, source_code
		FROM contracts
		WHERE status IN (?)
		   OR (status = ? AND updated_at <= NOW() - make_interval(secs => ?))
		ORDER BY id ASC
		LIMIT ?
	`,
		statusStrings(domain.EligibleStatuses),
		string(domain.ContractStatusInFlight),
		r.inFlightTimeout.Seconds(),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build eligibility query: %w", err)
	}

	var rows []struct {
		ID         int64          `db:"id"`
		SourceCode CompressedText `db:"source_code"`
	}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to fetch eligible contracts: %w", err)
	}

	contracts := make([]domain.ContractToAnalyze, 0, len(rows))
	for _, row := range rows {
		contracts = append(contracts, domain.ContractToAnalyze{
			ID:         row.ID,
			SourceCode: string(row.SourceCode),
		})
	}
	return contracts, nil
}

// BulkUpdate sets status (and the verdict, when given) on all ids in one transaction.
// Rows outside update.From are left alone.
func (r *ContractRepo) BulkUpdate(ctx context.Context, ids []int64, update domain.ContractUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE contracts
		SET status = ?, is_compliant = COALESCE(?, is_compliant), updated_at = NOW()
		WHERE id IN (?)
	`
	args := []any{string(update.Status), update.IsCompliant, ids}
	if len(update.From) > 0 {
		query += ` AND status IN (?)`
		args = append(args, statusStrings(update.From))
	}

	err := r.db.WithUnitOfWork(ctx, func(uow *UnitOfWork) error {
		_, err := uow.Exec(ctx, query, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update %d contracts to %s: %w", len(ids), update.Status, err)
	}
	return nil
}

// Create inserts a contract and sets its ID and UpdatedAt.
func (r *ContractRepo) Create(ctx context.Context, c *domain.Contract) error {
	if c.Status == "" {
		c.Status = domain.ContractStatusPendingAnalysis
	}

	query := `
		INSERT INTO contracts (contract_address, source_code, is_compliant, compliance_version, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, updated_at
	`
	row := r.db.QueryRowxContext(ctx, query,
		c.Address,
		CompressedText(c.SourceCode),
		c.IsCompliant,
		c.ComplianceVersion,
		string(c.Status),
	)
	if err := row.Scan(&c.ID, &c.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateAddress
		}
		return fmt.Errorf("failed to create contract: %w", err)
	}
	return nil
}

// Get retrieves a contract by ID.
func (r *ContractRepo) Get(ctx context.Context, id int64) (*domain.Contract, error) {
	query := `
		SELECT id, contract_address, source_code, is_compliant, compliance_version, status, updated_at
		FROM contracts
		WHERE id = $1
	`

	var row contractRow
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrContractNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	return row.toDomain(), nil
}

// CountByStatus returns the number of contracts per status.
func (r *ContractRepo) CountByStatus(ctx context.Context) (map[domain.ContractStatus]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM contracts GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count contracts: %w", err)
	}

	counts := make(map[domain.ContractStatus]int, len(rows))
	for _, row := range rows {
		counts[domain.ContractStatus(row.Status)] = row.Count
	}
	return counts, nil
}

// Requeue moves the given contracts, or every failed contract when ids is empty,
// back to pending analysis.
func (r *ContractRepo) Requeue(ctx context.Context, ids []int64) (int, error) {
	var changed int64
	err := r.db.WithUnitOfWork(ctx, func(uow *UnitOfWork) error {
		var err error
		if len(ids) == 0 {
			changed, err = uow.Exec(ctx,
				`UPDATE contracts SET status = ?, updated_at = NOW() WHERE status = ?`,
				string(domain.ContractStatusPendingAnalysis), string(domain.ContractStatusFailed),
			)
		} else {
			changed, err = uow.Exec(ctx,
				`UPDATE contracts SET status = ?, updated_at = NOW() WHERE id IN (?)`,
				string(domain.ContractStatusPendingAnalysis), ids,
			)
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to requeue contracts: %w", err)
	}
	return int(changed), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}
