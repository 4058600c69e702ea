package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Pablo69latrick/teda-clone-sub002/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates a new AccountStore backed by the given connection pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

const accountSelectCols = `id, available_margin, total_margin_required, net_worth,
	total_pnl, realized_pnl, starting_balance, day_start_balance,
	day_start_equity, day_start_date, status, is_active`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	var status string

	err := row.Scan(
		&a.ID, &a.AvailableMargin, &a.TotalMarginRequired, &a.NetWorth,
		&a.TotalPnL, &a.RealizedPnL, &a.StartingBalance, &a.DayStartBalance,
		&a.DayStartEquity, &a.DayStartDate, &status, &a.IsActive,
	)
	if err != nil {
		return domain.Account{}, err
	}
	a.Status = domain.AccountStatus(status)
	return a, nil
}

// GetByID retrieves a single account by its ID.
func (s *AccountStore) GetByID(ctx context.Context, id string) (domain.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountSelectCols+` FROM accounts WHERE id = $1`, id)

	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("postgres: get account %s: %w", id, err)
	}
	return a, nil
}

// GetByIDs retrieves the accounts for the given IDs. Missing IDs are
// silently omitted.
func (s *AccountStore) GetByIDs(ctx context.Context, ids []string) ([]domain.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+accountSelectCols+` FROM accounts WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: get accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// ApplyClose applies the balance delta of one position close in a single
// update and returns the updated account. The margin-required floor at zero
// is enforced in SQL.
func (s *AccountStore) ApplyClose(ctx context.Context, id string, delta domain.AccountCloseDelta) (domain.Account, error) {
	const query = `
		UPDATE accounts SET
			available_margin      = available_margin + $2 + $3 - $4,
			total_margin_required = GREATEST(0, total_margin_required - $2),
			realized_pnl          = realized_pnl + $3,
			total_pnl             = total_pnl + $3,
			net_worth             = net_worth + $3 - $4,
			updated_at            = NOW()
		WHERE id = $1
		RETURNING ` + accountSelectCols

	row := s.pool.QueryRow(ctx, query, id, delta.MarginRelease, delta.RealizedPnL, delta.CloseFee)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("postgres: apply close to account %s: %w", id, err)
	}
	return a, nil
}

// MarkBreached transitions the account to its terminal breached state. Zero
// rows affected means the account was already breached or does not exist.
func (s *AccountStore) MarkBreached(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts SET status = 'breached', is_active = FALSE, updated_at = NOW()
		WHERE id = $1 AND status <> 'breached'`, id)
	if err != nil {
		return false, fmt.Errorf("postgres: mark account %s breached: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Compile-time interface check.
var _ domain.AccountStore = (*AccountStore)(nil)
