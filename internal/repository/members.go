package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/association-finance/internal/finance"
	"github.com/mmeshcher/association-finance/internal/model"
)

// FindMember возвращает участника вместе с историей взносов и займами.
func (r *PostgresRepository) FindMember(ctx context.Context, id int64) (*model.Member, error) {
	return findMember(ctx, r.pool, id, false)
}

func findMember(ctx context.Context, q querier, id int64, lock bool) (*model.Member, error) {
	query := `SELECT id, name, active FROM members WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var m model.Member
	err := q.QueryRow(ctx, query, id).Scan(&m.ID, &m.Name, &m.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("get member: %w", err)
	}

	fees, err := memberFees(ctx, q, id)
	if err != nil {
		return nil, err
	}
	m.Fees = fees

	loans, err := queryLoans(ctx, q,
		`SELECT `+loanColumns+` FROM loans WHERE member_id = $1 AND deleted_at IS NULL ORDER BY loan_date, id`,
		id,
	)
	if err != nil {
		return nil, err
	}
	m.Loans = loans

	return &m, nil
}

func memberFees(ctx context.Context, q querier, memberID int64) ([]model.Fee, error) {
	rows, err := q.Query(ctx,
		`SELECT amount, paid_at FROM member_fees WHERE member_id = $1 ORDER BY paid_at, id`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("select fees: %w", err)
	}
	defer rows.Close()

	var fees []model.Fee
	for rows.Next() {
		var (
			cents  int64
			paidAt time.Time
		)
		if err := rows.Scan(&cents, &paidAt); err != nil {
			return nil, fmt.Errorf("scan fee: %w", err)
		}
		fees = append(fees, model.Fee{Amount: finance.FromCents(cents), PaidAt: paidAt})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return fees, nil
}
