package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/association-finance/internal/finance"
	"github.com/mmeshcher/association-finance/internal/model"
)

const contributionColumns = `id, member_id, round_id, amount, contribution_date, status`

const penaltyColumns = `id, member_id, round_id, amount, reason, penalty_type, penalty_date, status`

func scanContribution(row scanner) (model.Contribution, error) {
	var (
		c     model.Contribution
		cents int64
	)
	if err := row.Scan(&c.ID, &c.MemberID, &c.RoundID, &cents, &c.ContributionDate, &c.Status); err != nil {
		return c, err
	}
	c.Amount = finance.FromCents(cents)
	return c, nil
}

func scanPenalty(row scanner) (model.Penalty, error) {
	var (
		p     model.Penalty
		cents int64
	)
	if err := row.Scan(&p.ID, &p.MemberID, &p.RoundID, &cents, &p.Reason, &p.PenaltyType, &p.PenaltyDate, &p.Status); err != nil {
		return p, err
	}
	p.Amount = finance.FromCents(cents)
	return p, nil
}

// CreateContribution сохраняет взнос. При unique повторный взнос участника
// в тот же раунд отклоняется с ErrDuplicateContribution.
func (r *PostgresRepository) CreateContribution(ctx context.Context, c *model.Contribution, unique bool) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := getRound(ctx, tx, c.RoundID, true); err != nil {
			return err
		}

		if unique {
			var exists bool
			err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM contributions WHERE round_id = $1 AND member_id = $2)`,
				c.RoundID, c.MemberID,
			).Scan(&exists)
			if err != nil {
				return fmt.Errorf("check contribution: %w", err)
			}
			if exists {
				return ErrDuplicateContribution
			}
		}

		err := tx.QueryRow(ctx,
			`INSERT INTO contributions (member_id, round_id, amount, contribution_date, status)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			c.MemberID, c.RoundID, finance.ToCents(c.Amount), c.ContributionDate, c.Status,
		).Scan(&c.ID)
		if err != nil {
			if isForeignKeyViolation(err) {
				return ErrMemberNotFound
			}
			return fmt.Errorf("insert contribution: %w", err)
		}
		return nil
	})
}

func getContribution(ctx context.Context, q querier, id int64, lock bool) (*model.Contribution, error) {
	query := `SELECT ` + contributionColumns + ` FROM contributions WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	c, err := scanContribution(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContributionNotFound
		}
		return nil, fmt.Errorf("get contribution: %w", err)
	}
	return &c, nil
}

// GetContribution возвращает взнос по идентификатору.
func (r *PostgresRepository) GetContribution(ctx context.Context, id int64) (*model.Contribution, error) {
	return getContribution(ctx, r.pool, id, false)
}

// UpdateContribution блокирует взнос, применяет к нему fn и сохраняет результат.
func (r *PostgresRepository) UpdateContribution(ctx context.Context, id int64, fn func(c *model.Contribution) error) (*model.Contribution, error) {
	var updated *model.Contribution

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		c, err := getContribution(ctx, tx, id, true)
		if err != nil {
			return err
		}

		if err := fn(c); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE contributions SET amount = $2, contribution_date = $3, status = $4 WHERE id = $1`,
			id, finance.ToCents(c.Amount), c.ContributionDate, c.Status,
		)
		if err != nil {
			return fmt.Errorf("update contribution: %w", err)
		}

		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// DeleteContribution удаляет взнос.
func (r *PostgresRepository) DeleteContribution(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM contributions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete contribution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrContributionNotFound
	}
	return nil
}

func (r *PostgresRepository) queryContributions(ctx context.Context, where string, arg int64) ([]model.Contribution, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+contributionColumns+` FROM contributions WHERE `+where+` = $1 ORDER BY contribution_date, id`,
		arg,
	)
	if err != nil {
		return nil, fmt.Errorf("select contributions: %w", err)
	}
	defer rows.Close()

	var res []model.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListContributionsByRound возвращает взносы раунда.
func (r *PostgresRepository) ListContributionsByRound(ctx context.Context, roundID int64) ([]model.Contribution, error) {
	return r.queryContributions(ctx, "round_id", roundID)
}

// ListContributionsByMember возвращает взносы участника во всех группах.
func (r *PostgresRepository) ListContributionsByMember(ctx context.Context, memberID int64) ([]model.Contribution, error) {
	return r.queryContributions(ctx, "member_id", memberID)
}

// CreatePenalty сохраняет штраф.
func (r *PostgresRepository) CreatePenalty(ctx context.Context, p *model.Penalty) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO penalties (member_id, round_id, amount, reason, penalty_type, penalty_date, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		p.MemberID, p.RoundID, finance.ToCents(p.Amount), p.Reason, p.PenaltyType, p.PenaltyDate, p.Status,
	).Scan(&p.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("insert penalty: %w", ErrNotFound)
		}
		return fmt.Errorf("insert penalty: %w", err)
	}
	return nil
}

func getPenalty(ctx context.Context, q querier, id int64, lock bool) (*model.Penalty, error) {
	query := `SELECT ` + penaltyColumns + ` FROM penalties WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	p, err := scanPenalty(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPenaltyNotFound
		}
		return nil, fmt.Errorf("get penalty: %w", err)
	}
	return &p, nil
}

// GetPenalty возвращает штраф по идентификатору.
func (r *PostgresRepository) GetPenalty(ctx context.Context, id int64) (*model.Penalty, error) {
	return getPenalty(ctx, r.pool, id, false)
}

// UpdatePenalty блокирует штраф, применяет к нему fn и сохраняет результат.
func (r *PostgresRepository) UpdatePenalty(ctx context.Context, id int64, fn func(p *model.Penalty) error) (*model.Penalty, error) {
	var updated *model.Penalty

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		p, err := getPenalty(ctx, tx, id, true)
		if err != nil {
			return err
		}

		if err := fn(p); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE penalties SET amount = $2, reason = $3, penalty_type = $4, penalty_date = $5, status = $6
			 WHERE id = $1`,
			id, finance.ToCents(p.Amount), p.Reason, p.PenaltyType, p.PenaltyDate, p.Status,
		)
		if err != nil {
			return fmt.Errorf("update penalty: %w", err)
		}

		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// DeletePenalty удаляет штраф.
func (r *PostgresRepository) DeletePenalty(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM penalties WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete penalty: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPenaltyNotFound
	}
	return nil
}

func (r *PostgresRepository) queryPenalties(ctx context.Context, where string, arg int64) ([]model.Penalty, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+penaltyColumns+` FROM penalties WHERE `+where+` = $1 ORDER BY penalty_date, id`,
		arg,
	)
	if err != nil {
		return nil, fmt.Errorf("select penalties: %w", err)
	}
	defer rows.Close()

	var res []model.Penalty
	for rows.Next() {
		p, err := scanPenalty(rows)
		if err != nil {
			return nil, fmt.Errorf("scan penalty: %w", err)
		}
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListPenaltiesByRound возвращает штрафы раунда.
func (r *PostgresRepository) ListPenaltiesByRound(ctx context.Context, roundID int64) ([]model.Penalty, error) {
	return r.queryPenalties(ctx, "round_id", roundID)
}

// ListPenaltiesByMember возвращает штрафы участника.
func (r *PostgresRepository) ListPenaltiesByMember(ctx context.Context, memberID int64) ([]model.Penalty, error) {
	return r.queryPenalties(ctx, "member_id", memberID)
}

// SumContributionsByMember возвращает сумму всех взносов участника.
func (r *PostgresRepository) SumContributionsByMember(ctx context.Context, memberID int64) (decimal.Decimal, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::bigint FROM contributions WHERE member_id = $1`,
		memberID,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum contributions: %w", err)
	}
	return finance.FromCents(total), nil
}

// SumPenaltiesByMember возвращает сумму всех штрафов участника.
func (r *PostgresRepository) SumPenaltiesByMember(ctx context.Context, memberID int64) (decimal.Decimal, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::bigint FROM penalties WHERE member_id = $1`,
		memberID,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum penalties: %w", err)
	}
	return finance.FromCents(total), nil
}
