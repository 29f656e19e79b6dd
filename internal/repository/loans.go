package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/association-finance/internal/finance"
	"github.com/mmeshcher/association-finance/internal/model"
)

const loanColumns = `id, member_id, amount, interest_rate::text, penalty_rate::text, loan_date, due_date,
	return_date, amount_repaid, repayment_date, status, deposit_amount, deposit_refunded, notes`

func scanLoan(row scanner) (model.Loan, error) {
	var (
		l             model.Loan
		amount        int64
		interestRate  string
		penaltyRate   string
		amountRepaid  *int64
		depositAmount *int64
		status        string
	)

	err := row.Scan(&l.ID, &l.MemberID, &amount, &interestRate, &penaltyRate, &l.LoanDate, &l.DueDate,
		&l.ReturnDate, &amountRepaid, &l.RepaymentDate, &status, &depositAmount, &l.DepositRefunded, &l.Notes)
	if err != nil {
		return l, err
	}

	if l.InterestRate, err = parseRate(interestRate); err != nil {
		return l, err
	}
	if l.PenaltyRate, err = parseRate(penaltyRate); err != nil {
		return l, err
	}

	l.Amount = finance.FromCents(amount)
	l.AmountRepaid = decimalPtr(amountRepaid)
	l.DepositAmount = decimalPtr(depositAmount)
	l.Status = model.LoanStatus(status)

	return l, nil
}

func queryLoans(ctx context.Context, q querier, sql string, args ...any) ([]model.Loan, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select loans: %w", err)
	}
	defer rows.Close()

	var loans []model.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		loans = append(loans, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return loans, nil
}

func getLoan(ctx context.Context, q querier, id int64, lock bool) (*model.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1 AND deleted_at IS NULL`
	if lock {
		query += ` FOR UPDATE`
	}

	l, err := scanLoan(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return &l, nil
}

// CreateLoan создаёт займ для участника. Строка участника блокируется на время
// транзакции, поэтому build видит актуальные взносы и займы участника.
func (r *PostgresRepository) CreateLoan(ctx context.Context, memberID int64, build func(m *model.Member) (*model.Loan, error)) (*model.Loan, error) {
	var created *model.Loan

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		m, err := findMember(ctx, tx, memberID, true)
		if err != nil {
			return err
		}

		l, err := build(m)
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO loans (member_id, amount, interest_rate, penalty_rate, loan_date, due_date,
				return_date, status, deposit_amount, deposit_refunded, notes)
			 VALUES ($1, $2, $3::text::numeric, $4::text::numeric, $5, $6, $7, $8, $9, $10, $11)
			 RETURNING id`,
			memberID, finance.ToCents(l.Amount), l.InterestRate.String(), l.PenaltyRate.String(),
			l.LoanDate, l.DueDate, l.ReturnDate, string(l.Status), centsPtr(l.DepositAmount), l.DepositRefunded, l.Notes,
		).Scan(&l.ID)
		if err != nil {
			return fmt.Errorf("insert loan: %w", err)
		}

		l.MemberID = memberID
		created = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// GetLoan возвращает неудалённый займ по идентификатору.
func (r *PostgresRepository) GetLoan(ctx context.Context, id int64) (*model.Loan, error) {
	return getLoan(ctx, r.pool, id, false)
}

// ModifyLoan блокирует займ, применяет к нему fn и сохраняет изменяемые поля.
func (r *PostgresRepository) ModifyLoan(ctx context.Context, id int64, fn func(l *model.Loan) error) (*model.Loan, error) {
	var updated *model.Loan

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		l, err := getLoan(ctx, tx, id, true)
		if err != nil {
			return err
		}

		if err := fn(l); err != nil {
			return err
		}

		if err := saveLoan(ctx, tx, l); err != nil {
			return err
		}

		updated = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// RepayLoan блокирует займ, применяет к нему fn и добавляет запись в историю погашений.
// fn обязан заполнить AmountRepaid и RepaymentDate.
func (r *PostgresRepository) RepayLoan(ctx context.Context, id int64, fn func(l *model.Loan) error) (*model.Loan, error) {
	var updated *model.Loan

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		l, err := getLoan(ctx, tx, id, true)
		if err != nil {
			return err
		}

		if err := fn(l); err != nil {
			return err
		}

		if l.AmountRepaid == nil || l.RepaymentDate == nil {
			return fmt.Errorf("repay loan %d: repayment amount and date must be set", id)
		}

		if err := saveLoan(ctx, tx, l); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO loan_repayments (loan_id, amount, paid_at) VALUES ($1, $2, $3)`,
			id, finance.ToCents(*l.AmountRepaid), *l.RepaymentDate,
		)
		if err != nil {
			return fmt.Errorf("insert repayment: %w", err)
		}

		updated = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func saveLoan(ctx context.Context, q querier, l *model.Loan) error {
	_, err := q.Exec(ctx,
		`UPDATE loans SET
			amount = $2, interest_rate = $3::text::numeric, penalty_rate = $4::text::numeric,
			due_date = $5, return_date = $6, amount_repaid = $7, repayment_date = $8,
			status = $9, deposit_amount = $10, deposit_refunded = $11, notes = $12
		 WHERE id = $1`,
		l.ID, finance.ToCents(l.Amount), l.InterestRate.String(), l.PenaltyRate.String(),
		l.DueDate, l.ReturnDate, centsPtr(l.AmountRepaid), l.RepaymentDate,
		string(l.Status), centsPtr(l.DepositAmount), l.DepositRefunded, l.Notes,
	)
	if err != nil {
		return fmt.Errorf("update loan: %w", err)
	}
	return nil
}

// SoftDeleteLoan помечает займ удалённым.
func (r *PostgresRepository) SoftDeleteLoan(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE loans SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("delete loan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLoanNotFound
	}
	return nil
}

// ListLoans возвращает займы, удовлетворяющие фильтру. Фильтр по статусу
// сравнивает статус, вычисленный на момент now, а не сохранённый.
func (r *PostgresRepository) ListLoans(ctx context.Context, f model.LoanFilter, now time.Time) ([]model.Loan, error) {
	var (
		conds = []string{"deleted_at IS NULL"}
		args  []any
	)

	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.MemberID != nil {
		conds = append(conds, "member_id = "+arg(*f.MemberID))
	}
	if f.MinAmount != nil {
		conds = append(conds, "amount >= "+arg(finance.ToCents(*f.MinAmount)))
	}
	if f.MaxAmount != nil {
		conds = append(conds, "amount <= "+arg(finance.ToCents(*f.MaxAmount)))
	}
	if f.DueFrom != nil {
		conds = append(conds, "due_date >= "+arg(*f.DueFrom))
	}
	if f.DueTo != nil {
		conds = append(conds, "due_date <= "+arg(*f.DueTo))
	}
	if f.Status != nil {
		repaid := arg(string(model.LoanStatusRepaid))
		switch *f.Status {
		case model.LoanStatusRepaid:
			conds = append(conds, "status = "+repaid)
		case model.LoanStatusOverdue:
			conds = append(conds, "status <> "+repaid+" AND due_date < "+arg(now))
		default:
			conds = append(conds, "status <> "+repaid+" AND due_date >= "+arg(now))
		}
	}

	query := `SELECT ` + loanColumns + ` FROM loans WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY due_date, id`

	return queryLoans(ctx, r.pool, query, args...)
}

// ListUnsettledLoans возвращает все непогашенные займы.
func (r *PostgresRepository) ListUnsettledLoans(ctx context.Context) ([]model.Loan, error) {
	return queryLoans(ctx, r.pool,
		`SELECT `+loanColumns+` FROM loans WHERE deleted_at IS NULL AND status <> $1 ORDER BY due_date, id`,
		string(model.LoanStatusRepaid),
	)
}

// ListOverdueLoans возвращает займы, просроченные на момент now.
func (r *PostgresRepository) ListOverdueLoans(ctx context.Context, now time.Time) ([]model.Loan, error) {
	return queryLoans(ctx, r.pool,
		`SELECT `+loanColumns+` FROM loans
		 WHERE deleted_at IS NULL AND (status = $1 OR (status = $2 AND due_date < $3))
		 ORDER BY due_date, id`,
		string(model.LoanStatusOverdue), string(model.LoanStatusActive), now,
	)
}

// ListRepayments возвращает историю погашений займа.
func (r *PostgresRepository) ListRepayments(ctx context.Context, loanID int64) ([]model.Repayment, error) {
	if _, err := getLoan(ctx, r.pool, loanID, false); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, loan_id, amount, paid_at FROM loan_repayments WHERE loan_id = $1 ORDER BY paid_at, id`,
		loanID,
	)
	if err != nil {
		return nil, fmt.Errorf("select repayments: %w", err)
	}
	defer rows.Close()

	var res []model.Repayment
	for rows.Next() {
		var (
			rp    model.Repayment
			cents int64
		)
		if err := rows.Scan(&rp.ID, &rp.LoanID, &cents, &rp.PaidAt); err != nil {
			return nil, fmt.Errorf("scan repayment: %w", err)
		}
		rp.Amount = finance.FromCents(cents)
		res = append(res, rp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// SumLoansByMember возвращает сумму основного долга по всем займам участника.
func (r *PostgresRepository) SumLoansByMember(ctx context.Context, memberID int64) (decimal.Decimal, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::bigint FROM loans WHERE member_id = $1 AND deleted_at IS NULL`,
		memberID,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum loans: %w", err)
	}
	return finance.FromCents(total), nil
}
