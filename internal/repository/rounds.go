package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/association-finance/internal/model"
)

const roundColumns = `id, group_id, round_number, start_date, end_date, status`

func scanRound(row scanner) (model.Round, error) {
	var (
		rd     model.Round
		status string
	)
	if err := row.Scan(&rd.ID, &rd.GroupID, &rd.RoundNumber, &rd.StartDate, &rd.EndDate, &status); err != nil {
		return rd, err
	}
	rd.Status = model.RoundStatus(status)
	return rd, nil
}

func getRound(ctx context.Context, q querier, id int64, lock bool) (*model.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	rd, err := scanRound(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoundNotFound
		}
		return nil, fmt.Errorf("get round: %w", err)
	}
	return &rd, nil
}

func listRounds(ctx context.Context, q querier, groupID int64) ([]model.Round, error) {
	rows, err := q.Query(ctx,
		`SELECT `+roundColumns+` FROM rounds WHERE group_id = $1 ORDER BY round_number, id`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("select rounds: %w", err)
	}
	defer rows.Close()

	var rounds []model.Round
	for rows.Next() {
		rd, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		rounds = append(rounds, rd)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return rounds, nil
}

// CreateRound добавляет раунд в группу. Группа блокируется, и build получает
// уже существующие раунды группы.
func (r *PostgresRepository) CreateRound(ctx context.Context, groupID int64, build func(g *model.RotatingGroup, existing []model.Round) (*model.Round, error)) (*model.Round, error) {
	var created *model.Round

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		g, err := getGroup(ctx, tx, groupID, true)
		if err != nil {
			return err
		}

		existing, err := listRounds(ctx, tx, groupID)
		if err != nil {
			return err
		}

		rd, err := build(g, existing)
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO rounds (group_id, round_number, start_date, end_date, status)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			groupID, rd.RoundNumber, rd.StartDate, rd.EndDate, string(rd.Status),
		).Scan(&rd.ID)
		if err != nil {
			return fmt.Errorf("insert round: %w", err)
		}

		rd.GroupID = groupID
		created = rd
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// GetRound возвращает раунд по идентификатору.
func (r *PostgresRepository) GetRound(ctx context.Context, id int64) (*model.Round, error) {
	return getRound(ctx, r.pool, id, false)
}

// ListRounds возвращает раунды группы по возрастанию номера.
func (r *PostgresRepository) ListRounds(ctx context.Context, groupID int64) ([]model.Round, error) {
	if _, err := getGroup(ctx, r.pool, groupID, false); err != nil {
		return nil, err
	}
	return listRounds(ctx, r.pool, groupID)
}

// UpdateRound блокирует раунд, применяет к нему fn и сохраняет результат.
func (r *PostgresRepository) UpdateRound(ctx context.Context, id int64, fn func(rd *model.Round) error) (*model.Round, error) {
	var updated *model.Round

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		rd, err := getRound(ctx, tx, id, true)
		if err != nil {
			return err
		}

		if err := fn(rd); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE rounds SET round_number = $2, start_date = $3, end_date = $4, status = $5 WHERE id = $1`,
			id, rd.RoundNumber, rd.StartDate, rd.EndDate, string(rd.Status),
		)
		if err != nil {
			return fmt.Errorf("update round: %w", err)
		}

		updated = rd
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// DeleteRound удаляет раунд. Если по раунду есть взносы или штрафы, возвращается
// ErrLedgerNotEmpty.
func (r *PostgresRepository) DeleteRound(ctx context.Context, id int64) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := getRound(ctx, tx, id, true); err != nil {
			return err
		}

		var used bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM contributions WHERE round_id = $1)
			     OR EXISTS (SELECT 1 FROM penalties WHERE round_id = $1)`,
			id,
		).Scan(&used)
		if err != nil {
			return fmt.Errorf("check round ledger: %w", err)
		}
		if used {
			return ErrLedgerNotEmpty
		}

		if _, err := tx.Exec(ctx, `DELETE FROM rounds WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete round: %w", err)
		}
		return nil
	})
}
