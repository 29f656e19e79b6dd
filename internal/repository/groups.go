package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/association-finance/internal/finance"
	"github.com/mmeshcher/association-finance/internal/model"
)

const groupColumns = `id, name, description, contribution_amount, max_members, rotation_frequency,
	start_date, end_date, status`

func scanGroup(row scanner) (model.RotatingGroup, error) {
	var (
		g         model.RotatingGroup
		amount    int64
		frequency string
		status    string
	)

	err := row.Scan(&g.ID, &g.Name, &g.Description, &amount, &g.MaxMembers, &frequency,
		&g.StartDate, &g.EndDate, &status)
	if err != nil {
		return g, err
	}

	g.ContributionAmount = finance.FromCents(amount)
	g.RotationFrequency = model.RotationFrequency(frequency)
	g.Status = model.GroupStatus(status)
	g.MemberIDs = []int64{}

	return g, nil
}

func getGroup(ctx context.Context, q querier, id int64, lock bool) (*model.RotatingGroup, error) {
	query := `SELECT ` + groupColumns + ` FROM rotating_groups WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	g, err := scanGroup(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("get group: %w", err)
	}

	members, err := groupMemberIDs(ctx, q, id)
	if err != nil {
		return nil, err
	}
	g.MemberIDs = members

	return &g, nil
}

func groupMemberIDs(ctx context.Context, q querier, groupID int64) ([]int64, error) {
	rows, err := q.Query(ctx,
		`SELECT member_id FROM rotating_group_members WHERE group_id = $1 ORDER BY position`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("select group members: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}

// CreateGroup сохраняет новую группу и заполняет её идентификатор.
func (r *PostgresRepository) CreateGroup(ctx context.Context, g *model.RotatingGroup) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO rotating_groups (name, description, contribution_amount, max_members,
			rotation_frequency, start_date, end_date, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		g.Name, g.Description, finance.ToCents(g.ContributionAmount), g.MaxMembers,
		string(g.RotationFrequency), g.StartDate, g.EndDate, string(g.Status),
	).Scan(&g.ID)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}

	if g.MemberIDs == nil {
		g.MemberIDs = []int64{}
	}
	return nil
}

// GetGroup возвращает группу вместе с участниками в порядке вступления.
func (r *PostgresRepository) GetGroup(ctx context.Context, id int64) (*model.RotatingGroup, error) {
	return getGroup(ctx, r.pool, id, false)
}

// ListGroups возвращает все группы.
func (r *PostgresRepository) ListGroups(ctx context.Context) ([]model.RotatingGroup, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+groupColumns+` FROM rotating_groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select groups: %w", err)
	}

	var groups []model.RotatingGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for i := range groups {
		members, err := groupMemberIDs(ctx, r.pool, groups[i].ID)
		if err != nil {
			return nil, err
		}
		groups[i].MemberIDs = members
	}

	return groups, nil
}

// UpdateGroup блокирует группу, применяет к ней fn и сохраняет результат.
func (r *PostgresRepository) UpdateGroup(ctx context.Context, id int64, fn func(g *model.RotatingGroup) error) (*model.RotatingGroup, error) {
	var updated *model.RotatingGroup

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		g, err := getGroup(ctx, tx, id, true)
		if err != nil {
			return err
		}

		if err := fn(g); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE rotating_groups SET
				name = $2, description = $3, contribution_amount = $4, max_members = $5,
				rotation_frequency = $6, start_date = $7, end_date = $8, status = $9
			 WHERE id = $1`,
			id, g.Name, g.Description, finance.ToCents(g.ContributionAmount), g.MaxMembers,
			string(g.RotationFrequency), g.StartDate, g.EndDate, string(g.Status),
		)
		if err != nil {
			return fmt.Errorf("update group: %w", err)
		}

		updated = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// DeleteGroup удаляет группу вместе с раундами. Если в раундах группы есть взносы
// или штрафы, возвращается ErrLedgerNotEmpty.
func (r *PostgresRepository) DeleteGroup(ctx context.Context, id int64) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := getGroup(ctx, tx, id, true); err != nil {
			return err
		}

		var used bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM contributions c JOIN rounds rd ON rd.id = c.round_id WHERE rd.group_id = $1)
			     OR EXISTS (SELECT 1 FROM penalties p JOIN rounds rd ON rd.id = p.round_id WHERE rd.group_id = $1)`,
			id,
		).Scan(&used)
		if err != nil {
			return fmt.Errorf("check group ledger: %w", err)
		}
		if used {
			return ErrLedgerNotEmpty
		}

		if _, err := tx.Exec(ctx, `DELETE FROM rotating_groups WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete group: %w", err)
		}
		return nil
	})
}

// AddGroupMember добавляет участника в конец списка группы. check вызывается под
// блокировкой группы и решает, допустимо ли вступление.
func (r *PostgresRepository) AddGroupMember(ctx context.Context, groupID, memberID int64, check func(g *model.RotatingGroup) error) (*model.RotatingGroup, error) {
	var updated *model.RotatingGroup

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		g, err := getGroup(ctx, tx, groupID, true)
		if err != nil {
			return err
		}

		if err := check(g); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO rotating_group_members (group_id, member_id, position)
			 VALUES ($1, $2, COALESCE((SELECT MAX(position) FROM rotating_group_members WHERE group_id = $1), 0) + 1)`,
			groupID, memberID,
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return ErrMemberNotFound
			}
			return fmt.Errorf("insert group member: %w", err)
		}

		g.MemberIDs = append(g.MemberIDs, memberID)
		updated = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// RemoveGroupMember исключает участника из группы.
func (r *PostgresRepository) RemoveGroupMember(ctx context.Context, groupID, memberID int64) error {
	if _, err := getGroup(ctx, r.pool, groupID, false); err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx,
		`DELETE FROM rotating_group_members WHERE group_id = $1 AND member_id = $2`,
		groupID, memberID,
	)
	if err != nil {
		return fmt.Errorf("delete group member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGroupMemberNotFound
	}
	return nil
}
