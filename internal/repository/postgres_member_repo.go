package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/NodirbekRare/famestate/internal/model"
)

// PostgresMemberRepo はPostgreSQLを使用した家族構成員リポジトリ。
type PostgresMemberRepo struct {
	db *sql.DB
}

// NewPostgresMemberRepo はPostgresMemberRepoを生成する。
func NewPostgresMemberRepo(db *sql.DB) *PostgresMemberRepo {
	return &PostgresMemberRepo{db: db}
}

// FindByID は指定IDの構成員を取得する。見つからない場合はnilを返す。
func (r *PostgresMemberRepo) FindByID(ctx context.Context, id int64) (*model.Member, error) {
	member := &model.Member{}
	var middleName sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, task_id, last_name, first_name, middle_name,
		        birth_date::text, relation, is_applicant, created_at
		 FROM family_members WHERE id = $1`,
		id,
	).Scan(
		&member.ID, &member.TaskID, &member.LastName, &member.FirstName,
		&middleName, &member.BirthDate, &member.Relation,
		&member.IsApplicant, &member.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("構成員の取得に失敗しました: %w", err)
	}

	member.MiddleName = nullStringValue(middleName)

	return member, nil
}

// ListByTaskPage は指定タスクの構成員を挿入順（ID昇順）でoffsetからlimit件取得する。
func (r *PostgresMemberRepo) ListByTaskPage(ctx context.Context, taskID string, offset, limit int) ([]*model.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, task_id, last_name, first_name, middle_name,
		        birth_date::text, relation, is_applicant, created_at
		 FROM family_members
		 WHERE task_id = $1
		 ORDER BY id
		 OFFSET $2 LIMIT $3`,
		taskID, offset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("構成員一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var members []*model.Member
	for rows.Next() {
		member := &model.Member{}
		var middleName sql.NullString
		if err := rows.Scan(
			&member.ID, &member.TaskID, &member.LastName, &member.FirstName,
			&middleName, &member.BirthDate, &member.Relation,
			&member.IsApplicant, &member.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("構成員行の読み取りに失敗しました: %w", err)
		}
		member.MiddleName = nullStringValue(middleName)
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("構成員一覧の読み取りに失敗しました: %w", err)
	}

	return members, nil
}

var _ MemberRepository = (*PostgresMemberRepo)(nil)
