package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/NodirbekRare/famestate/internal/model"
)

// PostgresRealEstateRepo はPostgreSQLを使用した不動産リポジトリ。
type PostgresRealEstateRepo struct {
	db *sql.DB
}

// NewPostgresRealEstateRepo はPostgresRealEstateRepoを生成する。
func NewPostgresRealEstateRepo(db *sql.DB) *PostgresRealEstateRepo {
	return &PostgresRealEstateRepo{db: db}
}

// ListByMemberID は指定構成員の不動産オブジェクトをID昇順で取得する。
func (r *PostgresRealEstateRepo) ListByMemberID(ctx context.Context, memberID int64) ([]*model.RealEstateObject, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, member_id, type, address, ownership, created_at
		 FROM real_estate
		 WHERE member_id = $1
		 ORDER BY id`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("不動産一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanRealEstate(rows)
}

// ListByMemberIDs は複数構成員の不動産オブジェクトをまとめて取得し、
// 構成員IDをキーとしたマップで返す。
func (r *PostgresRealEstateRepo) ListByMemberIDs(ctx context.Context, memberIDs []int64) (map[int64][]*model.RealEstateObject, error) {
	result := make(map[int64][]*model.RealEstateObject)
	if len(memberIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, member_id, type, address, ownership, created_at
		 FROM real_estate
		 WHERE member_id = ANY($1)
		 ORDER BY member_id, id`,
		pq.Array(memberIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("不動産一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	objects, err := scanRealEstate(rows)
	if err != nil {
		return nil, err
	}
	for _, obj := range objects {
		result[obj.MemberID] = append(result[obj.MemberID], obj)
	}

	return result, nil
}

// scanRealEstate は複数行の結果を不動産オブジェクト一覧へ変換する。
func scanRealEstate(rows *sql.Rows) ([]*model.RealEstateObject, error) {
	var objects []*model.RealEstateObject
	for rows.Next() {
		obj := &model.RealEstateObject{}
		if err := rows.Scan(
			&obj.ID, &obj.MemberID, &obj.Type, &obj.Address,
			&obj.Ownership, &obj.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("不動産行の読み取りに失敗しました: %w", err)
		}
		objects = append(objects, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("不動産一覧の読み取りに失敗しました: %w", err)
	}
	return objects, nil
}

var _ RealEstateRepository = (*PostgresRealEstateRepo)(nil)
