package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/NodirbekRare/famestate/internal/model"
)

// realEstateBatchSize は不動産オブジェクトのバッチ挿入の1回あたりの行数。
const realEstateBatchSize = 100

// PostgresFamilyGraphRepo はPostgreSQLを使用した家族グラフリポジトリ。
// 構成員のUPSERTと不動産情報の置き換えをSERIALIZABLE分離レベルの
// 単一トランザクションで行う。
type PostgresFamilyGraphRepo struct {
	db *sql.DB
}

// NewPostgresFamilyGraphRepo はPostgresFamilyGraphRepoを生成する。
func NewPostgresFamilyGraphRepo(db *sql.DB) *PostgresFamilyGraphRepo {
	return &PostgresFamilyGraphRepo{db: db}
}

// SaveGraph は構成員一覧をUPSERTし、各構成員の不動産情報を照会して置き換える。
// 同一性判定は (task_id, last_name, first_name, middle_name, birth_date) の
// 自然キーで行う。既存レコードには続柄と申請者フラグを上書きし、
// 新規レコードは挿入する。不動産は対象構成員の既存行を全件削除した後、
// 照会結果をバッチ挿入する。
//
// いずれかの操作が失敗した場合はトランザクション全体をロールバックし、
// 永続化エラーを返す。照会そのものの失敗はenricher側で回復されるため、
// 本メソッドがエラーを返す原因にはならない。
func (r *PostgresFamilyGraphRepo) SaveGraph(ctx context.Context, taskID string, members []model.ParsedMember, enricher MemberEnricher) (*GraphResult, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, model.NewPersistenceError("トランザクションの開始に失敗しました", err)
	}
	defer tx.Rollback()

	result := &GraphResult{}
	memberIDs := make([]int64, 0, len(members))

	for _, m := range members {
		saved, inserted, err := upsertMember(ctx, tx, taskID, m)
		if err != nil {
			return nil, persistenceError("構成員の保存に失敗しました", err)
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
		result.Members = append(result.Members, saved)
		memberIDs = append(memberIDs, saved.ID)
	}

	// 再処理時に前回の照会結果が残らないよう、対象構成員の既存行を先に削除する。
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM real_estate WHERE member_id = ANY($1)`,
		pq.Array(memberIDs),
	); err != nil {
		return nil, persistenceError("不動産情報の削除に失敗しました", err)
	}

	rows := make([]realEstateRow, 0, len(members))
	for _, member := range result.Members {
		for _, obj := range enricher.Enrich(ctx, member) {
			rows = append(rows, realEstateRow{
				memberID:  member.ID,
				objType:   obj.Type,
				address:   obj.Address,
				ownership: obj.Ownership,
			})
		}
	}

	if err := insertRealEstateRows(ctx, tx, rows); err != nil {
		return nil, persistenceError("不動産情報の保存に失敗しました", err)
	}
	result.RealEstateRows = len(rows)

	if err := tx.Commit(); err != nil {
		return nil, persistenceError("トランザクションのコミットに失敗しました", err)
	}

	return result, nil
}

// upsertMember は自然キーで既存構成員を検索し、更新または挿入する。
// 戻り値のboolは新規挿入の場合にtrueとなる。
func upsertMember(ctx context.Context, tx *sql.Tx, taskID string, m model.ParsedMember) (*model.Member, bool, error) {
	member := &model.Member{
		TaskID:      taskID,
		LastName:    m.LastName,
		FirstName:   m.FirstName,
		MiddleName:  m.MiddleName,
		BirthDate:   m.BirthDate,
		Relation:    m.Relation,
		IsApplicant: m.IsApplicant,
	}

	var existingID int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM family_members
		 WHERE task_id = $1
		   AND last_name = $2
		   AND first_name = $3
		   AND middle_name IS NOT DISTINCT FROM $4
		   AND birth_date = $5::date`,
		taskID, m.LastName, m.FirstName, nullString(m.MiddleName), m.BirthDate,
	).Scan(&existingID)

	if err == nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE family_members SET relation = $2, is_applicant = $3 WHERE id = $1`,
			existingID, m.Relation, m.IsApplicant,
		); err != nil {
			return nil, false, err
		}
		member.ID = existingID
		return member, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, err
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO family_members
		     (task_id, last_name, first_name, middle_name, birth_date, relation, is_applicant)
		 VALUES ($1, $2, $3, $4, $5::date, $6, $7)
		 RETURNING id, created_at`,
		taskID, m.LastName, m.FirstName, nullString(m.MiddleName),
		m.BirthDate, m.Relation, m.IsApplicant,
	).Scan(&member.ID, &member.CreatedAt)
	if err != nil {
		return nil, false, err
	}

	return member, true, nil
}

// realEstateRow はバッチ挿入する1行分の不動産情報。
type realEstateRow struct {
	memberID  int64
	objType   string
	address   string
	ownership string
}

// insertRealEstateRows は不動産情報を100行単位の複数VALUES文でバッチ挿入する。
func insertRealEstateRows(ctx context.Context, tx *sql.Tx, rows []realEstateRow) error {
	for start := 0; start < len(rows); start += realEstateBatchSize {
		end := start + realEstateBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		placeholders := make([]string, 0, len(chunk))
		args := make([]interface{}, 0, len(chunk)*4)
		for i, row := range chunk {
			base := i * 4
			placeholders = append(placeholders,
				fmt.Sprintf("($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4))
			args = append(args, row.memberID, row.objType, row.address, row.ownership)
		}

		query := fmt.Sprintf(
			`INSERT INTO real_estate (member_id, type, address, ownership) VALUES %s`,
			strings.Join(placeholders, ", "))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

// persistenceError はDBエラーを永続化エラーへ変換する。
// 直列化競合と一意制約違反は識別可能なメッセージを付与する。
func persistenceError(message string, err error) *model.ProcessingError {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return model.NewPersistenceError(
				fmt.Sprintf("%s: 直列化競合が発生しました", message), err)
		case "23505":
			return model.NewPersistenceError(
				fmt.Sprintf("%s: 一意制約違反が発生しました", message), err)
		}
	}
	return model.NewPersistenceError(message, err)
}

var _ FamilyGraphRepository = (*PostgresFamilyGraphRepo)(nil)
