package repository

import (
	"errors"

	"github.com/lib/pq"

	"github.com/hitoshi/authgate/internal/model"
)

// uniqueViolationCode はPostgreSQLのunique_violationエラーコード。
const uniqueViolationCode = "23505"

// isUniqueViolation はエラーがPostgreSQLの一意性制約違反かどうかを判定する。
// 事前チェックをすり抜けた同時挿入のレースはコミット時にこのエラーとして現れる。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolationCode
	}
	return false
}

// convertUniqueViolation は一意性制約違反をドメインレベルの競合エラーに変換する。
// 制約違反以外のエラーはそのまま返し、ハンドラー側で500として扱わせる。
func convertUniqueViolation(err error) error {
	if isUniqueViolation(err) {
		return model.NewAccountConflictError()
	}
	return err
}
