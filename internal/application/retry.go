package application

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/lib/pq"
)

// 一時的なインフラ障害のリトライ上限
const maxTransientRetries = 3

// retryTransient は一時的なストレージ障害に限って fn を再実行する
// ドメイン上の結果（競合・終端状態など）はリトライ対象にしない
func retryTransient(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < maxTransientRetries; i++ {
		err = fn()
		if err == nil || !isTransientErr(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * 50 * time.Millisecond):
		}
	}
	return err
}

// isTransientErr は接続断・直列化失敗・ロック待ちタイムアウトを一時障害とみなす
func isTransientErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, io.EOF) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 08xxx: connection exception, 40001: serialization_failure, 55P03: lock_not_available
		return strings.HasPrefix(string(pqErr.Code), "08") ||
			pqErr.Code == "40001" ||
			pqErr.Code == "55P03"
	}
	return false
}
