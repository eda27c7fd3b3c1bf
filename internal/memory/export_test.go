package memory

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// FailExecMatching makes every exec whose SQL contains fragment fail.
// This file only compiles during `go test`.
func (s *Store) FailExecMatching(fragment string) {
	s.hooks.exec = func(ctx context.Context, db execer, query string, args ...any) (sql.Result, error) {
		if strings.Contains(query, fragment) {
			return nil, errors.New("injected exec failure")
		}
		return db.ExecContext(ctx, query, args...)
	}
}

// ResetHooks restores the default database hooks.
func (s *Store) ResetHooks() {
	s.hooks = defaultStoreHooks()
}
