package merge

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"
)

// session is the connection an operation runs on.
type session struct {
	db    *gorm.DB
	owned bool
	conn  *sql.Conn
}

// acquire pins the operation to one connection.
//
// A session already bound to a transaction or a dedicated connection is
// borrowed as-is. Otherwise a connection is taken from the pool, because
// staging tables only exist on the connection that created them.
func acquire(ctx context.Context, db *gorm.DB) (*session, error) {
	switch db.Statement.ConnPool.(type) {
	case gorm.TxCommitter, *sql.Conn:
		return &session{db: db.WithContext(ctx)}, nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}

	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	pinned := db.Session(&gorm.Session{Context: ctx, NewDB: true})
	pinned.Statement.ConnPool = conn

	return &session{db: pinned, owned: true, conn: conn}, nil
}

// release returns an acquired connection to the pool. Borrowed sessions are left alone.
func (s *session) release() error {
	if !s.owned {
		return nil
	}
	return s.conn.Close()
}
