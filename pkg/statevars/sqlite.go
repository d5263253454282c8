package statevars

import (
	"context"
	"fmt"
	"sync"

	"github.com/thomasrohde/oscript/pkg/evaluator"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const (
	kindNumber = 0
	kindString = 1
)

const schema = "CREATE TABLE IF NOT EXISTS state_vars (" +
	"`address` TEXT NOT NULL, `key` TEXT NOT NULL, " +
	"`kind` INTEGER NOT NULL, `num` REAL, `str` TEXT, " +
	"PRIMARY KEY (`address`, `key`));"

// SQLite is a Store backed by a single SQLite connection. Each Commit runs
// inside one savepoint.
type SQLite struct {
	mu   sync.Mutex
	conn *sqlite.Conn
}

// OpenSQLite opens or creates the state database at path.
func OpenSQLite(path string) (*SQLite, error) {
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate)
	if err != nil {
		return nil, fmt.Errorf("open state db %s: %w", path, err)
	}
	if err := sqlitex.ExecuteTransient(conn, schema, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create state schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// interrupt ties the connection to ctx for the duration of one call.
func (s *SQLite) interrupt(ctx context.Context) func() {
	s.conn.SetInterrupt(ctx.Done())
	return func() { s.conn.SetInterrupt(nil) }
}

func (s *SQLite) Load(ctx context.Context, address, key string) (evaluator.Value, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.interrupt(ctx)()

	stmt, err := s.conn.Prepare("SELECT `kind`, `num`, `str` FROM state_vars WHERE `address` = $address AND `key` = $key;")
	if err != nil {
		return nil, false, err
	}
	defer stmt.Reset()
	stmt.SetText("$address", address)
	stmt.SetText("$key", key)
	hasRow, err := stmt.Step()
	if err != nil {
		return nil, false, err
	}
	if !hasRow {
		return nil, false, nil
	}
	if stmt.GetInt64("kind") == kindString {
		return evaluator.NewString(stmt.GetText("str")), true, nil
	}
	return evaluator.NewNumber(stmt.GetFloat("num")), true, nil
}

func (s *SQLite) Commit(ctx context.Context, address string, changes []Change) (err error) {
	for _, c := range changes {
		if c.Value == nil {
			continue
		}
		if err := checkStored(c.Key, c.Value); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.interrupt(ctx)()

	release := sqlitex.Save(s.conn)
	defer release(&err)

	upsert, err := s.conn.Prepare("INSERT OR REPLACE INTO state_vars (`address`, `key`, `kind`, `num`, `str`) " +
		"VALUES ($address, $key, $kind, $num, $str);")
	if err != nil {
		return err
	}
	del, err := s.conn.Prepare("DELETE FROM state_vars WHERE `address` = $address AND `key` = $key;")
	if err != nil {
		return err
	}

	for _, c := range changes {
		if c.Value == nil {
			del.SetText("$address", address)
			del.SetText("$key", c.Key)
			_, err = del.Step()
			if rerr := del.Reset(); err == nil {
				err = rerr
			}
			if err != nil {
				return fmt.Errorf("delete %s: %w", c.Key, err)
			}
			continue
		}

		upsert.SetText("$address", address)
		upsert.SetText("$key", c.Key)
		switch v := c.Value.(type) {
		case evaluator.Number:
			upsert.SetInt64("$kind", kindNumber)
			upsert.SetFloat("$num", v.Value)
			upsert.SetNull("$str")
		case evaluator.String:
			upsert.SetInt64("$kind", kindString)
			upsert.SetNull("$num")
			upsert.SetText("$str", v.Value)
		}
		_, err = upsert.Step()
		if rerr := upsert.Reset(); err == nil {
			err = rerr
		}
		if err != nil {
			return fmt.Errorf("store %s: %w", c.Key, err)
		}
	}
	return nil
}

func (s *SQLite) StorageSize(ctx context.Context, address string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.interrupt(ctx)()

	var size int64
	err := sqlitex.ExecuteTransient(s.conn,
		"SELECT `key`, `kind`, `num`, `str` FROM state_vars WHERE `address` = ?;",
		&sqlitex.ExecOptions{
			Args: []any{address},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				key := stmt.GetText("key")
				if stmt.GetInt64("kind") == kindString {
					size += entrySize(key, evaluator.NewString(stmt.GetText("str")))
				} else {
					size += entrySize(key, evaluator.NewNumber(stmt.GetFloat("num")))
				}
				return nil
			},
		})
	return size, err
}
