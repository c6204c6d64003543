package storage

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeConn emulates the handful of statements the repos issue against an
// in-memory table.
type fakeConn struct {
	blobs   map[string][]byte
	order   []string
	execs   []string
	args    [][]any
	failAll error
}

func newFakeConn() *fakeConn {
	return &fakeConn{blobs: map[string][]byte{}}
}

func (f *fakeConn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if f.failAll != nil {
		return pgconn.CommandTag{}, f.failAll
	}
	f.execs = append(f.execs, sql)
	f.args = append(f.args, args)
	switch {
	case strings.Contains(sql, "INSERT INTO index_blobs"):
		id := args[0].(string)
		if _, ok := f.blobs[id]; !ok {
			f.order = append(f.order, id)
		}
		f.blobs[id] = args[1].([]byte)
	case strings.Contains(sql, "DELETE FROM index_blobs"):
		id := args[0].(string)
		delete(f.blobs, id)
		for i, x := range f.order {
			if x == id {
				f.order = append(f.order[:i], f.order[i+1:]...)
				break
			}
		}
	}
	return pgconn.NewCommandTag("OK"), nil
}

func (f *fakeConn) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	if f.failAll != nil {
		return nil, f.failAll
	}
	ids := append([]string(nil), f.order...)
	if !strings.Contains(sql, "created_at") {
		sort.Strings(ids)
	}
	return &fakeRows{ids: ids, pos: -1}, nil
}

func (f *fakeConn) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	if f.failAll != nil {
		return fakeRow{err: f.failAll}
	}
	id := args[0].(string)
	blob, ok := f.blobs[id]
	if strings.Contains(sql, "EXISTS") {
		return fakeRow{val: ok}
	}
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{val: blob}
}

type fakeRow struct {
	val any
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	switch d := dest[0].(type) {
	case *[]byte:
		*d = r.val.([]byte)
	case *bool:
		*d = r.val.(bool)
	default:
		return errors.New("unsupported scan target")
	}
	return nil
}

type fakeRows struct {
	ids []string
	pos int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return []any{r.ids[r.pos]}, nil }
func (r *fakeRows) RawValues() [][]byte                          { return [][]byte{[]byte(r.ids[r.pos])} }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.ids)
}

func (r *fakeRows) Scan(dest ...any) error {
	*(dest[0].(*string)) = r.ids[r.pos]
	return nil
}
