package postgres_test

import (
	"context"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakePool is a hand-rolled PgxPool that records queries and replays canned
// responses in call order.
type fakePool struct {
	execTags []pgconn.CommandTag
	execErrs []error
	execSQL  []string
	execArgs [][]any

	rows    []*fakeRows
	rowErrs []error
	qSQL    []string
	qArgs   [][]any

	singleRows []*fakeRow
}

func (p *fakePool) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	i := len(p.execSQL)
	p.execSQL = append(p.execSQL, sql)
	p.execArgs = append(p.execArgs, args)
	var tag pgconn.CommandTag
	if i < len(p.execTags) {
		tag = p.execTags[i]
	}
	var err error
	if i < len(p.execErrs) {
		err = p.execErrs[i]
	}
	return tag, err
}

func (p *fakePool) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	i := len(p.qSQL)
	p.qSQL = append(p.qSQL, sql)
	p.qArgs = append(p.qArgs, args)
	if i < len(p.singleRows) {
		return p.singleRows[i]
	}
	return &fakeRow{err: pgx.ErrNoRows}
}

func (p *fakePool) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	i := len(p.qSQL)
	p.qSQL = append(p.qSQL, sql)
	p.qArgs = append(p.qArgs, args)
	var err error
	if i < len(p.rowErrs) {
		err = p.rowErrs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(p.rows) {
		return p.rows[i], nil
	}
	return &fakeRows{}, nil
}

func (p *fakePool) BeginTx(_ context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	return nil, nil
}

type fakeRow struct {
	vals []any
	err  error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.vals)
}

// fakeRows replays a fixed set of value rows through the pgx.Rows interface.
type fakeRows struct {
	data    [][]any
	idx     int
	scanErr error
	rowsErr error
	closed  bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.rowsErr }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	return assign(dest, r.data[r.idx-1])
}

func (r *fakeRows) Values() ([]any, error) { return nil, nil }
func (r *fakeRows) RawValues() [][]byte    { return nil }
func (r *fakeRows) Conn() *pgx.Conn        { return nil }

// assign copies canned values into scan destinations; nil clears the target.
func assign(dest []any, vals []any) error {
	for i := range dest {
		dv := reflect.ValueOf(dest[i]).Elem()
		if i >= len(vals) || vals[i] == nil {
			dv.Set(reflect.Zero(dv.Type()))
			continue
		}
		dv.Set(reflect.ValueOf(vals[i]))
	}
	return nil
}

func updateTag(n string) pgconn.CommandTag { return pgconn.NewCommandTag("UPDATE " + n) }
