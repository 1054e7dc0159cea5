package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-exams/internal/db"
)

// SQLStore keeps documents as JSON bodies in the documents table of a sqlite
// or postgres database. Filters, sorting and paging run in process.
type SQLStore struct {
	conn   *sql.DB
	driver db.Driver
}

func NewSQL(conn *sql.DB, driver db.Driver) *SQLStore {
	return &SQLStore{conn: conn, driver: driver}
}

func (s *SQLStore) Insert(ctx context.Context, coll, id string, doc any, keys []UniqueKey) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrapf(err, "encode %s/%s", coll, id)
	}
	return db.WithTx(ctx, s.conn, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO documents (collection, id, body, updated_at) VALUES ($1,$2,$3,$4)`,
			coll, id, string(body), time.Now().Unix())
		if db.IsUniqueViolation(err) {
			return errors.Wrapf(ErrDuplicateKey, "%s id %s", coll, id)
		}
		if err != nil {
			return errors.Wrapf(err, "insert %s/%s", coll, id)
		}
		return insertKeys(ctx, tx, coll, id, keys)
	})
}

func (s *SQLStore) Replace(ctx context.Context, coll, id string, doc any, keys []UniqueKey, cond Filter) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrapf(err, "encode %s/%s", coll, id)
	}
	lock := ""
	if s.driver == db.DriverPostgres {
		lock = " FOR UPDATE"
	}
	return db.WithTx(ctx, s.conn, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx,
			`SELECT body FROM documents WHERE collection=$1 AND id=$2`+lock, coll, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(ErrNotFound, "%s/%s", coll, id)
		}
		if err != nil {
			return errors.Wrapf(err, "load %s/%s", coll, id)
		}
		if cond != nil {
			var fields map[string]any
			if err := json.Unmarshal([]byte(current), &fields); err != nil {
				return errors.Wrapf(err, "decode %s/%s", coll, id)
			}
			if !Match(fields, cond) {
				return errors.Wrapf(ErrConflict, "%s/%s", coll, id)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET body=$1, updated_at=$2 WHERE collection=$3 AND id=$4`,
			string(body), time.Now().Unix(), coll, id); err != nil {
			return errors.Wrapf(err, "update %s/%s", coll, id)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM unique_keys WHERE collection=$1 AND doc_id=$2`, coll, id); err != nil {
			return errors.Wrapf(err, "clear keys %s/%s", coll, id)
		}
		return insertKeys(ctx, tx, coll, id, keys)
	})
}

func insertKeys(ctx context.Context, tx *sql.Tx, coll, id string, keys []UniqueKey) error {
	for _, k := range keys {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO unique_keys (collection, ukey, doc_id) VALUES ($1,$2,$3)`,
			coll, k.String(), id)
		if db.IsUniqueViolation(err) {
			return errors.Wrapf(ErrDuplicateKey, "%s %s", coll, k.Name)
		}
		if err != nil {
			return errors.Wrapf(err, "insert key %s/%s", coll, k.Name)
		}
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, coll, id string, out any) error {
	var body string
	err := s.conn.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection=$1 AND id=$2`, coll, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(ErrNotFound, "%s/%s", coll, id)
	}
	if err != nil {
		return errors.Wrapf(err, "get %s/%s", coll, id)
	}
	return errors.Wrapf(json.Unmarshal([]byte(body), out), "decode %s/%s", coll, id)
}

func (s *SQLStore) Delete(ctx context.Context, coll, id string) error {
	return db.WithTx(ctx, s.conn, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection=$1 AND id=$2`, coll, id)
		if err != nil {
			return errors.Wrapf(err, "delete %s/%s", coll, id)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return errors.Wrapf(ErrNotFound, "%s/%s", coll, id)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM unique_keys WHERE collection=$1 AND doc_id=$2`, coll, id)
		return errors.Wrapf(err, "clear keys %s/%s", coll, id)
	})
}

func (s *SQLStore) Find(ctx context.Context, coll string, q Query, out any) error {
	docs, err := s.load(ctx, coll, q.Filter)
	if err != nil {
		return err
	}
	docs = apply(docs, q)

	buf := make([]byte, 0, 64*len(docs)+2)
	buf = append(buf, '[')
	for i, d := range docs {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, d.body...)
	}
	buf = append(buf, ']')
	return errors.Wrapf(json.Unmarshal(buf, out), "decode %s", coll)
}

func (s *SQLStore) Count(ctx context.Context, coll string, f Filter) (int64, error) {
	docs, err := s.load(ctx, coll, f)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, d := range docs {
		if Match(d.fields, f) {
			n++
		}
	}
	return n, nil
}

// load reads the candidate documents of a filter. Only an id filter narrows
// the query; every other field is matched in process over the collection.
func (s *SQLStore) load(ctx context.Context, coll string, f Filter) ([]decoded, error) {
	query := `SELECT body FROM documents WHERE collection=$1`
	args := []any{coll}
	if ids, ok := idsOf(f); ok {
		if len(ids) == 0 {
			return nil, nil
		}
		marks := make([]string, len(ids))
		for i, id := range ids {
			args = append(args, id)
			marks[i] = fmt.Sprintf("$%d", len(args))
		}
		query += ` AND id IN (` + strings.Join(marks, ",") + `)`
	}
	rows, err := s.conn.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "scan %s", coll)
	}
	defer rows.Close()

	var out []decoded
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, errors.Wrapf(err, "scan %s", coll)
		}
		d := decoded{body: []byte(body)}
		if err := json.Unmarshal(d.body, &d.fields); err != nil {
			return nil, errors.Wrapf(err, "decode %s", coll)
		}
		out = append(out, d)
	}
	return out, errors.Wrapf(rows.Err(), "scan %s", coll)
}

func (s *SQLStore) Close(context.Context) error { return s.conn.Close() }

// idsOf returns the ids an id filter admits, when every one is a string.
func idsOf(f Filter) ([]string, bool) {
	switch w := f[IDField].(type) {
	case string:
		return []string{w}, true
	case In:
		ids := make([]string, 0, len(w.Values))
		for _, v := range w.Values {
			id, ok := v.(string)
			if !ok {
				return nil, false
			}
			ids = append(ids, id)
		}
		return ids, true
	}
	return nil, false
}
