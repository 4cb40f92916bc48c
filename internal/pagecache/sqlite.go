package pagecache

import (
	"bytes"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps pages in a single SQLite table. Content is stored gzipped.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = SQLiteStore{}

func NewSQLiteStore(path string) (SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return SQLiteStore{}, fmt.Errorf("open sqlite cache %s: %w", path, err)
	}

	statement, err := db.Prepare("CREATE TABLE IF NOT EXISTS Pages (Key TEXT PRIMARY KEY, LastWrite INTEGER, Content BLOB)")
	if err != nil {
		db.Close()
		return SQLiteStore{}, err
	}
	defer statement.Close()

	if _, err = statement.Exec(); err != nil {
		db.Close()
		return SQLiteStore{}, err
	}

	return SQLiteStore{db}, nil
}

func (store SQLiteStore) Get(key string) (Page, error) {
	statement, err := store.db.Prepare("SELECT LastWrite, Content FROM Pages WHERE Key = ?")
	if err != nil {
		return Page{}, err
	}
	defer statement.Close()

	var lastWrite int64
	var blob []byte
	err = statement.QueryRow(key).Scan(&lastWrite, &blob)
	if err == sql.ErrNoRows {
		return Page{}, ErrMiss
	}
	if err != nil {
		return Page{}, err
	}

	content, err := gunzip(blob)
	if err != nil {
		return Page{}, fmt.Errorf("decompress page %s: %w", key, err)
	}
	return Page{Key: key, Content: content, LastWrite: time.Unix(0, lastWrite)}, nil
}

func (store SQLiteStore) Set(key string, page Page) error {
	blob, err := gzipString(page.Content)
	if err != nil {
		return err
	}

	statement, err := store.db.Prepare("INSERT OR REPLACE INTO Pages VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer statement.Close()

	_, err = statement.Exec(key, page.LastWrite.UnixNano(), blob)
	return err
}

func (store SQLiteStore) Erase(key string) error {
	stmt, err := store.db.Prepare("DELETE FROM Pages WHERE Key = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.Exec(key)
	return err
}

func (store SQLiteStore) Clear() error {
	_, err := store.db.Exec("DELETE FROM Pages")
	return err
}

func (store SQLiteStore) Sweep(expiredBefore time.Time) (int, error) {
	res, err := store.db.Exec("DELETE FROM Pages WHERE LastWrite < ?", expiredBefore.UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (store SQLiteStore) Close() error {
	return store.db.Close()
}

func gzipString(s string) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := io.WriteString(gz, s); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzip(blob []byte) (string, error) {
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return "", err
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
