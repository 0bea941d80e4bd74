package memo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// sqlStore keeps one row per document: the owning collection, the key digest
// used for lookups, and the BSON body the match is confirmed against.
type sqlStore struct {
	db         *sql.DB
	table      string
	driverName string
	database   string
	findStmt   *sql.Stmt
	insertStmt *sql.Stmt
	scanStmt   *sql.Stmt
}

var sqlIdentPartRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func newSQLStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	if cfg.SQLDriverName == "" || cfg.SQLDSN == "" {
		return nil, errors.New("sql driver requires driver name and dsn")
	}
	table := cfg.SQLTable
	if table == "" {
		table = defaultSQLTable
	}
	if err := validateSQLTableName(table); err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.SQLDriverName, cfg.SQLDSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &sqlStore{
		db:         db,
		table:      table,
		driverName: cfg.SQLDriverName,
		database:   cfg.Database,
	}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.prepareStatements(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqlStore) Driver() Driver { return DriverSQL }

func (s *sqlStore) Ready(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqlStore) ensureSchema(ctx context.Context) error {
	indexName := strings.ReplaceAll(s.table, ".", "_") + "_c_kh"
	var stmts []string
	switch s.driverName {
	case "postgres", "pgx":
		stmts = []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				c TEXT NOT NULL,
				kh TEXT NOT NULL,
				doc BYTEA NOT NULL
			)`, s.table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (c, kh)`, indexName, s.table),
		}
	case "mysql":
		stmts = []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id VARCHAR(36) PRIMARY KEY,
				c VARCHAR(255) NOT NULL,
				kh VARCHAR(32) NOT NULL,
				doc LONGBLOB NOT NULL,
				INDEX %s (c, kh)
			) ENGINE=InnoDB`, s.table, indexName),
		}
	default: // sqlite
		stmts = []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				c TEXT NOT NULL,
				kh TEXT NOT NULL,
				doc BLOB NOT NULL
			)`, s.table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (c, kh)`, indexName, s.table),
		}
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// EnsureIndex is a no-op: the (c, kh) index created with the table serves every key set.
func (s *sqlStore) EnsureIndex(context.Context, string, []string) error { return nil }

func (s *sqlStore) FindOne(ctx context.Context, collection string, filter Doc) (bson.Raw, bool, error) {
	digest, err := keyDigest(filter)
	if err != nil {
		return nil, false, err
	}
	rows, err := s.findStmt.QueryContext(ctx, s.scope(collection), digest)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, false, err
		}
		ok, err := matchDoc(filter, body)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return bson.Raw(body), true, nil
		}
	}
	return nil, false, rows.Err()
}

func (s *sqlStore) Insert(ctx context.Context, collection string, doc Doc) error {
	body, err := bson.Marshal(storeDoc(doc))
	if err != nil {
		return err
	}
	digest, err := keyDigest(doc)
	if err != nil {
		return err
	}
	_, err = s.insertStmt.ExecContext(ctx, uuid.NewString(), s.scope(collection), digest, body)
	return err
}

func (s *sqlStore) Count(ctx context.Context, collection string, filter Doc) (int64, error) {
	rows, err := s.scanStmt.QueryContext(ctx, s.scope(collection))
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int64
	for rows.Next() {
		if len(filter) == 0 {
			n++
			continue
		}
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return 0, err
		}
		ok, err := matchDoc(filter, body)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, rows.Err()
}

func (s *sqlStore) Namespace(collection string) string {
	return fmt.Sprintf("%s/%s/%s", s.driverName, s.table, s.scope(collection))
}

func (s *sqlStore) Close(context.Context) error {
	for _, stmt := range []*sql.Stmt{s.findStmt, s.insertStmt, s.scanStmt} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	return s.db.Close()
}

func (s *sqlStore) scope(collection string) string {
	return s.database + "." + collection
}

func (s *sqlStore) prepareStatements(ctx context.Context) error {
	var err error
	findSQL := fmt.Sprintf("SELECT doc FROM %s WHERE c = %s AND kh = %s", s.table, s.ph(1), s.ph(2))
	if s.findStmt, err = s.db.PrepareContext(ctx, findSQL); err != nil {
		return err
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (id, c, kh, doc) VALUES (%s, %s, %s, %s)", s.table, s.ph(1), s.ph(2), s.ph(3), s.ph(4))
	if s.insertStmt, err = s.db.PrepareContext(ctx, insertSQL); err != nil {
		return err
	}
	scanSQL := fmt.Sprintf("SELECT doc FROM %s WHERE c = %s", s.table, s.ph(1))
	if s.scanStmt, err = s.db.PrepareContext(ctx, scanSQL); err != nil {
		return err
	}
	return nil
}

func (s *sqlStore) ph(i int) string {
	if s.driverName == "postgres" || s.driverName == "pgx" {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func validateSQLTableName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("sql table name is required")
	}
	for _, part := range strings.Split(name, ".") {
		if !sqlIdentPartRE.MatchString(part) {
			return fmt.Errorf("invalid sql table name %q", name)
		}
	}
	return nil
}
