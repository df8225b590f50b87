package members

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pingcap/errors"
	plog "github.com/pingcap/log"
	"go.uber.org/zap"
)

const (
	errDupEntry = 1062

	createTableSQL = `CREATE TABLE IF NOT EXISTS members (
	id VARCHAR(50) NOT NULL PRIMARY KEY,
	name VARCHAR(100) NOT NULL,
	gender VARCHAR(10) NOT NULL
)`
)

// MySQLStore keeps members in the members table.
type MySQLStore struct {
	db *sql.DB
}

// DSN builds the driver data source name for cfg. clientFoundRows makes
// UPDATE report matched rows so an unchanged member is not "not found".
func DSN(cfg DatabaseConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=Local&clientFoundRows=true",
		cfg.Username, cfg.Password, net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)), cfg.Database)
}

// OpenMySQL connects, configures the pool and creates the table if needed.
func OpenMySQL(ctx context.Context, cfg DatabaseConfig) (*MySQLStore, error) {
	plog.Info("create db connection",
		zap.String("host", cfg.Host), zap.Int("port", cfg.Port), zap.String("dbName", cfg.Database))
	db, err := sql.Open("mysql", DSN(cfg))
	if err != nil {
		return nil, errors.Annotate(err, "create the sql client failed")
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Annotate(err, "ping mysql failed")
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		_ = db.Close()
		return nil, errors.Annotate(err, "create members table failed")
	}
	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) List(ctx context.Context) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, gender FROM members ORDER BY id")
	if err != nil {
		return nil, errors.Annotate(err, "query members failed")
	}
	defer rows.Close()

	out := []Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Gender); err != nil {
			return nil, errors.Trace(err)
		}
		out = append(out, m)
	}
	return out, errors.Trace(rows.Err())
}

func (s *MySQLStore) Get(ctx context.Context, id string) (Member, error) {
	var m Member
	err := s.db.QueryRowContext(ctx, "SELECT id, name, gender FROM members WHERE id = ?", id).
		Scan(&m.ID, &m.Name, &m.Gender)
	if err == sql.ErrNoRows {
		return Member{}, errors.Trace(ErrNotFound)
	}
	if err != nil {
		return Member{}, errors.Annotatef(err, "query member %s failed", id)
	}
	return m, nil
}

func (s *MySQLStore) Create(ctx context.Context, m Member) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO members (id, name, gender) VALUES (?, ?, ?)", m.ID, m.Name, m.Gender)
	if isDuplicateEntry(err) {
		return errors.Trace(ErrExists)
	}
	return errors.Annotatef(err, "insert member %s failed", m.ID)
}

func (s *MySQLStore) Update(ctx context.Context, m Member) error {
	res, err := s.db.ExecContext(ctx, "UPDATE members SET name = ?, gender = ? WHERE id = ?", m.Name, m.Gender, m.ID)
	if err != nil {
		return errors.Annotatef(err, "update member %s failed", m.ID)
	}
	return requireRow(res)
}

func (s *MySQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM members WHERE id = ?", id)
	if err != nil {
		return errors.Annotatef(err, "delete member %s failed", id)
	}
	return requireRow(res)
}

func (s *MySQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		plog.Error("failed to close database connection", zap.Error(err))
		return errors.Trace(err)
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Trace(err)
	}
	if n == 0 {
		return errors.Trace(ErrNotFound)
	}
	return nil
}

func isDuplicateEntry(err error) bool {
	myErr, ok := errors.Cause(err).(*mysql.MySQLError)
	return ok && myErr.Number == errDupEntry
}
