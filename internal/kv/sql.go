package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultSQLPageSize = 200

	pgSerializationFailure = "40001"
	pgUniqueViolation      = "23505"
)

// sqlEntry is the row layout of the kv_entries table.
type sqlEntry struct {
	Key          string     `gorm:"column:kv_key;primaryKey;size:512"`
	Value        []byte     `gorm:"column:value;not null"`
	Versionstamp string     `gorm:"column:versionstamp;size:64;not null"`
	ExpiresAt    *time.Time `gorm:"column:expires_at;index"`
}

func (sqlEntry) TableName() string {
	return "kv_entries"
}

// SQLStore persists entries in a single table through GORM. It runs on
// Postgres in production and on SQLite in tests and small deployments.
type SQLStore struct {
	db       *gorm.DB
	now      func() time.Time
	pageSize int
	// keyExpr is the key column as compared and ordered by scans.
	keyExpr string
}

// SQLOption configures a SQLStore.
type SQLOption func(*SQLStore)

// WithSQLClock overrides the clock used for expiration.
func WithSQLClock(now func() time.Time) SQLOption {
	return func(s *SQLStore) {
		s.now = now
	}
}

// WithSQLPageSize sets how many rows a scan fetches per query.
func WithSQLPageSize(n int) SQLOption {
	return func(s *SQLStore) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// NewSQLStore migrates the kv_entries table and returns a store over db.
func NewSQLStore(db *gorm.DB, opts ...SQLOption) (*SQLStore, error) {
	s := &SQLStore{
		db:       db,
		now:      time.Now,
		pageSize: defaultSQLPageSize,
		keyExpr:  "kv_key",
	}
	for _, opt := range opts {
		opt(s)
	}
	// Scans must follow byte order, not the database's locale collation.
	if db.Dialector.Name() == "postgres" {
		s.keyExpr = `kv_key COLLATE "C"`
	}
	if err := db.AutoMigrate(&sqlEntry{}); err != nil {
		return nil, fmt.Errorf("migrate kv_entries: %w", err)
	}
	return s, nil
}

func (s *SQLStore) live(db *gorm.DB) *gorm.DB {
	return db.Where("expires_at IS NULL OR expires_at > ?", s.now().UTC())
}

func (s *SQLStore) Get(ctx context.Context, key Key) (Entry, error) {
	var row sqlEntry
	err := s.live(s.db.WithContext(ctx)).Where("kv_key = ?", key.String()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("sql get %s: %w", key, err)
	}
	return Entry{Key: key, Value: row.Value, Versionstamp: row.Versionstamp}, nil
}

func (s *SQLStore) Set(ctx context.Context, key Key, value []byte, opts ...SetOption) error {
	return commitUnconditional(ctx, s.Atomic().Set(key, value, opts...))
}

func (s *SQLStore) Delete(ctx context.Context, key Key) error {
	return commitUnconditional(ctx, s.Atomic().Delete(key))
}

// List uses keyset pagination on the primary key; each page starts strictly
// after the last key of the previous one.
func (s *SQLStore) List(ctx context.Context, prefix Key) iter.Seq2[Entry, error] {
	p := prefix.prefixString()
	pattern := escapeLike(p) + "%"

	return func(yield func(Entry, error) bool) {
		last := ""
		for {
			var rows []sqlEntry
			q := s.live(s.db.WithContext(ctx)).
				Where("kv_key LIKE ? ESCAPE '\\'", pattern)
			if last != "" {
				q = q.Where(s.keyExpr+" > ?", last)
			}
			if err := q.Order(s.keyExpr).Limit(s.pageSize).Find(&rows).Error; err != nil {
				yield(Entry{}, fmt.Errorf("sql scan %s: %w", prefix, err))
				return
			}

			for _, row := range rows {
				// SQLite's LIKE folds ASCII case; the prefix must match exactly.
				if !strings.HasPrefix(row.Key, p) {
					continue
				}
				if !yield(Entry{Key: ParseKey(row.Key), Value: row.Value, Versionstamp: row.Versionstamp}, nil) {
					return
				}
			}
			if len(rows) < s.pageSize {
				return
			}
			last = rows[len(rows)-1].Key
		}
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (s *SQLStore) Atomic() AtomicOp {
	return newAtomicOp(s.commit)
}

// commit runs checks and mutations in one transaction. Checked commits run
// serializable on Postgres so a concurrent writer surfaces as a
// serialization failure, which is reported like a failed check.
func (s *SQLStore) commit(ctx context.Context, checks []check, mutations []mutation) (CommitResult, error) {
	var txOpts []*sql.TxOptions
	if len(checks) > 0 && s.db.Dialector.Name() == "postgres" {
		txOpts = append(txOpts, &sql.TxOptions{Isolation: sql.LevelSerializable})
	}

	vs, err := uuid.NewV7()
	if err != nil {
		return CommitResult{}, fmt.Errorf("sql commit: %w", err)
	}
	now := s.now().UTC()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range checks {
			var row sqlEntry
			current := ""
			err := s.live(tx).Where("kv_key = ?", c.key.String()).Take(&row).Error
			switch {
			case err == nil:
				current = row.Versionstamp
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}
			if current != c.versionstamp {
				return errCheckFailed
			}
		}

		for _, m := range mutations {
			k := m.key.String()
			if m.delete {
				if err := tx.Where("kv_key = ?", k).Delete(&sqlEntry{}).Error; err != nil {
					return err
				}
				continue
			}
			row := sqlEntry{Key: k, Value: m.value, Versionstamp: vs.String()}
			if m.ttl > 0 {
				expires := now.Add(m.ttl)
				row.ExpiresAt = &expires
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "kv_key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "versionstamp", "expires_at"}),
			}).Create(&row).Error
			if err != nil {
				return err
			}
		}
		return nil
	}, txOpts...)

	switch {
	case errors.Is(err, errCheckFailed), isWriteConflict(err):
		return CommitResult{}, nil
	case err != nil:
		return CommitResult{}, fmt.Errorf("sql commit: %w", err)
	}
	return CommitResult{OK: true, Versionstamp: vs.String()}, nil
}

func isWriteConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgSerializationFailure || pgErr.Code == pgUniqueViolation
}

func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ Store = (*SQLStore)(nil)
