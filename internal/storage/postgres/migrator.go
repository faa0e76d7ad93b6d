package postgres

import (
	"cmp"
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	migrationsDir    = "sql/migrations"
	migrationLockKey = int64(20180903)
	migrationTimeout = 5 * time.Second

	schemaMigrationsDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    checksum TEXT NOT NULL DEFAULT '',
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
ALTER TABLE schema_migrations ADD COLUMN IF NOT EXISTS checksum TEXT NOT NULL DEFAULT ''`
)

var (
	//go:embed sql/migrations/*.sql
	migrationsFS embed.FS

	migrationFileName = regexp.MustCompile(`^(\d+)_(\w+)\.(up|down)\.sql$`)

	// ErrMigrationDrift: применённая миграция отличается от встроенной.
	ErrMigrationDrift = errors.New("applied migration differs from embedded file")
)

type migration struct {
	version int64
	name    string
	up      string
	down    string
}

// checksum: sha256 текста up-миграции; по нему ловим правки уже применённых файлов.
func (m migration) checksum() string {
	sum := sha256.Sum256([]byte(m.up))
	return hex.EncodeToString(sum[:])
}

func (m migration) String() string {
	return fmt.Sprintf("%04d_%s", m.version, m.name)
}

type appliedMigration struct {
	checksum  string
	appliedAt time.Time
}

// MigrationInfo описывает встроенную миграцию и её состояние в базе.
type MigrationInfo struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt time.Time
	// Drifted: файл изменён после применения.
	Drifted bool
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// parseMigrations собирает пары up/down из dir по возрастанию версии.
func parseMigrations(fsys fs.FS, dir string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int64]*migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		parts := migrationFileName.FindStringSubmatch(entry.Name())
		if parts == nil {
			return nil, fmt.Errorf("invalid migration file name: %s", entry.Name())
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version of %s: %w", entry.Name(), err)
		}

		raw, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", entry.Name())
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{version: version, name: parts[2]}
			byVersion[version] = m
		}
		if m.name != parts[2] {
			return nil, fmt.Errorf("migration %d has two names: %s and %s", version, m.name, parts[2])
		}

		target := &m.up
		if parts[3] == "down" {
			target = &m.down
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s file for migration %d", parts[3], version)
		}
		*target = body
	}
	if len(byVersion) == 0 {
		return nil, errors.New("no migration files found")
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.up == "" || m.down == "" {
			return nil, fmt.Errorf("migration %s must have both up and down files", m)
		}
		migrations = append(migrations, *m)
	}
	slices.SortFunc(migrations, func(a, b migration) int { return cmp.Compare(a.version, b.version) })
	return migrations, nil
}

func embeddedMigrations() ([]migration, error) {
	return parseMigrations(migrationsFS, migrationsDir)
}

func readApplied(ctx context.Context, q queryer) (map[int64]appliedMigration, error) {
	rows, err := q.QueryContext(ctx, `SELECT version, checksum, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]appliedMigration)
	for rows.Next() {
		var (
			version int64
			a       appliedMigration
		)
		if err := rows.Scan(&version, &a.checksum, &a.appliedAt); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[version] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

// MigrateUp применяет ожидающие миграции; steps=0 применяет все.
// Если уже применённый файл изменён, возвращает ErrMigrationDrift и ничего не применяет.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withMigrationLock(ctx, func(conn *sql.Conn, migrations []migration) error {
		applied, err := readApplied(ctx, conn)
		if err != nil {
			return err
		}
		for _, m := range migrations {
			if a, ok := applied[m.version]; ok && a.checksum != "" && a.checksum != m.checksum() {
				return fmt.Errorf("%w: %s", ErrMigrationDrift, m)
			}
		}

		done := 0
		for _, m := range migrations {
			if _, ok := applied[m.version]; ok {
				continue
			}
			if steps > 0 && done == steps {
				break
			}
			if err := runMigration(ctx, conn, m, true); err != nil {
				return err
			}
			done++
		}
		return nil
	})
}

// MigrateDown откатывает последние steps миграций; steps<=0 означает одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.withMigrationLock(ctx, func(conn *sql.Conn, migrations []migration) error {
		applied, err := readApplied(ctx, conn)
		if err != nil {
			return err
		}

		versions := make([]int64, 0, len(applied))
		for v := range applied {
			versions = append(versions, v)
		}
		slices.Sort(versions)
		slices.Reverse(versions)

		known := make(map[int64]migration, len(migrations))
		for _, m := range migrations {
			known[m.version] = m
		}
		for _, v := range versions[:min(steps, len(versions))] {
			m, ok := known[v]
			if !ok {
				return fmt.Errorf("cannot roll back unknown migration version %d", v)
			}
			if err := runMigration(ctx, conn, m, false); err != nil {
				return err
			}
		}
		return nil
	})
}

// Migrations перечисляет встроенные миграции с отметкой о применении.
func (s *Store) Migrations(ctx context.Context) ([]MigrationInfo, error) {
	if s == nil || s.db == nil {
		return nil, errStoreNotInitialized
	}
	migrations, err := embeddedMigrations()
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, migrationTimeout)
	defer cancel()
	if _, err := s.db.ExecContext(queryCtx, schemaMigrationsDDL); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	applied, err := readApplied(queryCtx, s.db)
	if err != nil {
		return nil, err
	}

	infos := make([]MigrationInfo, 0, len(migrations))
	for _, m := range migrations {
		a, ok := applied[m.version]
		infos = append(infos, MigrationInfo{
			Version:   m.version,
			Name:      m.name,
			Applied:   ok,
			AppliedAt: a.appliedAt,
			Drifted:   ok && a.checksum != "" && a.checksum != m.checksum(),
		})
	}
	return infos, nil
}

// MigrationStatus возвращает старшую применённую версию и число применённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	infos, err := s.Migrations(ctx)
	if err != nil {
		return 0, 0, err
	}

	var (
		version int64
		count   int
	)
	for _, info := range infos {
		if info.Applied {
			count++
			version = max(version, info.Version)
		}
	}
	return version, count, nil
}

// withMigrationLock выполняет fn на выделенном соединении под pg_advisory_lock.
func (s *Store) withMigrationLock(ctx context.Context, fn func(*sql.Conn, []migration) error) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	migrations, err := embeddedMigrations()
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, migrationTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockKey)
	}()

	if _, err := conn.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return fn(conn, migrations)
}

// runMigration выполняет тело миграции и запись в schema_migrations одной транзакцией.
func runMigration(ctx context.Context, conn *sql.Conn, m migration, up bool) (err error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", m, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	direction, body := "up", m.up
	if !up {
		direction, body = "down", m.down
	}
	if _, err = tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("run %s migration %s: %w", direction, m, err)
	}

	if up {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name, checksum) VALUES ($1, $2, $3)`,
			m.version, m.name, m.checksum())
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.version)
	}
	if err != nil {
		return fmt.Errorf("record %s migration %s: %w", direction, m, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s migration %s: %w", direction, m, err)
	}
	return nil
}
