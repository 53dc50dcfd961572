package postgres

import (
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
	"sort"
	"strconv"
	"strings"
)

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

const (
	migrationsDir = "sql/migrations"
	// migrationLock сериализует миграции сервиса и cmd/migrate на одной базе.
	migrationLock = int64(0x5B0_7001)

	schemaTableDDL = `
CREATE TABLE IF NOT EXISTS shopbot_schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    checksum TEXT NOT NULL DEFAULT '',
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
ALTER TABLE shopbot_schema_migrations ADD COLUMN IF NOT EXISTS checksum TEXT NOT NULL DEFAULT ''`
)

var migrationName = regexp.MustCompile(`^(\d+)_(\w+)\.(up|down)\.sql$`)

type migrationDirection string

const (
	migrationUp   migrationDirection = "up"
	migrationDown migrationDirection = "down"
)

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

// Checksum — sha256 up-скрипта; по нему status находит изменённые после применения файлы.
func (m migration) Checksum() string {
	sum := sha256.Sum256([]byte(m.UpSQL))
	return hex.EncodeToString(sum[:])
}

// MigrationState — состояние схемы журнала.
type MigrationState struct {
	Version   int64
	Applied   int
	Available int
	// Drifted — версии, чей up-скрипт изменился после применения.
	Drifted []int64
}

func (m MigrationState) Pending() int {
	return max(m.Available-m.Applied, 0)
}

// MigrateUp применяет до steps миграций; 0 применяет все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.migrate(ctx, migrationUp, steps)
}

// MigrateDown откатывает steps последних миграций, минимум одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	return s.migrate(ctx, migrationDown, max(steps, 1))
}

// MigrationStatus сверяет применённые версии со встроенными файлами.
func (s *Store) MigrationStatus(ctx context.Context) (MigrationState, error) {
	if s == nil || s.db == nil {
		return MigrationState{}, ErrStoreNotInitialized
	}
	embedded, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		return MigrationState{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, schemaTableDDL); err != nil {
		return MigrationState{}, fmt.Errorf("ensure migration table: %w", err)
	}
	applied, err := appliedChecksums(ctx, s.db)
	if err != nil {
		return MigrationState{}, err
	}

	state := MigrationState{Available: len(embedded), Applied: len(applied)}
	for v := range applied {
		state.Version = max(state.Version, v)
	}
	for _, m := range embedded {
		if sum, ok := applied[m.Version]; ok && sum != "" && sum != m.Checksum() {
			state.Drifted = append(state.Drifted, m.Version)
		}
	}
	return state, nil
}

func (s *Store) migrate(ctx context.Context, direction migrationDirection, steps int) error {
	if s == nil || s.db == nil {
		return ErrStoreNotInitialized
	}
	if direction != migrationUp && direction != migrationDown {
		return fmt.Errorf("unsupported migration direction: %s", direction)
	}
	embedded, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, opTimeout)
	_, err = conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLock)
	cancel()
	if err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLock)
	}()

	if _, err := conn.ExecContext(ctx, schemaTableDDL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	applied, err := appliedChecksums(ctx, conn)
	if err != nil {
		return err
	}

	plan, err := planSteps(embedded, applied, direction, steps)
	if err != nil {
		return err
	}
	for _, m := range plan {
		if err := runStep(ctx, conn, m, direction); err != nil {
			return err
		}
	}
	return nil
}

// planSteps выбирает миграции: up идёт по возрастанию среди неприменённых,
// down по убыванию среди применённых.
func planSteps(embedded []migration, applied map[int64]string, direction migrationDirection, steps int) ([]migration, error) {
	var plan []migration
	if direction == migrationUp {
		for _, m := range embedded {
			if _, ok := applied[m.Version]; !ok {
				plan = append(plan, m)
			}
		}
	} else {
		byVersion := make(map[int64]migration, len(embedded))
		for _, m := range embedded {
			byVersion[m.Version] = m
		}
		versions := make([]int64, 0, len(applied))
		for v := range applied {
			versions = append(versions, v)
		}
		sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })
		for _, v := range versions {
			m, ok := byVersion[v]
			if !ok {
				return nil, fmt.Errorf("cannot rollback unknown migration version %d", v)
			}
			plan = append(plan, m)
		}
	}
	if steps > 0 && len(plan) > steps {
		plan = plan[:steps]
	}
	return plan, nil
}

// runStep выполняет один скрипт и запись в таблице версий в одной транзакции.
func runStep(ctx context.Context, conn *sql.Conn, m migration, direction migrationDirection) (err error) {
	label := fmt.Sprintf("%s migration %d_%s", direction, m.Version, m.Name)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", label, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	script, record, args := m.UpSQL,
		`INSERT INTO shopbot_schema_migrations (version, name, checksum) VALUES ($1, $2, $3)`,
		[]any{m.Version, m.Name, m.Checksum()}
	if direction == migrationDown {
		script, record, args = m.DownSQL,
			`DELETE FROM shopbot_schema_migrations WHERE version = $1`,
			[]any{m.Version}
	}

	if _, err = tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("execute %s: %w", label, err)
	}
	if _, err = tx.ExecContext(ctx, record, args...); err != nil {
		return fmt.Errorf("record %s: %w", label, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", label, err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func appliedChecksums(ctx context.Context, q queryer) (map[int64]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT version, checksum FROM shopbot_schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]string)
	for rows.Next() {
		var (
			version  int64
			checksum string
		)
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[version] = checksum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

// loadMigrationsFromFS собирает пары up/down, отсортированные по версии.
func loadMigrationsFromFS(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int64]*migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationName.FindStringSubmatch(entry.Name())
		if match == nil {
			return nil, fmt.Errorf("invalid migration file name: %s", entry.Name())
		}
		version, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version from %s: %w", entry.Name(), err)
		}

		raw, err := fs.ReadFile(fsys, path.Join(migrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", entry.Name())
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{Version: version, Name: match[2]}
			byVersion[version] = m
		}
		if m.Name != match[2] {
			return nil, fmt.Errorf("migration name mismatch for version %d: %s vs %s", version, m.Name, match[2])
		}

		slot := &m.UpSQL
		if match[3] == string(migrationDown) {
			slot = &m.DownSQL
		}
		if *slot != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", match[3], version)
		}
		*slot = body
	}
	if len(byVersion) == 0 {
		return nil, errors.New("no migration files found")
	}

	out := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" || m.DownSQL == "" {
			return nil, fmt.Errorf("migration %d_%s must have both up and down files", m.Version, m.Name)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}
