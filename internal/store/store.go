package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339Nano

// Extension lifecycle statuses.
const (
	StatusInstalled = "installed"
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusError     = "error"
)

// ErrNotFound is returned when a slug has no persisted extension row.
var ErrNotFound = errors.New("extension not found")

// ExtensionRecord is the persisted shape of a discovered extension.
type ExtensionRecord struct {
	ID                  int64
	Slug                string
	Name                string
	DisplayName         string
	Version             string
	InstalledVersion    string
	EntryPoint          string
	ManifestPath        string
	ManifestChecksum    string
	SignatureStatus     string
	SignatureVendor     string
	Status              string
	AllowOrgToggle      bool
	RequiresCoreVersion string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS extensions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	display_name TEXT NOT NULL,
	version TEXT NOT NULL,
	installed_version TEXT NOT NULL,
	entry_point TEXT NOT NULL,
	manifest_path TEXT NOT NULL,
	manifest_checksum TEXT NOT NULL,
	signature_status TEXT NOT NULL DEFAULT 'unknown',
	signature_vendor TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'installed',
	allow_org_toggle INTEGER NOT NULL DEFAULT 0,
	requires_core_version TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS extension_settings (
	extension TEXT NOT NULL,
	tenant TEXT NOT NULL,
	key TEXT NOT NULL,
	payload TEXT NOT NULL,
	PRIMARY KEY (extension, tenant, key)
);
`

// Store is the SQLite-backed persistence layer for extension rows and
// per-tenant settings. It is the single source of truth in multi-process
// deployments; everything in memory is a per-process cache.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) a SQLite store at the provided path. The path
// ":memory:" opens an in-memory database, used by tests.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertExtension inserts a new extension row keyed by slug, or updates the
// mutable descriptive fields of an existing one. Status and allow_org_toggle
// are operator-owned and never touched by a re-sync.
func (s *Store) UpsertExtension(ctx context.Context, rec ExtensionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now().UTC().Format(timeFormat)

	_, err := s.db.ExecContext(ctx, `
INSERT INTO extensions (
	slug, name, display_name, version, installed_version, entry_point,
	manifest_path, manifest_checksum, signature_status, signature_vendor,
	status, allow_org_toggle, requires_core_version, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(slug) DO UPDATE SET
	name = excluded.name,
	display_name = excluded.display_name,
	version = excluded.version,
	installed_version = excluded.installed_version,
	entry_point = excluded.entry_point,
	manifest_path = excluded.manifest_path,
	manifest_checksum = excluded.manifest_checksum,
	signature_status = excluded.signature_status,
	signature_vendor = excluded.signature_vendor,
	requires_core_version = excluded.requires_core_version,
	updated_at = excluded.updated_at`,
		rec.Slug, rec.Name, rec.DisplayName, rec.Version, rec.Version,
		rec.EntryPoint, rec.ManifestPath, rec.ManifestChecksum,
		rec.SignatureStatus, rec.SignatureVendor,
		StatusInstalled, boolToInt(rec.AllowOrgToggle), rec.RequiresCoreVersion,
		now, now)
	if err != nil {
		return fmt.Errorf("upsert extension %s: %w", rec.Slug, err)
	}
	return nil
}

// GetExtension loads one extension row by slug.
func (s *Store) GetExtension(ctx context.Context, slug string) (ExtensionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, slug, name, display_name, version, installed_version, entry_point,
	manifest_path, manifest_checksum, signature_status, signature_vendor,
	status, allow_org_toggle, requires_core_version, created_at, updated_at
FROM extensions WHERE slug = ?`, slug)

	rec, err := scanExtension(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ExtensionRecord{}, fmt.Errorf("extension %s: %w", slug, ErrNotFound)
	}
	return rec, err
}

// ListExtensions returns every persisted extension ordered by slug.
func (s *Store) ListExtensions(ctx context.Context) ([]ExtensionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, slug, name, display_name, version, installed_version, entry_point,
	manifest_path, manifest_checksum, signature_status, signature_vendor,
	status, allow_org_toggle, requires_core_version, created_at, updated_at
FROM extensions ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("list extensions: %w", err)
	}
	defer rows.Close()

	var records []ExtensionRecord
	for rows.Next() {
		rec, err := scanExtension(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SetExtensionStatus updates only the lifecycle status of an extension.
func (s *Store) SetExtensionStatus(ctx context.Context, slug, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE extensions SET status = ?, updated_at = ? WHERE slug = ?`,
		status, time.Now().UTC().Format(timeFormat), slug)
	if err != nil {
		return fmt.Errorf("set status for %s: %w", slug, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("extension %s: %w", slug, ErrNotFound)
	}
	return nil
}

// PutSetting writes one settings payload with an atomic upsert keyed by
// (extension, tenant, key). Last writer wins.
func (s *Store) PutSetting(ctx context.Context, extension, tenant, key, payload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO extension_settings (extension, tenant, key, payload)
VALUES (?, ?, ?, ?)
ON CONFLICT(extension, tenant, key) DO UPDATE SET payload = excluded.payload`,
		extension, tenant, key, payload)
	if err != nil {
		return fmt.Errorf("put setting %s/%s/%s: %w", extension, tenant, key, err)
	}
	return nil
}

// GetSetting reads one settings payload. The boolean reports whether a row
// exists.
func (s *Store) GetSetting(ctx context.Context, extension, tenant, key string) (string, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM extension_settings WHERE extension = ? AND tenant = ? AND key = ?`,
		extension, tenant, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s/%s/%s: %w", extension, tenant, key, err)
	}
	return payload, true, nil
}

// ListSettings returns every settings payload for one (extension, tenant).
func (s *Store) ListSettings(ctx context.Context, extension, tenant string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, payload FROM extension_settings WHERE extension = ? AND tenant = ?`,
		extension, tenant)
	if err != nil {
		return nil, fmt.Errorf("list settings %s/%s: %w", extension, tenant, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, payload string
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, err
		}
		out[key] = payload
	}
	return out, rows.Err()
}

// DeleteSetting removes one settings row if present.
func (s *Store) DeleteSetting(ctx context.Context, extension, tenant, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM extension_settings WHERE extension = ? AND tenant = ? AND key = ?`,
		extension, tenant, key)
	if err != nil {
		return fmt.Errorf("delete setting %s/%s/%s: %w", extension, tenant, key, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExtension(row rowScanner) (ExtensionRecord, error) {
	var rec ExtensionRecord
	var allowToggle int
	var createdAt, updatedAt string

	err := row.Scan(&rec.ID, &rec.Slug, &rec.Name, &rec.DisplayName,
		&rec.Version, &rec.InstalledVersion, &rec.EntryPoint,
		&rec.ManifestPath, &rec.ManifestChecksum,
		&rec.SignatureStatus, &rec.SignatureVendor,
		&rec.Status, &allowToggle, &rec.RequiresCoreVersion,
		&createdAt, &updatedAt)
	if err != nil {
		return ExtensionRecord{}, err
	}

	rec.AllowOrgToggle = allowToggle != 0
	if t, perr := time.Parse(timeFormat, createdAt); perr == nil {
		rec.CreatedAt = t
	}
	if t, perr := time.Parse(timeFormat, updatedAt); perr == nil {
		rec.UpdatedAt = t
	}
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
