package storage

import "strings"

type dialect struct {
	name   string
	driver string
	schema []string
	// bulkTypes maps the columns UpdateMultipleRows accepts to the SQL type
	// their VALUES placeholders are cast to.
	bulkTypes map[string]string
}

func dialectFor(dsn string) dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return postgresDialect
	}
	return sqliteDialect
}

func (d dialect) connString(dsn string) string {
	if d.name == "sqlite" {
		return "file:" + dsn + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}
	return dsn
}

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite",
	bulkTypes: map[string]string{
		"price":     "REAL",
		"stock":     "INTEGER",
		"code":      "TEXT",
		"source_id": "INTEGER",
	},
	schema: []string{
		`CREATE TABLE IF NOT EXISTS sources (
  id   INTEGER PRIMARY KEY,
  name TEXT NOT NULL UNIQUE
)`,
		`CREATE TABLE IF NOT EXISTS products (
  id           INTEGER PRIMARY KEY,
  name         TEXT NOT NULL,
  slug         TEXT NOT NULL,
  category     TEXT NOT NULL,
  manufacturer TEXT NOT NULL DEFAULT '',
  created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
		`CREATE TABLE IF NOT EXISTS product_part_numbers (
  id          INTEGER PRIMARY KEY,
  product_id  INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
  part_number TEXT NOT NULL UNIQUE
)`,
		`CREATE TABLE IF NOT EXISTS availabilities (
  id           INTEGER PRIMARY KEY,
  product_id   INTEGER REFERENCES products(id) ON DELETE SET NULL,
  source_id    INTEGER NOT NULL REFERENCES sources(id),
  code         TEXT NOT NULL,
  url          TEXT NOT NULL UNIQUE,
  name         TEXT NOT NULL DEFAULT '',
  price        REAL NOT NULL DEFAULT -1,
  stock        INTEGER NOT NULL DEFAULT 0 CHECK (stock IN (0,1)),
  category     TEXT NOT NULL,
  part_number  TEXT NOT NULL DEFAULT '',
  manufacturer TEXT NOT NULL DEFAULT '',
  refurbished  INTEGER NOT NULL DEFAULT 0 CHECK (refurbished IN (0,1)),
  created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(source_id, code)
)`,
		`CREATE INDEX IF NOT EXISTS idx_availabilities_product ON availabilities(product_id)`,
		`CREATE TABLE IF NOT EXISTS discovery_channel_entries (
  id            INTEGER PRIMARY KEY,
  url           TEXT NOT NULL UNIQUE,
  source_name   TEXT NOT NULL DEFAULT '',
  counter       INTEGER NOT NULL DEFAULT 0 CHECK (counter BETWEEN 0 AND 3),
  processed     INTEGER NOT NULL DEFAULT 0 CHECK (processed IN (0,1)),
  invalid       INTEGER NOT NULL DEFAULT 0 CHECK (invalid IN (0,1)),
  name          TEXT NOT NULL DEFAULT '',
  code          TEXT NOT NULL DEFAULT '',
  category      TEXT NOT NULL DEFAULT '',
  part_number   TEXT NOT NULL DEFAULT '',
  manufacturer  TEXT NOT NULL DEFAULT '',
  error_message TEXT NOT NULL DEFAULT '',
  created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  CHECK (processed + invalid <= 1)
)`,
		`CREATE TABLE IF NOT EXISTS discovery_user_entries (
  id                INTEGER PRIMARY KEY,
  url               TEXT NOT NULL,
  user_id           INTEGER NOT NULL,
  max_price         REAL NOT NULL,
  alert_by_email    INTEGER NOT NULL DEFAULT 0 CHECK (alert_by_email IN (0,1)),
  alert_by_telegram INTEGER NOT NULL DEFAULT 0 CHECK (alert_by_telegram IN (0,1)),
  counter           INTEGER NOT NULL DEFAULT 0 CHECK (counter BETWEEN 0 AND 3),
  processed         INTEGER NOT NULL DEFAULT 0 CHECK (processed IN (0,1)),
  invalid           INTEGER NOT NULL DEFAULT 0 CHECK (invalid IN (0,1)),
  created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  CHECK (processed + invalid <= 1)
)`,
		`CREATE INDEX IF NOT EXISTS idx_user_entries_pending ON discovery_user_entries(processed, invalid, counter)`,
		`CREATE TABLE IF NOT EXISTS alerts (
  id                INTEGER PRIMARY KEY,
  user_id           INTEGER NOT NULL,
  availability_id   INTEGER NOT NULL REFERENCES availabilities(id) ON DELETE CASCADE,
  max_price         REAL NOT NULL,
  alert_by_email    INTEGER NOT NULL DEFAULT 0 CHECK (alert_by_email IN (0,1)),
  alert_by_telegram INTEGER NOT NULL DEFAULT 0 CHECK (alert_by_telegram IN (0,1)),
  created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(user_id, availability_id)
)`,
	},
}

var postgresDialect = dialect{
	name:   "postgres",
	driver: "pgx",
	bulkTypes: map[string]string{
		"price":     "DOUBLE PRECISION",
		"stock":     "INTEGER",
		"code":      "TEXT",
		"source_id": "BIGINT",
	},
	schema: []string{
		`CREATE TABLE IF NOT EXISTS sources (
  id   BIGINT PRIMARY KEY,
  name TEXT NOT NULL UNIQUE
)`,
		`CREATE TABLE IF NOT EXISTS products (
  id           BIGSERIAL PRIMARY KEY,
  name         TEXT NOT NULL,
  slug         TEXT NOT NULL,
  category     TEXT NOT NULL,
  manufacturer TEXT NOT NULL DEFAULT '',
  created_at   TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
		`CREATE TABLE IF NOT EXISTS product_part_numbers (
  id          BIGSERIAL PRIMARY KEY,
  product_id  BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
  part_number TEXT NOT NULL UNIQUE
)`,
		`CREATE TABLE IF NOT EXISTS availabilities (
  id           BIGSERIAL PRIMARY KEY,
  product_id   BIGINT REFERENCES products(id) ON DELETE SET NULL,
  source_id    BIGINT NOT NULL REFERENCES sources(id),
  code         TEXT NOT NULL,
  url          TEXT NOT NULL UNIQUE,
  name         TEXT NOT NULL DEFAULT '',
  price        DOUBLE PRECISION NOT NULL DEFAULT -1,
  stock        INTEGER NOT NULL DEFAULT 0 CHECK (stock IN (0,1)),
  category     TEXT NOT NULL,
  part_number  TEXT NOT NULL DEFAULT '',
  manufacturer TEXT NOT NULL DEFAULT '',
  refurbished  INTEGER NOT NULL DEFAULT 0 CHECK (refurbished IN (0,1)),
  created_at   TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at   TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(source_id, code)
)`,
		`CREATE INDEX IF NOT EXISTS idx_availabilities_product ON availabilities(product_id)`,
		`CREATE TABLE IF NOT EXISTS discovery_channel_entries (
  id            BIGSERIAL PRIMARY KEY,
  url           TEXT NOT NULL UNIQUE,
  source_name   TEXT NOT NULL DEFAULT '',
  counter       INTEGER NOT NULL DEFAULT 0 CHECK (counter BETWEEN 0 AND 3),
  processed     INTEGER NOT NULL DEFAULT 0 CHECK (processed IN (0,1)),
  invalid       INTEGER NOT NULL DEFAULT 0 CHECK (invalid IN (0,1)),
  name          TEXT NOT NULL DEFAULT '',
  code          TEXT NOT NULL DEFAULT '',
  category      TEXT NOT NULL DEFAULT '',
  part_number   TEXT NOT NULL DEFAULT '',
  manufacturer  TEXT NOT NULL DEFAULT '',
  error_message TEXT NOT NULL DEFAULT '',
  created_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
  CHECK (processed + invalid <= 1)
)`,
		`CREATE TABLE IF NOT EXISTS discovery_user_entries (
  id                BIGSERIAL PRIMARY KEY,
  url               TEXT NOT NULL,
  user_id           BIGINT NOT NULL,
  max_price         DOUBLE PRECISION NOT NULL,
  alert_by_email    INTEGER NOT NULL DEFAULT 0 CHECK (alert_by_email IN (0,1)),
  alert_by_telegram INTEGER NOT NULL DEFAULT 0 CHECK (alert_by_telegram IN (0,1)),
  counter           INTEGER NOT NULL DEFAULT 0 CHECK (counter BETWEEN 0 AND 3),
  processed         INTEGER NOT NULL DEFAULT 0 CHECK (processed IN (0,1)),
  invalid           INTEGER NOT NULL DEFAULT 0 CHECK (invalid IN (0,1)),
  created_at        TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at        TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
  CHECK (processed + invalid <= 1)
)`,
		`CREATE INDEX IF NOT EXISTS idx_user_entries_pending ON discovery_user_entries(processed, invalid, counter)`,
		`CREATE TABLE IF NOT EXISTS alerts (
  id                BIGSERIAL PRIMARY KEY,
  user_id           BIGINT NOT NULL,
  availability_id   BIGINT NOT NULL REFERENCES availabilities(id) ON DELETE CASCADE,
  max_price         DOUBLE PRECISION NOT NULL,
  alert_by_email    INTEGER NOT NULL DEFAULT 0 CHECK (alert_by_email IN (0,1)),
  alert_by_telegram INTEGER NOT NULL DEFAULT 0 CHECK (alert_by_telegram IN (0,1)),
  created_at        TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(user_id, availability_id)
)`,
	},
}
