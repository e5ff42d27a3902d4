// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlmodel

import (
	"database/sql/driver"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/canonical/sqlmodel/schema"
)

// JournalMode is the SQLite journal mode set on every connection.
type JournalMode string

const (
	JournalDelete   JournalMode = "DELETE"
	JournalTruncate JournalMode = "TRUNCATE"
	JournalPersist  JournalMode = "PERSIST"
	JournalMemory   JournalMode = "MEMORY"
	JournalWAL      JournalMode = "WAL"
	JournalOff      JournalMode = "OFF"
)

// Synchronous is the SQLite synchronous setting of every connection.
type Synchronous string

const (
	SynchronousOff    Synchronous = "OFF"
	SynchronousNormal Synchronous = "NORMAL"
	SynchronousFull   Synchronous = "FULL"
	SynchronousExtra  Synchronous = "EXTRA"
)

// DefaultStatementCacheSize is the number of prepared statements a DB keeps
// unless WithStatementCache says otherwise.
const DefaultStatementCacheSize = 128

type config struct {
	journalMode JournalMode
	synchronous Synchronous
	foreignKeys bool
	busyTimeout time.Duration
	cacheSize   int
	logger      *slog.Logger
	deriver     *schema.Deriver

	// wrapDriver lets tests observe the connections Open makes.
	wrapDriver func(driver.Driver) driver.Driver
}

func defaultConfig() config {
	return config{
		journalMode: JournalWAL,
		synchronous: SynchronousNormal,
		foreignKeys: true,
		busyTimeout: 5 * time.Second,
		cacheSize:   DefaultStatementCacheSize,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		deriver:     schema.Default,
	}
}

func newConfig(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Option configures a DB.
type Option func(*config)

// WithJournalMode sets the journal mode. The default is WAL.
func WithJournalMode(mode JournalMode) Option {
	return func(c *config) {
		c.journalMode = mode
	}
}

// WithSynchronous sets the synchronous mode. The default is NORMAL.
func WithSynchronous(s Synchronous) Option {
	return func(c *config) {
		c.synchronous = s
	}
}

// WithForeignKeys turns enforcement of foreign key constraints on or off. It
// is on by default.
func WithForeignKeys(on bool) Option {
	return func(c *config) {
		c.foreignKeys = on
	}
}

// WithBusyTimeout sets how long a connection waits for a lock held by
// another connection before failing with "database is locked".
func WithBusyTimeout(d time.Duration) Option {
	return func(c *config) {
		c.busyTimeout = d
	}
}

// WithLogger sets the logger statements and transactions are reported to at
// debug level. Nothing is logged by default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStatementCache sets how many prepared statements are kept. Zero turns
// preparing off, so every statement is sent to the driver as text.
func WithStatementCache(size int) Option {
	return func(c *config) {
		c.cacheSize = size
	}
}

// WithDeriver sets the schema deriver used by tables on the DB. The default is
// schema.Default.
func WithDeriver(d *schema.Deriver) Option {
	return func(c *config) {
		if d != nil {
			c.deriver = d
		}
	}
}

// connectScript returns the statements run on every new connection.
func (c *config) connectScript() (string, error) {
	switch c.journalMode {
	case JournalDelete, JournalTruncate, JournalPersist, JournalMemory, JournalWAL, JournalOff:
	default:
		return "", errors.Errorf("invalid journal mode %q", string(c.journalMode))
	}
	switch c.synchronous {
	case SynchronousOff, SynchronousNormal, SynchronousFull, SynchronousExtra:
	default:
		return "", errors.Errorf("invalid synchronous mode %q", string(c.synchronous))
	}
	if c.busyTimeout < 0 {
		return "", errors.Errorf("negative busy timeout %s", c.busyTimeout)
	}
	foreignKeys := "OFF"
	if c.foreignKeys {
		foreignKeys = "ON"
	}
	return strings.Join([]string{
		fmt.Sprintf("PRAGMA journal_mode = %s;", c.journalMode),
		fmt.Sprintf("PRAGMA synchronous = %s;", c.synchronous),
		fmt.Sprintf("PRAGMA foreign_keys = %s;", foreignKeys),
		fmt.Sprintf("PRAGMA busy_timeout = %d;", c.busyTimeout.Milliseconds()),
	}, "\n"), nil
}

// closeScript is run on databases opened with Open before they are closed.
const closeScript = `
PRAGMA optimize;
VACUUM;
`
