// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlmodel

// CachedStatements returns the number of statements prepared and cached on
// db.
func CachedStatements(db *DB) int {
	return db.cache.len()
}

// ConnectScript returns the statements Open runs on new connections with the
// given options.
func ConnectScript(opts ...Option) (string, error) {
	cfg := newConfig(opts)
	return cfg.connectScript()
}
