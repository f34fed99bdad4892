// Package turso opens the production remote store: a Turso (libSQL)
// database reached over the network.
package turso

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/crumbworks/storefront/internal/catalog/remote"

	_ "github.com/tursodatabase/go-libsql"
)

// DSN builds the libSQL connection string for databaseURL, appending
// authToken when given.
func DSN(databaseURL, authToken string) (string, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return "", fmt.Errorf("database url is required")
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid database url: %w", err)
	}
	switch u.Scheme {
	case "libsql", "https", "http", "wss", "ws":
	default:
		return "", fmt.Errorf("unsupported database url scheme %q", u.Scheme)
	}
	if authToken != "" {
		q := u.Query()
		q.Set("authToken", authToken)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Open connects to the Turso database and returns a ready remote store.
// The store owns the connection; closing the store closes it.
func Open(ctx context.Context, databaseURL, authToken string, opts remote.Options, logger *log.Logger) (*remote.SQLStore, error) {
	dsn, err := DSN(databaseURL, authToken)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open turso database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to reach turso database: %w", err)
	}

	store, err := remote.NewSQLStore(ctx, conn, opts, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return store, nil
}
