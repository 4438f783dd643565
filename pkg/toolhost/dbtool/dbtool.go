// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dbtool implements the database tool class: parameterized,
// read-only queries against a configured MySQL or PostgreSQL connection,
// capped on row count and query time.
package dbtool

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/swarmhive/swarmd/pkg/toolhost"
	"github.com/swarmhive/swarmd/pkg/toolhost/functiontool"
)

// QueryArgs defines the parameters for running a parameterized query.
type QueryArgs struct {
	Query string `json:"query" jsonschema:"required,description=A SELECT query with $1/? placeholders, never literal values"`
	Args  []any  `json:"args,omitempty" jsonschema:"description=Positional values bound to the query's placeholders"`
}

// Config configures the query_database tool.
type Config struct {
	// Driver is "mysql" or "postgres".
	Driver string
	// DSN is the driver-specific data source name.
	DSN string

	MaxRows   int
	QueryTime time.Duration
}

func (c *Config) setDefaults() {
	if c.MaxRows <= 0 {
		c.MaxRows = 500
	}
	if c.QueryTime <= 0 {
		c.QueryTime = 5 * time.Second
	}
}

// NewQueryDatabase builds the query_database tool definition. It opens
// (lazily; database/sql connections are established on first use) a
// connection pool against cfg.DSN for the lifetime of the returned
// Definition.
func NewQueryDatabase(cfg Config) (toolhost.Definition, error) {
	cfg.setDefaults()

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return toolhost.Definition{}, fmt.Errorf("dbtool: open %s: %w", cfg.Driver, err)
	}

	return functiontool.NewWithValidation(
		functiontool.Config{
			Name:        "query_database",
			Description: "Run a parameterized, read-only SQL query and return the result rows.",
			Class:       toolhost.ClassDatabase,
			Policy: toolhost.Policy{
				Class:     toolhost.ClassDatabase,
				MaxRows:   cfg.MaxRows,
				QueryTime: cfg.QueryTime,
			},
		},
		func(ctx toolhost.Context, args QueryArgs) (map[string]any, error) {
			return queryImpl(ctx, db, cfg, args)
		},
		func(args QueryArgs) error {
			trimmed := strings.TrimSpace(args.Query)
			if trimmed == "" {
				return fmt.Errorf("query cannot be empty")
			}
			if !strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") {
				return fmt.Errorf("only SELECT queries are permitted: %w", toolhost.ErrPolicyDenied)
			}
			return nil
		},
	)
}

func queryImpl(ctx context.Context, db *sql.DB, cfg Config, args QueryArgs) (map[string]any, error) {
	queryCtx, cancel := context.WithTimeout(ctx, cfg.QueryTime)
	defer cancel()

	rows, err := db.QueryContext(queryCtx, args.Query, args.Args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var records []map[string]any
	truncated := false
	for rows.Next() {
		if len(records) >= cfg.MaxRows {
			truncated = true
			break
		}

		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		record := make(map[string]any, len(columns))
		for i, col := range columns {
			record[col] = normalizeValue(values[i])
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return map[string]any{
		"rows":      records,
		"row_count": len(records),
		"truncated": truncated,
		"columns":   columns,
	}, nil
}

// normalizeValue converts driver-returned []byte (MySQL's text-protocol
// representation of most column types) into a string so query results
// marshal predictably to JSON.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
