package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// requiredColumns lists every column the repositories read or write, per table
var requiredColumns = map[string][]string{
	"assets": {
		"name", "abbreviation", "coin_gecko_id", "coin_market_cap_id", "created_at", "updated_at",
	},
	"price_points": {
		"name", "abbreviation", "iso_week", "iso_year", "price", "currency", "date", "updated_at",
	},
	"source_posts": {
		"source", "source_id", "title", "author", "community", "permalink", "created_utc", "created_date",
		"is_gallery", "gallery_image_urls", "is_direct_image_post", "image_post_urls",
		"processed", "is_portfolio", "failed", "fetched_at", "updated_at",
	},
	"portfolios": {
		"source", "source_id", "total_investment", "start_value", "current_value", "profit_total",
		"profit_percentage", "btci_start_amount", "btci_current_value", "btci_profit_total",
		"btci_profit_percentage", "created_date", "updated_date",
	},
	"purchases": {
		"id", "source", "source_id", "name", "abbreviation", "amount", "purchase_price_per_unit",
		"total_purchase_value", "purchase_date", "original_currency", "fx_rate", "created_at",
	},
}

// SchemaError lists the columns missing from the live schema
type SchemaError struct {
	Missing map[string][]string
}

func (e *SchemaError) Error() string {
	tables := make([]string, 0, len(e.Missing))
	for table := range e.Missing {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	parts := make([]string, 0, len(tables))
	for _, table := range tables {
		parts = append(parts, fmt.Sprintf("%s(%s)", table, strings.Join(e.Missing[table], ", ")))
	}
	return "schema is missing columns: " + strings.Join(parts, "; ")
}

// ValidateSchema checks the live schema against the columns the repositories use
func ValidateSchema(ctx context.Context, db DBTX) error {
	tables := make([]string, 0, len(requiredColumns))
	for table := range requiredColumns {
		tables = append(tables, table)
	}

	rows, err := db.Query(ctx, `
		SELECT table_name, column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = ANY($1)
	`, tables)
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}
	defer rows.Close()

	live := make(map[string]map[string]bool)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return fmt.Errorf("failed to scan schema row: %w", err)
		}
		if live[table] == nil {
			live[table] = make(map[string]bool)
		}
		live[table][column] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}

	return checkColumns(live)
}

func checkColumns(live map[string]map[string]bool) error {
	missing := make(map[string][]string)
	for table, columns := range requiredColumns {
		for _, column := range columns {
			if !live[table][column] {
				missing[table] = append(missing[table], column)
			}
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Missing: missing}
	}
	return nil
}
