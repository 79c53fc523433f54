// Package store looks up application user records that are cross-referenced
// with directory entries.
package store

import (
	"context"

	"gorm.io/gorm/schema"
)

// Record is one application user row keyed by column name.
type Record map[string]any

// Finder looks up a single record of model whose field equals value. A nil
// record with a nil error means no such record.
type Finder interface {
	FindByField(ctx context.Context, model, field, value string) (Record, error)
}

var naming = schema.NamingStrategy{}

// TableName maps a model name to its table the way gorm does: snake_case,
// pluralized. "User" and "Users" both map to "users".
func TableName(model string) string {
	return naming.TableName(model)
}
