package sqlite

import (
	"errors"
	"fmt"

	"github.com/litevault/litevault-api/internal/store"
	"github.com/mattn/go-sqlite3"
)

// mapError maps SQLite constraint failures onto store errors. The only
// foreign key in the schema is enrichment_outbox.subject_id.
func mapError(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code != sqlite3.ErrConstraint {
		return err
	}
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	case sqlite3.ErrConstraintForeignKey:
		return fmt.Errorf("%w: %v", store.ErrItemNotFound, err)
	default:
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
}
