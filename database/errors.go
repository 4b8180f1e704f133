// database/errors.go
package database

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrMissingDocumentNumber marks a record that cannot be upserted because the
// upstream payload lacks its natural key. Callers skip the record and move on.
var ErrMissingDocumentNumber = errors.New("document record is missing document_number")

const (
	mysqlErrDuplicateKeyName = 1061 // CREATE INDEX on an existing index
	mysqlErrDuplicateEntry   = 1062 // unique constraint violation
)

func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry
}

func isDuplicateKeyName(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrDuplicateKeyName
}
