// Package mysql classifies MySQL backend errors into the strata
// conflict taxonomy. Importing it registers the classifier:
//
//	import _ "github.com/strataorm/strata/dialect/mysql"
package mysql

import (
	"regexp"

	"github.com/go-sql-driver/mysql"

	"github.com/strataorm/strata"
	"github.com/strataorm/strata/dialect"
)

// MySQL error numbers involved in conflict classification.
const (
	errDuplicateEntry  = 1062
	errLockDeadlock    = 1213
	errRowIsReferenced = 1451 // cannot delete or update a parent row
	errNoReferencedRow = 1452 // cannot add or update a child row
	errLockWaitTimeout = 1205
)

func init() {
	dialect.RegisterClassifier(dialect.MySQL, dialect.ClassifierFunc(Classify))
}

// duplicateRe extracts the key name from messages of the form
// "Duplicate entry 'x' for key 'orders.IXU_orders_number'".
var duplicateRe = regexp.MustCompile(`Duplicate entry '.*' for key '(?:.*\.)?([^.']+)'`)

// Classify maps a raw MySQL error to the structured conflict it
// represents. Unrecognized errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if c, ok := strata.ParseConcurrencyTag(err.Error()); ok {
		return c
	}
	me, ok := err.(*mysql.MySQLError)
	if !ok {
		return err
	}
	switch me.Number {
	case errDuplicateEntry:
		var index string
		if m := duplicateRe.FindStringSubmatch(me.Message); m != nil {
			index = m[1]
		}
		return strata.NewUniqueConstraintError(index, nil, err)
	case errLockDeadlock, errLockWaitTimeout:
		return strata.NewDeadlockError(err)
	case errRowIsReferenced, errNoReferencedRow:
		return strata.NewIntegrityError("", err)
	default:
		return err
	}
}
