// Package sqlite classifies SQLite backend errors into the strata
// conflict taxonomy. Importing it registers the classifier and, via
// modernc.org/sqlite, the cgo-free database/sql driver:
//
//	import _ "github.com/strataorm/strata/dialect/sqlite"
package sqlite

import (
	"errors"
	"regexp"
	"strings"

	sqlite3 "modernc.org/sqlite"

	"github.com/strataorm/strata"
	"github.com/strataorm/strata/dialect"
)

// Extended result codes involved in conflict classification.
const (
	codeBusy                 = 5
	codeLocked               = 6
	codeConstraintForeignKey = 787
	codeConstraintPrimaryKey = 1555
	codeConstraintUnique     = 2067
)

func init() {
	dialect.RegisterClassifier(dialect.SQLite, dialect.ClassifierFunc(Classify))
}

// uniqueRe extracts column lists from messages of the form
// "UNIQUE constraint failed: orders.customer_id, orders.number".
var uniqueRe = regexp.MustCompile(`UNIQUE constraint failed: (.+)`)

// Classify maps a raw SQLite error to the structured conflict it
// represents. Unrecognized errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if c, ok := strata.ParseConcurrencyTag(err.Error()); ok {
		return c
	}
	var se *sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() {
	case codeConstraintUnique, codeConstraintPrimaryKey:
		var columns []string
		if m := uniqueRe.FindStringSubmatch(err.Error()); m != nil {
			for _, qualified := range strings.Split(m[1], ",") {
				col := strings.TrimSpace(qualified)
				if i := strings.LastIndexByte(col, '.'); i >= 0 {
					col = col[i+1:]
				}
				columns = append(columns, col)
			}
		}
		return strata.NewUniqueConstraintError("", columns, err)
	case codeBusy, codeLocked:
		// SQLite has no deadlock detection; lock contention surfaces
		// as busy/locked and is retried the same way.
		return strata.NewDeadlockError(err)
	case codeConstraintForeignKey:
		return strata.NewIntegrityError("", err)
	default:
		return err
	}
}
