// Package postgres classifies PostgreSQL backend errors into the
// strata conflict taxonomy. Importing it registers the classifier:
//
//	import _ "github.com/strataorm/strata/dialect/postgres"
package postgres

import (
	"errors"
	"regexp"

	"github.com/lib/pq"

	"github.com/strataorm/strata"
	"github.com/strataorm/strata/dialect"
)

// SQLSTATE codes involved in conflict classification.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeDeadlockDetected    = "40P01"
	codeSerializationFail   = "40001"
)

func init() {
	dialect.RegisterClassifier(dialect.Postgres, dialect.ClassifierFunc(Classify))
}

// detailRe extracts column names from unique-violation details of the
// form "Key (customer_id, number)=(7, A-1) already exists.".
var detailRe = regexp.MustCompile(`Key \(([^)]+)\)=`)

// Classify maps a raw PostgreSQL error to the structured conflict it
// represents. Unrecognized errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if c, ok := strata.ParseConcurrencyTag(err.Error()); ok {
		return c
	}
	var pe *pq.Error
	if !errors.As(err, &pe) {
		return err
	}
	switch pe.Code {
	case codeUniqueViolation:
		var columns []string
		if m := detailRe.FindStringSubmatch(pe.Detail); m != nil {
			columns = splitColumns(m[1])
		}
		return strata.NewUniqueConstraintError(pe.Constraint, columns, err)
	case codeDeadlockDetected, codeSerializationFail:
		return strata.NewDeadlockError(err)
	case codeForeignKeyViolation:
		return strata.NewIntegrityError(pe.Constraint, err)
	default:
		return err
	}
}

func splitColumns(s string) []string {
	var cols []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			col := s[start:i]
			for len(col) > 0 && col[0] == ' ' {
				col = col[1:]
			}
			if col != "" {
				cols = append(cols, col)
			}
			start = i + 1
		}
	}
	return cols
}
