package model

import (
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/strataorm/strata"
)

// tableName derives the mapped table name: an explicit Table override,
// or the pluralized snake-case form of the entity name.
func tableName(def strata.Interface, name string) string {
	if t, ok := def.(strata.Tabler); ok && t.Table() != "" {
		return t.Table()
	}
	return inflect.Underscore(inflect.Pluralize(name))
}

// nameKeys synthesizes deterministic key names after expansion:
// entity table plus a key-type prefix, and for plain indexes the
// concatenated member names. Explicit names win.
func (b *builder) nameKeys() {
	for _, e := range b.model.entities {
		for _, k := range e.keys {
			if k.failed {
				continue
			}
			if k.explicitName != "" {
				k.name = k.explicitName
				continue
			}
			switch k.typ {
			case KeyPrimary:
				k.name = "PK_" + e.table
			case KeyForeign:
				k.name = "FK_" + e.table + "_" + k.reference.member.name
			default:
				parts := make([]string, 0, len(k.members)+1)
				parts = append(parts, keyPrefix(k), e.table)
				for _, km := range k.members {
					parts = append(parts, km.name)
				}
				k.name = strings.Join(parts, "_")
			}
		}
	}
}

// keyPrefix returns the index name prefix for unique, clustered, and
// plain indexes.
func keyPrefix(k *KeyInfo) string {
	switch {
	case k.unique:
		return "IXU"
	case k.clustered:
		return "IXC"
	default:
		return "IX"
	}
}
