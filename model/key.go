package model

import (
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// KeyType classifies a key.
type KeyType uint8

// Key types.
const (
	KeyPrimary KeyType = iota
	KeyForeign
	KeyIndex
)

// String returns the key type name.
func (t KeyType) String() string {
	switch t {
	case KeyPrimary:
		return "primary key"
	case KeyForeign:
		return "foreign key"
	default:
		return "index"
	}
}

// MembersStatus is the monotonic resolution state of a key's member
// list. A key is usable for SQL generation only once Expanded.
type MembersStatus uint8

// Member-list states, in resolution order.
const (
	// Listed: member names parsed, not all resolved to members.
	Listed MembersStatus = iota
	// Assigned: every named member resolved to a member object.
	Assigned
	// Expanded: every member flattened to a concrete column.
	Expanded
)

// String returns the status name.
func (s MembersStatus) String() string {
	switch s {
	case Listed:
		return "listed"
	case Assigned:
		return "assigned"
	case Expanded:
		return "expanded"
	default:
		return fmt.Sprintf("status(%d)", s)
	}
}

// KeyMember is one entry of a key's member list, with its sort order.
type KeyMember struct {
	member     *MemberInfo // nil while the name is unresolved
	name       string
	descending bool
}

// Member returns the resolved member, or nil while the key is Listed.
func (k *KeyMember) Member() *MemberInfo { return k.member }

// Name returns the declared member name.
func (k *KeyMember) Name() string { return k.name }

// Descending reports the declared sort order.
func (k *KeyMember) Descending() bool { return k.descending }

// KeyInfo describes one key of an entity: primary, foreign, or index.
type KeyInfo struct {
	entity       *EntityInfo
	name         string
	explicitName string
	typ          KeyType
	unique       bool
	clustered    bool
	status       MembersStatus
	spec         string
	members      []*KeyMember
	expanded     []*KeyMember
	includeSpec  []string
	include      []*MemberInfo
	reference    *ReferenceInfo // the reference that owns a foreign key
	failed       bool           // expansion aborted with a reported error
}

// Entity returns the owning entity.
func (k *KeyInfo) Entity() *EntityInfo { return k.entity }

// Name returns the key name, synthesized after expansion unless an
// explicit name was declared.
func (k *KeyInfo) Name() string { return k.name }

// Type returns the key type.
func (k *KeyInfo) Type() KeyType { return k.typ }

// Unique reports whether the key is unique. Primary keys are unique.
func (k *KeyInfo) Unique() bool { return k.unique || k.typ == KeyPrimary }

// Clustered reports whether the key is the clustered key.
func (k *KeyInfo) Clustered() bool { return k.clustered }

// Status returns the member-list resolution state.
func (k *KeyInfo) Status() MembersStatus { return k.status }

// KeyMembers returns the declared member list, which may contain
// reference members.
func (k *KeyInfo) KeyMembers() []*KeyMember { return k.members }

// ExpandedKeyMembers returns the member list flattened to concrete
// columns. It panics if the key has not reached the Expanded state:
// only the resolver may look at partially expanded keys.
func (k *KeyInfo) ExpandedKeyMembers() []*KeyMember {
	if k.status != Expanded {
		panic(fmt.Sprintf("model: key %s.%s read before expansion (status %s)", k.entity.name, k.display(), k.status))
	}
	return k.expanded
}

// Include returns the resolved include columns of an index key.
func (k *KeyInfo) Include() []*MemberInfo { return k.include }

// Reference returns the reference that synthesized this foreign key,
// or nil for other key types.
func (k *KeyInfo) Reference() *ReferenceInfo { return k.reference }

// display returns a stable identifier for diagnostics even before the
// key name is synthesized.
func (k *KeyInfo) display() string {
	if k.name != "" {
		return k.name
	}
	if k.explicitName != "" {
		return k.explicitName
	}
	switch {
	case k.typ == KeyPrimary:
		return "<primary key>"
	case k.reference != nil:
		return "<fk " + k.reference.member.name + ">"
	default:
		return "<index " + k.spec + ">"
	}
}

// EntityKey is an ordered tuple of concrete values for a key's
// expanded columns, the runtime identity of a record. Two keys are
// equal iff all component values are equal, independent of instance
// identity.
type EntityKey struct {
	key    *KeyInfo
	values []any
}

// NewEntityKey returns an EntityKey over the given key and values. The
// value count must match the key's expanded column count.
func NewEntityKey(key *KeyInfo, values ...any) (EntityKey, error) {
	if key == nil {
		return EntityKey{}, fmt.Errorf("model: entity key requires a key")
	}
	if n := len(key.ExpandedKeyMembers()); n != len(values) {
		return EntityKey{}, fmt.Errorf("model: key %s expects %d values, got %d", key.name, n, len(values))
	}
	return EntityKey{key: key, values: values}, nil
}

// Key returns the key definition the values belong to.
func (k EntityKey) Key() *KeyInfo { return k.key }

// Values returns the component values in key order.
func (k EntityKey) Values() []any { return k.values }

// IsZero reports whether the key holds no values, e.g. a new record
// whose identity has not been assigned yet.
func (k EntityKey) IsZero() bool {
	if k.key == nil || len(k.values) == 0 {
		return true
	}
	for _, v := range k.values {
		if v != nil {
			return false
		}
	}
	return true
}

// Equal reports structural equality of two keys.
func (k EntityKey) Equal(o EntityKey) bool {
	if k.key != o.key || len(k.values) != len(o.values) {
		return false
	}
	for i := range k.values {
		if fmt.Sprint(k.values[i]) != fmt.Sprint(o.values[i]) {
			return false
		}
	}
	return true
}

// Fingerprint returns a stable map key for the identity map: the
// entity name plus the msgpack encoding of the component values.
// Encoding the tuple rather than formatting it keeps values like
// "a,b" and ("a","b") distinct.
func (k EntityKey) Fingerprint() (string, error) {
	if k.key == nil {
		return "", fmt.Errorf("model: fingerprint of zero entity key")
	}
	enc, err := msgpack.Marshal(k.values)
	if err != nil {
		return "", fmt.Errorf("model: fingerprint %s: %w", k.key.entity.name, err)
	}
	return k.key.entity.name + "\x00" + string(enc), nil
}

// String formats the key for diagnostics and conflict tags.
func (k EntityKey) String() string {
	if k.IsZero() {
		return "<unset>"
	}
	parts := make([]string, len(k.values))
	for i, v := range k.values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ",")
}
