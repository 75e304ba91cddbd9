// Package paramtable holds the immutable, process-wide parameter descriptor
// table generated by the schema compiler (internal/schema) and the lookup
// surface the parameter engine builds on.
package paramtable

import (
	"fmt"

	"github.com/paramstore/paramstore/internal/pvalue"
)

// InvalidParameter is the sentinel id meaning "no such parameter".
const InvalidParameter = ^uint32(0)

// ValidationKind discriminates a ParameterDescriptor's Validation.
type ValidationKind int

const (
	ValidationNone ValidationKind = iota
	ValidationRange
	ValidationAllowedValues
	ValidationCustomCallback
)

// Validation mirrors validation union. For ValidationAllowedValues,
// Names parallels Values (used to report enum member names in errors).
type Validation struct {
	Kind ValidationKind
	Min pvalue.Value
	Max pvalue.Value
	Values []pvalue.Value
	Names []string
}

// Descriptor mirrors ParameterDescriptor.
type Descriptor struct {
	ID uint32
	NameID string // "<group>@<field>"
	ValueType pvalue.Kind
	EnumName string // set when ValueType == KindEnum
	Default pvalue.Value
	DefaultPath string // set instead of Default when the Blob default is a file path
	Validation Validation
	Title string
	Comment string
	IsConst bool
	Readonly bool
	Internal bool
	Runtime bool
}

// Group mirrors Group.
type Group struct {
	Name string
	Title string
	Comment string
}

// Table is the immutable, process-wide parameter table produced by the
// schema compiler. It owns id<->name lookup, matching invariant I1
// (PARAMETER_DATA[id].id == id, and the name->id map is a bijection).
type Table struct {
	Parameters []Descriptor
	Groups []Group
	byName map[string]uint32
}

// New builds a Table from a parameter list, validating invariant I1 and
// rejecting duplicate names. Parameters must already be in dense id order
// starting at 0 (the schema compiler's job; see internal/schema).
func New(groups []Group, parameters []Descriptor) (*Table, error) {
	byName := make(map[string]uint32, len(parameters))
	for i, d := range parameters {
		if d.ID != uint32(i) {
			return nil, fmt.Errorf("paramtable: descriptor at index %d has id %d, want dense ids", i, d.ID)
		}
		if _, dup := byName[d.NameID]; dup {
			return nil, fmt.Errorf("paramtable: duplicate parameter name %q", d.NameID)
		}
		byName[d.NameID] = d.ID
	}
	return &Table{Parameters: parameters, Groups: groups, byName: byName}, nil
}

// Len returns the number of parameters in the table.
func (t *Table) Len() int { return len(t.Parameters) }

// Lookup resolves a name-id to its dense integer id, or (InvalidParameter,
// false) when absent.
func (t *Table) Lookup(nameID string) (uint32, bool) {
	id, ok := t.byName[nameID]
	if !ok {
		return InvalidParameter, false
	}
	return id, true
}

// Name returns the name-id for a parameter id, or "" if out of range.
func (t *Table) Name(id uint32) string {
	if int(id) >= len(t.Parameters) {
		return ""
	}
	return t.Parameters[id].NameID
}

// Descriptor returns the descriptor for id, or nil if out of range.
func (t *Table) Descriptor(id uint32) *Descriptor {
	if int(id) >= len(t.Parameters) {
		return nil
	}
	return &t.Parameters[id]
}

// ValidateValue applies a descriptor's validation rule to a candidate value,
// matching set validation step and P5.
func (d *Descriptor) ValidateValue(v pvalue.Value) error {
	switch d.Validation.Kind {
	case ValidationNone, ValidationCustomCallback:
		return nil
	case ValidationRange:
		belowMin, err := pvalue.Less(v, d.Validation.Min)
		if err != nil {
			return fmt.Errorf("paramtable: %s: %w", d.NameID, err)
		}
		aboveMax, err := pvalue.Less(d.Validation.Max, v)
		if err != nil {
			return fmt.Errorf("paramtable: %s: %w", d.NameID, err)
		}
		if belowMin || aboveMax {
			return fmt.Errorf("paramtable: %s: value %s out of range [%s,%s]",
				d.NameID, v.String(), d.Validation.Min.String(), d.Validation.Max.String())
		}
		return nil
	case ValidationAllowedValues:
		for _, allowed := range d.Validation.Values {
			if allowed.Equal(v) {
				return nil
			}
		}
		return fmt.Errorf("paramtable: %s: value %s is not an allowed value", d.NameID, v.String())
	default:
		return fmt.Errorf("paramtable: %s: unknown validation kind", d.NameID)
	}
}
