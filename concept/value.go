package concept

import "strings"

// Kind discriminates the two shapes of a property value.
type Kind uint8

const (
	// KindSingle is a property that appears at most once per concept.
	KindSingle Kind = iota
	// KindMulti is a property that accumulates into a set.
	KindMulti
)

// String returns the kind name.
func (k Kind) String() string {
	if k == KindMulti {
		return "multi"
	}
	return "single"
}

// Value is a property value: either one string or a set of strings.
type Value struct {
	kind   Kind
	single string
	multi  Set
}

// SingleValue returns a single-valued property value.
func SingleValue(v string) Value {
	return Value{kind: KindSingle, single: v}
}

// MultiValue returns a multi-valued property value holding values.
func MultiValue(values ...string) Value {
	return Value{kind: KindMulti, multi: NewSet(values...)}
}

// Kind returns the value's kind.
func (v Value) Kind() Kind {
	return v.kind
}

// IsMulti reports whether the value is a set.
func (v Value) IsMulti() bool {
	return v.kind == KindMulti
}

// Single returns the string of a single value.
func (v Value) Single() (string, bool) {
	if v.kind != KindSingle {
		return "", false
	}
	return v.single, true
}

// Set returns the set of a multi value, or nil for a single value.
func (v Value) Set() Set {
	if v.kind != KindMulti {
		return nil
	}
	return v.multi
}

// Truthy reports whether a single value is the boolean true. Sets are never truthy.
func (v Value) Truthy() bool {
	return v.kind == KindSingle && truthy(v.single)
}

// String renders the value; sets render sorted and comma separated.
func (v Value) String() string {
	if v.kind == KindMulti {
		return "{" + strings.Join(v.multi.Sorted(), ", ") + "}"
	}
	return v.single
}
