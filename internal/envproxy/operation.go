package envproxy

import (
	"fmt"
	"strings"
)

// Operation identifies one fundamental object operation a wrapper intercepts.
type Operation string

const (
	OpGet                      Operation = "get"
	OpSet                      Operation = "set"
	OpHas                      Operation = "has"
	OpDeleteProperty           Operation = "deleteProperty"
	OpOwnKeys                  Operation = "ownKeys"
	OpGetOwnPropertyDescriptor Operation = "getOwnPropertyDescriptor"
	OpDefineProperty           Operation = "defineProperty"
	OpPreventExtensions        Operation = "preventExtensions"
	OpGetPrototypeOf           Operation = "getPrototypeOf"
	OpSetPrototypeOf           Operation = "setPrototypeOf"
	OpIsExtensible             Operation = "isExtensible"
	OpApply                    Operation = "apply"
	OpConstruct                Operation = "construct"
)

// AllOperations lists every operation kind in trap declaration order.
var AllOperations = []Operation{
	OpGet,
	OpSet,
	OpHas,
	OpDeleteProperty,
	OpOwnKeys,
	OpGetOwnPropertyDescriptor,
	OpDefineProperty,
	OpPreventExtensions,
	OpGetPrototypeOf,
	OpSetPrototypeOf,
	OpIsExtensible,
	OpApply,
	OpConstruct,
}

// String returns the trap name.
func (o Operation) String() string {
	return string(o)
}

// Label returns the upper-cased form used in log lines, e.g. "DELETEPROPERTY".
func (o Operation) Label() string {
	return strings.ToUpper(string(o))
}

// Valid reports whether o is one of the known operation kinds.
func (o Operation) Valid() bool {
	for _, op := range AllOperations {
		if op == o {
			return true
		}
	}
	return false
}

// ParseOperation converts a trap name into an Operation.
func ParseOperation(name string) (Operation, error) {
	op := Operation(strings.TrimSpace(name))
	if !op.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}
	return op, nil
}

// OperationSet is the allow-set of operations that may be logged.
// A nil set means every operation is allowed.
type OperationSet map[Operation]struct{}

// NewOperationSet builds a set from the given operations.
func NewOperationSet(ops ...Operation) OperationSet {
	set := make(OperationSet, len(ops))
	for _, op := range ops {
		set[op] = struct{}{}
	}
	return set
}

// All reports whether the set places no restriction.
func (s OperationSet) All() bool {
	return s == nil
}

// Allows reports whether op passes the set.
func (s OperationSet) Allows(op Operation) bool {
	if s == nil {
		return true
	}
	_, ok := s[op]
	return ok
}

// Names returns the members in trap declaration order.
func (s OperationSet) Names() []string {
	names := make([]string, 0, len(s))
	for _, op := range AllOperations {
		if _, ok := s[op]; ok {
			names = append(names, op.String())
		}
	}
	return names
}

// Level controls how much of the allowed traffic is printed.
type Level int

const (
	// LevelLow logs only reads that produced an empty value.
	LevelLow Level = iota
	// LevelMedium logs every read and write.
	LevelMedium
	// LevelHigh logs every allowed operation.
	LevelHigh
	// LevelTrace logs every allowed operation with a call-stack excerpt.
	LevelTrace
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelLow:
		return "LOW"
	case LevelMedium:
		return "MEDIUM"
	case LevelHigh:
		return "HIGH"
	case LevelTrace:
		return "TRACE"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// Valid reports whether l is within LOW..TRACE.
func (l Level) Valid() bool {
	return l >= LevelLow && l <= LevelTrace
}

// ParseLevel accepts either the numeric form (0-3) or the name.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "0", "LOW":
		return LevelLow, nil
	case "1", "MEDIUM":
		return LevelMedium, nil
	case "2", "HIGH":
		return LevelHigh, nil
	case "3", "TRACE":
		return LevelTrace, nil
	}
	return LevelMedium, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
}
