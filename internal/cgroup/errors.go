// Package cgroup implements the mount-table discovery, cgroup object model,
// task placement and rules engine described for the cgroupfs runtime: it
// creates directories, writes controller attribute files, moves tasks
// between groups and resolves user/group placement rules. It never
// interprets a controller's attribute values; they are moved as opaque
// strings.
package cgroup

import (
	"errors"
	"fmt"
)

// Kind is the closed set of domain error kinds the engine can report.
type Kind int

const (
	// KindOther wraps an OS-level error (errno) that has no dedicated Kind.
	KindOther Kind = iota
	KindNotCompiled
	KindNotMounted
	KindDoesNotExist
	KindNotCreated
	KindSubsystemNotMounted
	KindNotOwner
	KindMultipleMountpoints
	KindNotAllowed
	KindMaxExceeded
	KindControllerExists
	KindValueExists
	KindInvalidOperation
	KindControllerCreateFailed
	KindFailed
	KindNotInitialised
	KindValueDoesNotExist
	KindGeneric
	KindValuesNotEqual
	KindControllersDiffer
	KindParseFailed
	KindRulesFileMissing
	KindMountFailed
	KindConfigNotOpenable
	KindEOF
)

var kindText = map[Kind]string{
	KindOther:                  "other",
	KindNotCompiled:            "cgroup support not compiled in",
	KindNotMounted:             "cgroup is not mounted",
	KindDoesNotExist:           "cgroup does not exist",
	KindNotCreated:             "cgroup has not been created",
	KindSubsystemNotMounted:    "one of the needed subsystems is not mounted",
	KindNotOwner:               "request came from a non-owner",
	KindMultipleMountpoints:    "controllers are bound to different mount points",
	KindNotAllowed:             "operation not allowed",
	KindMaxExceeded:            "value set exceeds maximum",
	KindControllerExists:       "controller already exists",
	KindValueExists:            "value already exists",
	KindInvalidOperation:       "invalid operation",
	KindControllerCreateFailed: "creation of controller failed",
	KindFailed:                 "operation failed",
	KindNotInitialised:         "not initialised",
	KindValueDoesNotExist:      "control does not exist",
	KindGeneric:                "generic error",
	KindValuesNotEqual:         "values are not equal",
	KindControllersDiffer:      "controllers are different",
	KindParseFailed:            "parsing failed",
	KindRulesFileMissing:       "rules file does not exist",
	KindMountFailed:            "mounting failed",
	KindConfigNotOpenable:      "config file could not be opened",
	KindEOF:                    "end of file or iterator",
}

func (k Kind) String() string {
	if s, ok := kindText[k]; ok {
		return s
	}
	return "unknown"
}

// Error is the value every exported operation returns on failure. Err, when
// set, is the underlying error behind the failure; every KindOther error
// carries one, and some other kinds (e.g. KindNotAllowed) may too.
type Error struct {
	Kind  Kind
	Op    string
	Group string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cgroup: %s: %s: %s: %v", e.Op, e.Group, e.Kind, e.Err)
	}
	if e.Group != "" {
		return fmt.Sprintf("cgroup: %s: %s: %s", e.Op, e.Group, e.Kind)
	}
	return fmt.Sprintf("cgroup: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, allowing
// callers to write errors.Is(err, cgroup.ErrDoesNotExist) and similar.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newErr(op, group string, kind Kind, err error) *Error {
	return &Error{Op: op, Group: group, Kind: kind, Err: err}
}

// Sentinels usable with errors.Is; they only carry a Kind and match any
// *Error of that Kind regardless of Op/Group/Err.
var (
	ErrNotCompiled            = &Error{Kind: KindNotCompiled}
	ErrNotMounted             = &Error{Kind: KindNotMounted}
	ErrDoesNotExist           = &Error{Kind: KindDoesNotExist}
	ErrNotCreated             = &Error{Kind: KindNotCreated}
	ErrSubsystemNotMounted    = &Error{Kind: KindSubsystemNotMounted}
	ErrNotOwner               = &Error{Kind: KindNotOwner}
	ErrMultipleMountpoints    = &Error{Kind: KindMultipleMountpoints}
	ErrNotAllowed             = &Error{Kind: KindNotAllowed}
	ErrMaxExceeded            = &Error{Kind: KindMaxExceeded}
	ErrControllerExists       = &Error{Kind: KindControllerExists}
	ErrValueExists            = &Error{Kind: KindValueExists}
	ErrInvalidOperation       = &Error{Kind: KindInvalidOperation}
	ErrControllerCreateFailed = &Error{Kind: KindControllerCreateFailed}
	ErrFailed                 = &Error{Kind: KindFailed}
	ErrNotInitialised         = &Error{Kind: KindNotInitialised}
	ErrValueDoesNotExist      = &Error{Kind: KindValueDoesNotExist}
	ErrGeneric                = &Error{Kind: KindGeneric}
	ErrValuesNotEqual         = &Error{Kind: KindValuesNotEqual}
	ErrControllersDiffer      = &Error{Kind: KindControllersDiffer}
	ErrParseFailed            = &Error{Kind: KindParseFailed}
	ErrRulesFileMissing       = &Error{Kind: KindRulesFileMissing}
	ErrMountFailed            = &Error{Kind: KindMountFailed}
	ErrConfigNotOpenable      = &Error{Kind: KindConfigNotOpenable}
	ErrEOF                    = &Error{Kind: KindEOF}
)
