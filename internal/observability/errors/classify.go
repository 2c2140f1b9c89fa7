package errors

import (
	goerrors "errors"
	"reflect"
	"strings"
)

// generic wrapper and leaf types that carry no classification signal.
var genericTypes = map[string]bool{
	"errors.errorString": true,
	"errors.joinError":   true,
	"fmt.wrapError":      true,
	"fmt.wrapErrors":     true,
}

// Classify returns a normalized error type name suitable for tagging metrics/logs
// and for prefixing persisted failure messages.
// It unwraps errors to the innermost concrete type and converts it to snake_case-ish.
// When the innermost error is a plain errors.New value, the deepest typed error in the
// chain wins. Joined errors follow their first member.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var specific string
	for err != nil {
		if name := typeName(err); name != "" && !genericTypes[name] {
			specific = name
		}
		next := unwrapFirst(err)
		if next == nil {
			break
		}
		err = next
	}

	name := specific
	if name == "" {
		name = typeName(err)
	}
	if name == "" {
		return "unknown"
	}
	return strings.ReplaceAll(strings.ToLower(name), ".", "_")
}

// Describe formats err as "<class>: <message>", the form stored on failed jobs.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	return Classify(err) + ": " + err.Error()
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.String()
}

func unwrapFirst(err error) error {
	if multi, ok := err.(interface{ Unwrap() []error }); ok { //nolint:errorlint // walking the chain by hand
		for _, e := range multi.Unwrap() {
			if e != nil {
				return e
			}
		}
		return nil
	}
	return goerrors.Unwrap(err)
}
