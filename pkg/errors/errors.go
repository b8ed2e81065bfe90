package errors

import (
	"fmt"
	"strings"
)

// Violation records a single rule broken by a manifest field.
type Violation struct {
	Field   string
	Message string
}

func (v Violation) String() string {
	if v.Field == "" {
		return v.Message
	}
	return v.Field + ": " + v.Message
}

// ManifestError reports every rule a manifest violated, together with the
// path the manifest was read from. Validation never stops at the first
// problem, so operators can fix a descriptor in one pass.
type ManifestError struct {
	Path       string
	Violations []Violation
}

// NewManifestError constructs a ManifestError for the given source path.
func NewManifestError(path string, violations []Violation) *ManifestError {
	return &ManifestError{Path: path, Violations: violations}
}

func (e *ManifestError) Error() string {
	if e == nil {
		return ""
	}

	lines := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		lines = append(lines, "  "+v.String())
	}
	return fmt.Sprintf("invalid manifest %s (%d violations):\n%s",
		e.Path, len(e.Violations), strings.Join(lines, "\n"))
}

// Add appends a violation and returns the receiver for chaining.
func (e *ManifestError) Add(field, message string) *ManifestError {
	e.Violations = append(e.Violations, Violation{Field: field, Message: message})
	return e
}

// HasViolations reports whether any rule was broken.
func (e *ManifestError) HasViolations() bool {
	return e != nil && len(e.Violations) > 0
}

// RuntimeError represents a failure inside the extension runtime: an unknown
// route, an extension disabled for the requesting tenant, a missing store.
type RuntimeError struct {
	Op        string
	Extension string
	Message   string
	Err       error
}

// NewRuntimeError constructs a RuntimeError.
func NewRuntimeError(op, extension, message string, err error) error {
	return &RuntimeError{Op: op, Extension: extension, Message: message, Err: err}
}

func (e *RuntimeError) Error() string {
	if e == nil {
		return ""
	}
	if e.Extension != "" {
		return fmt.Sprintf("%s: extension '%s': %s", e.Op, e.Extension, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap exposes the underlying error.
func (e *RuntimeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// EncryptionError indicates a malformed ciphertext or a misconfigured key.
// Settings decryption fails hard rather than yielding corrupted plaintext.
type EncryptionError struct {
	Message string
	Err     error
}

// NewEncryptionError constructs an EncryptionError.
func NewEncryptionError(message string, err error) error {
	return &EncryptionError{Message: message, Err: err}
}

func (e *EncryptionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("encryption error: %s: %v", e.Message, e.Err)
	}
	return "encryption error: " + e.Message
}

// Unwrap exposes the underlying error.
func (e *EncryptionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
