// Package taxonomy defines the abstract error kinds shared by every
// component of the artifact distribution core, and a classifier that maps
// adapter-level failures onto them.
package taxonomy

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Kind is one of the nine abstract error kinds.
type Kind string

const (
	NotFound            Kind = "not_found"
	Invalid              Kind = "invalid"
	Conflict             Kind = "conflict"
	PermissionDenied     Kind = "permission_denied"
	ResourceExhausted    Kind = "resource_exhausted"
	TransientUnavailable Kind = "transient_unavailable"
	Integrity            Kind = "integrity"
	Cancelled            Kind = "cancelled"
	Unknown              Kind = "unknown"
)

// Error is the typed error carried across every component boundary.
type Error struct {
	Kind     Kind
	Message  string
	Cause    error
	Metadata map[string]interface{}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Code returns the stable string form of the kind, for logging and RPC
// front error-code mapping.
func (e *Error) Code() string { return string(e.Kind) }

// New creates a taxonomy error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a taxonomy error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithMetadata attaches metadata to the error and returns it.
func (e *Error) WithMetadata(key string, value interface{}) *Error {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// KindOf extracts the Kind from err, returning Unknown if err is not (or
// does not wrap) a *Error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return Unknown
}

// Is reports whether err is a taxonomy error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Classifier inspects errors returned by an object store backend and
// assigns them a stable abstract kind, the way the teacher's
// pkg/storage/errors.go ErrorClassifier inspects block-storage backend
// errors — adapted here to the nine kinds of the error taxonomy instead
// of the teacher's block-storage-specific codes.
type Classifier struct{}

// NewClassifier returns a Classifier.
func NewClassifier() *Classifier { return &Classifier{} }

// Classify maps a raw backend error to a taxonomy error. If err is already
// a *Error it is returned unchanged.
func (c *Classifier) Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var te *Error
	if errors.As(err, &te) {
		return te
	}

	if errors.Is(err, context.Canceled) {
		return Wrap(Cancelled, "operation cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(TransientUnavailable, "operation timed out", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Wrap(TransientUnavailable, "network timeout", err)
		}
		return Wrap(TransientUnavailable, "network error", err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case c.isNotFound(msg):
		return Wrap(NotFound, "object not found", err)
	case c.isPermission(msg):
		return Wrap(PermissionDenied, "permission denied", err)
	case c.isQuota(msg):
		return Wrap(ResourceExhausted, "resource exhausted", err)
	case c.isConnection(msg):
		return Wrap(TransientUnavailable, "backend unavailable", err)
	case c.isIntegrity(msg):
		return Wrap(Integrity, "integrity check failed", err)
	case c.isInvalid(msg):
		return Wrap(Invalid, "invalid request", err)
	default:
		return Wrap(Unknown, "unclassified backend error", err)
	}
}

func (c *Classifier) isNotFound(msg string) bool {
	return containsAny(msg, "not found", "no such", "404", "does not exist", "key not found")
}

func (c *Classifier) isPermission(msg string) bool {
	return containsAny(msg, "permission denied", "forbidden", "403", "access denied", "unauthorized", "401")
}

func (c *Classifier) isQuota(msg string) bool {
	return containsAny(msg, "quota", "too many", "resource exhausted", "429", "rate limit", "insufficient")
}

func (c *Classifier) isConnection(msg string) bool {
	return containsAny(msg, "connection refused", "connection reset", "timeout", "timed out", "unavailable", "503", "no route to host", "broken pipe")
}

func (c *Classifier) isIntegrity(msg string) bool {
	return containsAny(msg, "checksum", "digest mismatch", "corrupt", "hash mismatch")
}

func (c *Classifier) isInvalid(msg string) bool {
	return containsAny(msg, "invalid", "malformed", "bad request", "400")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
