// Package minererrors defines the pipeline's error taxonomy: ConfigError,
// IoError, EmbedError, ReasonerError, VectorIndexError, DataError, and
// PolicyError. Each carries enough context to log a useful progress line
// without aborting the surrounding work.
package minererrors

import "fmt"

// ConfigError reports a bad path, unknown codec, or misconfigured value.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func NewConfigError(field, message string, err error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Err: err}
}

// IoError wraps a store or filesystem failure.
type IoError struct {
	Op      string
	Path    string
	Err     error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("io: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

func NewIoError(op, path string, err error) *IoError {
	return &IoError{Op: op, Path: path, Err: err}
}

// EmbedErrorKind classifies why an embedding call failed.
type EmbedErrorKind string

const (
	EmbedEmpty     EmbedErrorKind = "empty"
	EmbedTransport EmbedErrorKind = "transport"
	EmbedDecode    EmbedErrorKind = "decode"
)

// EmbedError reports a failure to produce a vector from the embedder.
type EmbedError struct {
	Kind  EmbedErrorKind
	Model string
	Err   error
}

func (e *EmbedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embed(%s): %s: %v", e.Model, e.Kind, e.Err)
	}
	return fmt.Sprintf("embed(%s): %s", e.Model, e.Kind)
}

func (e *EmbedError) Unwrap() error { return e.Err }

func NewEmbedError(kind EmbedErrorKind, model string, err error) *EmbedError {
	return &EmbedError{Kind: kind, Model: model, Err: err}
}

// ReasonerErrorKind classifies why a reasoner call failed.
type ReasonerErrorKind string

const (
	ReasonerTransport ReasonerErrorKind = "transport"
	ReasonerParse     ReasonerErrorKind = "parse"
)

// ReasonerError reports a failure to obtain or parse a reasoner response.
type ReasonerError struct {
	Kind  ReasonerErrorKind
	Model string
	Err   error
}

func (e *ReasonerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reasoner(%s): %s: %v", e.Model, e.Kind, e.Err)
	}
	return fmt.Sprintf("reasoner(%s): %s", e.Model, e.Kind)
}

func (e *ReasonerError) Unwrap() error { return e.Err }

func NewReasonerError(kind ReasonerErrorKind, model string, err error) *ReasonerError {
	return &ReasonerError{Kind: kind, Model: model, Err: err}
}

// VectorIndexErrorKind classifies a vector-index failure.
type VectorIndexErrorKind string

const (
	VectorNotFound   VectorIndexErrorKind = "not_found"
	VectorDimMismatch VectorIndexErrorKind = "dim_mismatch"
	VectorUpsertFail VectorIndexErrorKind = "upsert"
)

// VectorIndexError reports a collection/query/upsert failure.
type VectorIndexError struct {
	Kind       VectorIndexErrorKind
	Collection string
	Err        error
}

func (e *VectorIndexError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vectorindex(%s): %s: %v", e.Collection, e.Kind, e.Err)
	}
	return fmt.Sprintf("vectorindex(%s): %s", e.Collection, e.Kind)
}

func (e *VectorIndexError) Unwrap() error { return e.Err }

func NewVectorIndexError(kind VectorIndexErrorKind, collection string, err error) *VectorIndexError {
	return &VectorIndexError{Kind: kind, Collection: collection, Err: err}
}

// DataError reports an out-of-range offset, an inverted span, or an
// unexpected unique-constraint violation. Data errors are fatal for the
// current operation.
type DataError struct {
	Entity  string
	Message string
	Err     error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data(%s): %s: %v", e.Entity, e.Message, e.Err)
	}
	return fmt.Sprintf("data(%s): %s", e.Entity, e.Message)
}

func (e *DataError) Unwrap() error { return e.Err }

func NewDataError(entity, message string, err error) *DataError {
	return &DataError{Entity: entity, Message: message, Err: err}
}

// PolicyError reports a misconfigured threshold or verifier policy.
type PolicyError struct {
	Policy  string
	Message string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy(%s): %s", e.Policy, e.Message)
}

func NewPolicyError(policy, message string) *PolicyError {
	return &PolicyError{Policy: policy, Message: message}
}
