// Package errors provides coded errors shared by the index, search and server layers.
//
// Codes are dotted strings whose last segment is the reason ("invalid", "conflict",
// "failure", ...). Classification helpers and HTTP status mapping key off that reason.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeIndexDimensionInvalid  Code = "index.dimension.invalid"
	CodeIndexDimensionConflict Code = "index.dimension.conflict"
	CodeIndexInputInvalid      Code = "index.input.invalid"
	CodeIndexNotInitialized    Code = "index.state.not_initialized"
	CodeIndexPersistFailure    Code = "index.persist.failure"
	CodeIndexLoadFailure       Code = "index.load.failure"

	CodeVectorAcceleratorUnavailable Code = "vector.accelerator.unavailable"

	CodeEmbeddingUpstreamFailure Code = "embedding.upstream.failure"

	CodeRecommendInputInvalid Code = "recommend.input.invalid"
	CodeIngestBatchInvalid    Code = "ingest.batch.invalid"

	CodeConfigLoadReadFailure    Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat Code = "config.parse.invalid_format"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerEntityNotFound  Code = "server.entity.not_found"
	CodeServerInternalFailure Code = "server.internal.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}
	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return oops.Code(code).Wrapf(err, format, args...)
}

// CodeOf returns the code carried by err, or "" for plain errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	switch code := oopsErr.Code().(type) {
	case Code:
		return code
	case string:
		return Code(code)
	case nil:
		return ""
	default:
		return Code(fmt.Sprintf("%v", code))
	}
}

// FieldsOf returns the structured context attached to err.
func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

// IsInvalidInput reports InputRejected errors: bad dimensions, empty prompts, empty batches.
func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_format"
}

// IsPersistenceFailure reports errors raised while writing index artifacts.
func IsPersistenceFailure(err error) bool {
	return HasCode(err, CodeIndexPersistFailure)
}

// IsDependencyUnavailable reports failures of an external collaborator such as the embedder.
func IsDependencyUnavailable(err error) bool {
	code := CodeOf(err)
	if code == CodeVectorAcceleratorUnavailable {
		return true
	}
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case HasCode(err, CodeIndexNotInitialized):
		return http.StatusServiceUnavailable
	case IsDependencyUnavailable(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	joined := stderrors.Join(errs...)
	if joined == nil {
		return nil
	}
	return oops.Code(CodeServerInternalFailure).Wrap(joined)
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}
	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
