package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// The body only carries one SQL query, itself capped at maxQueryBytes.
const maxJSONBodyBytes int64 = 4 * maxQueryBytes

// bodyError describes why a request body was rejected. details is echoed in
// the 400 response.
type bodyError struct {
	msg     string
	details map[string]interface{}
}

func (e *bodyError) Error() string {
	return e.msg
}

// decodeJSONBody decodes exactly one JSON object into dst. Unknown fields,
// trailing data and bodies over maxJSONBodyBytes are rejected.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return classifyBodyError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return classifyBodyError(err)
		}
		return &bodyError{msg: "body must contain a single JSON object",
			details: map[string]interface{}{"reason": "trailing_data"}}
	}
	return nil
}

func classifyBodyError(err error) error {
	var tooLarge *http.MaxBytesError
	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &tooLarge):
		return &bodyError{msg: fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit),
			details: map[string]interface{}{"reason": "too_large", "limit_bytes": tooLarge.Limit}}
	case errors.As(err, &syntax):
		return &bodyError{msg: fmt.Sprintf("malformed JSON at offset %d", syntax.Offset),
			details: map[string]interface{}{"reason": "syntax", "offset": syntax.Offset}}
	case errors.As(err, &typeErr):
		return &bodyError{msg: fmt.Sprintf("field %q must be a %s", typeErr.Field, typeErr.Type),
			details: map[string]interface{}{"reason": "type", "field": typeErr.Field}}
	case errors.Is(err, io.EOF):
		return &bodyError{msg: "body is empty", details: map[string]interface{}{"reason": "empty"}}
	case errors.Is(err, io.ErrUnexpectedEOF):
		return &bodyError{msg: "malformed JSON: unexpected end of body",
			details: map[string]interface{}{"reason": "syntax"}}
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return &bodyError{msg: fmt.Sprintf("unknown field %q", field),
			details: map[string]interface{}{"reason": "unknown_field", "field": field}}
	default:
		return &bodyError{msg: err.Error()}
	}
}
