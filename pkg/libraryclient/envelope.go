package libraryclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"librarydesk/pkg/domain"
)

// ErrUnrecognizedShape means a response was neither a bare value nor an envelope.
var ErrUnrecognizedShape = errors.New("libraryclient: unrecognized response shape")

// List is a decoded list response. Pagination is nil for bare arrays.
type List[T any] struct {
	Items      []T
	Pagination *domain.Pagination
}

type envelope struct {
	Success    *bool              `json:"success"`
	Message    string             `json:"message"`
	Data       json.RawMessage    `json:"data"`
	Pagination *domain.Pagination `json:"pagination"`
}

// isEnvelope reports whether an object carries the success or data keys.
func isEnvelope(body []byte) (envelope, bool, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return envelope{}, false, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
	}
	_, hasSuccess := probe["success"]
	_, hasData := probe["data"]
	if !hasSuccess && !hasData {
		return envelope{}, false, nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}, false, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
	}
	if env.Success != nil && !*env.Success {
		return env, true, &APIError{Status: 200, Message: env.Message}
	}
	return env, true, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// DecodeList accepts a bare JSON array or an envelope whose data is an array and
// returns the same typed result for both. data: null is an empty list.
func DecodeList[T any](body []byte) (List[T], error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return List[T]{}, fmt.Errorf("%w: empty body", ErrUnrecognizedShape)
	}
	switch trimmed[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return List[T]{}, fmt.Errorf("decode list: %w", err)
		}
		return List[T]{Items: items}, nil
	case '{':
		env, ok, err := isEnvelope(trimmed)
		if err != nil {
			return List[T]{}, err
		}
		if !ok {
			return List[T]{}, fmt.Errorf("%w: object without success or data", ErrUnrecognizedShape)
		}
		if isNull(env.Data) {
			return List[T]{Items: []T{}, Pagination: env.Pagination}, nil
		}
		if bytes.TrimSpace(env.Data)[0] != '[' {
			return List[T]{}, fmt.Errorf("%w: data is not an array", ErrUnrecognizedShape)
		}
		var items []T
		if err := json.Unmarshal(env.Data, &items); err != nil {
			return List[T]{}, fmt.Errorf("decode list: %w", err)
		}
		return List[T]{Items: items, Pagination: env.Pagination}, nil
	default:
		return List[T]{}, fmt.Errorf("%w: starts with %q", ErrUnrecognizedShape, trimmed[0])
	}
}

// DecodeOne accepts a bare JSON object or an envelope whose data is an object.
func DecodeOne[T any](body []byte) (T, error) {
	var out T
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return out, fmt.Errorf("%w: expected an object", ErrUnrecognizedShape)
	}
	env, ok, err := isEnvelope(trimmed)
	if err != nil {
		return out, err
	}
	raw := json.RawMessage(trimmed)
	if ok {
		if isNull(env.Data) || bytes.TrimSpace(env.Data)[0] != '{' {
			return out, fmt.Errorf("%w: data is not an object", ErrUnrecognizedShape)
		}
		raw = env.Data
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode object: %w", err)
	}
	return out, nil
}

// decodeAck checks the success flag of a mutation response. Empty bodies are accepted.
func decodeAck(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	_, _, err := isEnvelope(trimmed)
	return err
}
