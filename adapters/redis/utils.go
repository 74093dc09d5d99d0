package redis

import (
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrPointerType = errors.New("pointer type is not allowed")
)

// DefaultParseToMessage serializes an event struct into the stream
// message shape: msgpack bytes, base64-encoded under a single "data"
// field.
func DefaultParseToMessage[T any](data T) (map[string]any, error) {
	if reflect.TypeOf(data).Kind() == reflect.Ptr {
		return nil, ErrPointerType
	}

	bytes, err := msgpack.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("msgpack marshal error: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(bytes)

	return map[string]any{
		"data": encoded,
	}, nil
}

// DefaultParseFromMessage is the inverse of DefaultParseToMessage. It is
// exported for consumers of the stream and for tests.
func DefaultParseFromMessage[T any](message map[string]any) (T, error) {
	var result T

	if reflect.TypeOf(result).Kind() == reflect.Ptr {
		return result, ErrPointerType
	}

	if len(message) == 0 {
		return result, nil
	}

	dataStr, ok := message["data"].(string)
	if !ok {
		return result, fmt.Errorf("data field not found or invalid type")
	}

	bytes, err := base64.StdEncoding.DecodeString(dataStr)
	if err != nil {
		return result, fmt.Errorf("base64 decode error: %w", err)
	}

	err = msgpack.Unmarshal(bytes, &result)
	if err != nil {
		return result, fmt.Errorf("msgpack unmarshal error: %w", err)
	}

	return result, nil
}
