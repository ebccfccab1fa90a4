package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// JSONRPCVersion is the JSON-RPC version tag carried by every envelope.
	JSONRPCVersion = "2.0"
)

// Envelope is the shared frame of every wire message.
type Envelope struct {
	JSONRPC string `json:"jsonrpc"`
}

// Request is a JSON-RPC request envelope. The ID must be unique among the
// session's outstanding requests.
type Request struct {
	Envelope
	ID     interface{}     `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// NewRequest creates a request envelope, marshaling params if present.
func NewRequest(id interface{}, method string, params interface{}) (*Request, error) {
	paramsJSON, err := marshalField(params, "params")
	if err != nil {
		return nil, err
	}
	return &Request{
		Envelope: Envelope{JSONRPC: JSONRPCVersion},
		ID:       id,
		Method:   method,
		Params:   paramsJSON,
	}, nil
}

// Response is a JSON-RPC response envelope. Exactly one of Result or Error
// is populated.
type Response struct {
	Envelope
	ID     interface{}     `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// NewResponse creates a success response for the given request ID.
func NewResponse(id interface{}, result interface{}) (*Response, error) {
	resultJSON, err := marshalField(result, "result")
	if err != nil {
		return nil, err
	}
	return &Response{
		Envelope: Envelope{JSONRPC: JSONRPCVersion},
		ID:       id,
		Result:   resultJSON,
	}, nil
}

// NewErrorResponse creates an error response for the given request ID.
func NewErrorResponse(id interface{}, code int, message string, data interface{}) (*Response, error) {
	var dataJSON interface{}
	if data != nil {
		dataBytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal error data: %w", err)
		}
		dataJSON = json.RawMessage(dataBytes)
	}
	return &Response{
		Envelope: Envelope{JSONRPC: JSONRPCVersion},
		ID:       id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    dataJSON,
		},
	}, nil
}

// Notification is a JSON-RPC notification envelope. It never carries an ID
// and never receives a response.
type Notification struct {
	Envelope
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// NewNotification creates a notification envelope.
func NewNotification(method string, params interface{}) (*Notification, error) {
	paramsJSON, err := marshalField(params, "params")
	if err != nil {
		return nil, err
	}
	return &Notification{
		Envelope: Envelope{JSONRPC: JSONRPCVersion},
		Method:   method,
		Params:   paramsJSON,
	}, nil
}

// Error is the error object of a JSON-RPC response.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

func marshalField(v interface{}, name string) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	return data, nil
}

// MessageKind classifies a parsed envelope.
type MessageKind int

const (
	KindInvalid MessageKind = iota
	KindRequest
	KindNotification
	KindResponse
)

// Validation errors returned by ParseMessage.
var (
	ErrMalformedJSON  = errors.New("malformed JSON payload")
	ErrBadVersionTag  = errors.New("missing or unsupported jsonrpc version tag")
	ErrMissingMethod  = errors.New("request or notification is missing a method")
	ErrAmbiguousFrame = errors.New("message is neither request, notification nor response")
)

// Message is the result of parsing one wire envelope. Exactly one of
// Request, Notification or Response is non-nil, matching Kind.
type Message struct {
	Kind         MessageKind
	Request      *Request
	Notification *Notification
	Response     *Response
}

// ParseMessage decodes and classifies a single envelope. A frame with an id
// and a method is a request; a method without an id is a notification; an id
// with result or error is a response. Anything else is rejected.
func ParseMessage(data []byte) (*Message, error) {
	var probe struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      interface{}     `json:"id"`
		Method  string          `json:"method"`
		Result  json.RawMessage `json:"result"`
		Error   *Error          `json:"error"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, ErrMalformedJSON
	}
	if probe.JSONRPC != JSONRPCVersion {
		return nil, ErrBadVersionTag
	}

	switch {
	case probe.ID != nil && probe.Method != "":
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, ErrMalformedJSON
		}
		return &Message{Kind: KindRequest, Request: &req}, nil

	case probe.ID == nil && probe.Method != "":
		var notif Notification
		if err := json.Unmarshal(data, &notif); err != nil {
			return nil, ErrMalformedJSON
		}
		return &Message{Kind: KindNotification, Notification: &notif}, nil

	case probe.ID != nil && (probe.Result != nil || probe.Error != nil):
		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, ErrMalformedJSON
		}
		return &Message{Kind: KindResponse, Response: &resp}, nil

	case probe.Method == "":
		return nil, ErrMissingMethod

	default:
		return nil, ErrAmbiguousFrame
	}
}

// IsRequest reports whether a raw payload looks like a request envelope.
func IsRequest(data []byte) bool {
	msg, err := ParseMessage(data)
	return err == nil && msg.Kind == KindRequest
}

// IsNotification reports whether a raw payload looks like a notification envelope.
func IsNotification(data []byte) bool {
	msg, err := ParseMessage(data)
	return err == nil && msg.Kind == KindNotification
}

// IsResponse reports whether a raw payload looks like a response envelope.
func IsResponse(data []byte) bool {
	msg, err := ParseMessage(data)
	return err == nil && msg.Kind == KindResponse
}
