package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"time"
)

// SendResult is the outcome of a send. It is either a success with a
// provider message id or a failure with a reason, never both.
type SendResult struct {
	sentAt    time.Time
	cause     error
	messageID string
	message   string
	code      string
	ok        bool
}

// Succeeded builds a successful result.
func Succeeded(messageID string, sentAt time.Time) SendResult {
	return SendResult{ok: true, messageID: messageID, sentAt: sentAt}
}

// Failed builds a failed result. An empty code is reported as "Unknown".
func Failed(message, code string, cause error) SendResult {
	if code == "" {
		code = CodeUnknown.String()
	}
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return SendResult{message: message, code: code, cause: cause}
}

// FailedFrom builds a failed result from err. Taxonomy errors keep their
// message and code name, context errors report "Canceled" or
// "DeadlineExceeded", and any other error reports its type name.
func FailedFrom(err error) SendResult {
	if err == nil {
		return Failed("", "", nil)
	}

	var typed *Error
	if errors.As(err, &typed) {
		msg := typed.Message
		if msg == "" {
			msg = typed.Error()
		}
		return Failed(msg, typed.Code.String(), err)
	}

	switch {
	case errors.Is(err, context.Canceled):
		return Failed("The send operation was canceled.", "Canceled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return Failed("The send operation timed out.", "DeadlineExceeded", err)
	}
	return Failed(err.Error(), typeName(err), err)
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return name
	}
	return t.String()
}

// OK reports whether the send succeeded.
func (r SendResult) OK() bool { return r.ok }

// MessageID returns the provider message id of a successful send.
func (r SendResult) MessageID() string { return r.messageID }

// SentAt returns when a successful send completed.
func (r SendResult) SentAt() time.Time { return r.sentAt }

// Error returns the failure message, empty on success.
func (r SendResult) Error() string { return r.message }

// Code returns the machine-readable failure code, empty on success.
func (r SendResult) Code() string { return r.code }

// Cause returns the error that caused the failure, if any.
func (r SendResult) Cause() error { return r.cause }

// Err returns nil for a successful result and a *ResultError otherwise.
func (r SendResult) Err() error {
	if r.ok {
		return nil
	}
	return &ResultError{Result: r}
}

// EnsureSuccess returns an error for a failed result.
func (r SendResult) EnsureSuccess() error {
	return r.Err()
}

// ResultError wraps a failed SendResult as an error.
type ResultError struct {
	Result SendResult
}

func (e *ResultError) Error() string {
	return "email send failed [" + e.Result.code + "]: " + e.Result.message
}

func (e *ResultError) Unwrap() error {
	return e.Result.cause
}

type sendResultJSON struct {
	SentAt    *time.Time `json:"sent_at,omitempty"`
	MessageID string     `json:"message_id,omitempty"`
	Error     string     `json:"error,omitempty"`
	Code      string     `json:"code,omitempty"`
	OK        bool       `json:"ok"`
}

func (r SendResult) MarshalJSON() ([]byte, error) {
	out := sendResultJSON{
		OK:        r.ok,
		MessageID: r.messageID,
		Error:     r.message,
		Code:      r.code,
	}
	if r.ok {
		out.SentAt = &r.sentAt
	}
	return json.Marshal(out)
}

func (r *SendResult) UnmarshalJSON(data []byte) error {
	var in sendResultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.OK {
		var at time.Time
		if in.SentAt != nil {
			at = *in.SentAt
		}
		*r = Succeeded(in.MessageID, at)
		return nil
	}
	*r = Failed(in.Error, in.Code, nil)
	return nil
}
