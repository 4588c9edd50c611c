package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/dmitrymomot/courier/internal/store"
	"github.com/dmitrymomot/courier/pkg/attachment"
	"github.com/dmitrymomot/courier/pkg/mailer"
)

var (
	errAttachmentsDisabled = errors.New("server: attachment references are not enabled")
	errStoreDisabled       = errors.New("server: template store is not configured")
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decode reads a single JSON object, rejecting unknown fields.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: invalid JSON body: %v", mailer.ErrInvalidArgument, err)
	}
	if dec.Decode(&struct{}{}) != io.EOF {
		return fmt.Errorf("%w: body must contain a single JSON object", mailer.ErrInvalidArgument)
	}
	return nil
}

// statusForError maps request-level errors that occur before a send.
func statusForError(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, mailer.ErrInvalidArgument), errors.Is(err, store.ErrInvalidRecord),
		errors.Is(err, attachment.ErrUnknownSource), errors.Is(err, attachment.ErrEmptyKey):
		return http.StatusBadRequest
	case errors.Is(err, attachment.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, attachment.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, attachment.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, errAttachmentsDisabled), errors.Is(err, errStoreDisabled):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

// statusForResult maps a send outcome to an HTTP status.
func statusForResult(r mailer.SendResult) int {
	if r.OK() {
		return http.StatusOK
	}
	switch r.Code() {
	case "Canceled":
		return http.StatusRequestTimeout
	case "DeadlineExceeded":
		return http.StatusGatewayTimeout
	}

	code := mailer.CodeOf(r.Cause())
	switch code {
	case mailer.CodeInvalidRecipient, mailer.CodeInvalidSender,
		mailer.CodeAttachmentTooLarge, mailer.CodeMessageTooLarge, mailer.CodeTemplateRenderFailed:
		return http.StatusUnprocessableEntity
	}
	switch code.Category() {
	case mailer.CodeTemplateNotFound:
		return http.StatusNotFound
	case mailer.CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	}
	if errors.Is(r.Cause(), mailer.ErrInvalidArgument) {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func writeResult(w http.ResponseWriter, r mailer.SendResult) {
	status := statusForResult(r)
	if status == http.StatusTooManyRequests {
		if ra, ok := mailer.RetryAfterOf(r.Cause()); ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(ra.Seconds()))))
		}
	}
	writeJSON(w, status, r)
}
