package mailer

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Code classifies a delivery failure. Codes are grouped in bands of a
// thousand; the band head (e.g. SendFailed) is the category of every code
// inside the band.
type Code int

const (
	CodeUnknown Code = 0

	CodeTemplateNotFound     Code = 1000
	CodeTemplateRenderFailed Code = 1001

	CodeAuthenticationFailed  Code = 2000
	CodeInvalidCredentials    Code = 2001
	CodeInvalidServiceAccount Code = 2002

	CodeRateLimitExceeded Code = 3000
	CodeQuotaExceeded     Code = 3001

	CodeSendFailed         Code = 4000
	CodeInvalidRecipient   Code = 4001
	CodeInvalidSender      Code = 4002
	CodeAttachmentTooLarge Code = 4003
	CodeMessageTooLarge    Code = 4004

	CodeInvalidConfiguration    Code = 5000
	CodeCredentialsFileNotFound Code = 5001
)

var codeNames = map[Code]string{
	CodeUnknown:                 "Unknown",
	CodeTemplateNotFound:        "TemplateNotFound",
	CodeTemplateRenderFailed:    "TemplateRenderFailed",
	CodeAuthenticationFailed:    "AuthenticationFailed",
	CodeInvalidCredentials:      "InvalidCredentials",
	CodeInvalidServiceAccount:   "InvalidServiceAccount",
	CodeRateLimitExceeded:       "RateLimitExceeded",
	CodeQuotaExceeded:           "QuotaExceeded",
	CodeSendFailed:              "SendFailed",
	CodeInvalidRecipient:        "InvalidRecipient",
	CodeInvalidSender:           "InvalidSender",
	CodeAttachmentTooLarge:      "AttachmentTooLarge",
	CodeMessageTooLarge:         "MessageTooLarge",
	CodeInvalidConfiguration:    "InvalidConfiguration",
	CodeCredentialsFileNotFound: "CredentialsFileNotFound",
}

// String returns the stable name of the code. Unknown values render as
// "Code(<n>)".
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "Code(" + strconv.Itoa(int(c)) + ")"
}

// Category returns the head of the band the code belongs to.
func (c Code) Category() Code {
	if c <= 0 {
		return CodeUnknown
	}
	return c - c%1000
}

// IsAuth reports whether the code describes a credential problem.
// A missing credentials file is configured like a configuration error but is
// raised while acquiring credentials, so it counts as one too.
func (c Code) IsAuth() bool {
	return c.Category() == CodeAuthenticationFailed || c == CodeCredentialsFileNotFound
}

// Error is the typed error returned by every layer of the package.
type Error struct {
	Err          error         // Underlying cause, optional
	Message      string        // Human-readable description
	Tenant       string        // Tenant the failure relates to, if known
	TemplateType string        // Template type the failure relates to, if known
	AuthMethod   string        // Credential flow that failed (oauth, service_account)
	RetryAfter   time.Duration // Suggested wait for rate limit errors
	Code         Code
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches targets of the same code, targets naming the band of this
// error's code, and the authentication sentinel for every auth-category code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	switch {
	case t.Code == e.Code:
		return true
	case t.Code != CodeUnknown && t.Code == e.Code.Category():
		return true
	case t.Code == CodeAuthenticationFailed:
		return e.Code.IsAuth()
	}
	return false
}

// Sentinels for errors.Is checks. They carry no context; use the
// constructors below to build returned errors.
var (
	ErrTemplateNotFound        = &Error{Code: CodeTemplateNotFound}
	ErrTemplateRender          = &Error{Code: CodeTemplateRenderFailed}
	ErrAuthentication          = &Error{Code: CodeAuthenticationFailed}
	ErrInvalidCredentials      = &Error{Code: CodeInvalidCredentials}
	ErrInvalidServiceAccount   = &Error{Code: CodeInvalidServiceAccount}
	ErrRateLimit               = &Error{Code: CodeRateLimitExceeded}
	ErrQuotaExceeded           = &Error{Code: CodeQuotaExceeded}
	ErrSendFailed              = &Error{Code: CodeSendFailed}
	ErrInvalidRecipient        = &Error{Code: CodeInvalidRecipient}
	ErrInvalidSender           = &Error{Code: CodeInvalidSender}
	ErrAttachmentTooLarge      = &Error{Code: CodeAttachmentTooLarge}
	ErrMessageTooLarge         = &Error{Code: CodeMessageTooLarge}
	ErrInvalidConfiguration    = &Error{Code: CodeInvalidConfiguration}
	ErrCredentialsFileNotFound = &Error{Code: CodeCredentialsFileNotFound}
)

// ErrInvalidArgument is returned by the registry for blank keys or nil
// templates. It is an input error and not part of the delivery taxonomy.
var ErrInvalidArgument = errors.New("mailer: invalid argument")

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// RetryAfterOf returns the suggested retry delay carried by err, if any.
func RetryAfterOf(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.RetryAfter > 0 {
		return e.RetryAfter, true
	}
	return 0, false
}

func NewTemplateNotFound(tenant, templateType string) *Error {
	return &Error{
		Code:         CodeTemplateNotFound,
		Message:      fmt.Sprintf("Template '%s' not found for project '%s'.", templateType, tenant),
		Tenant:       tenant,
		TemplateType: templateType,
	}
}

func NewTemplateRenderFailed(tenant, templateType string, cause error) *Error {
	return &Error{
		Code:         CodeTemplateRenderFailed,
		Message:      fmt.Sprintf("Failed to render template '%s' for project '%s'.", templateType, tenant),
		Tenant:       tenant,
		TemplateType: templateType,
		Err:          cause,
	}
}

func NewAuthenticationFailed(message, authMethod string, cause error) *Error {
	return &Error{Code: CodeAuthenticationFailed, Message: message, AuthMethod: authMethod, Err: cause}
}

func NewInvalidCredentials(details string, cause error) *Error {
	return &Error{Code: CodeInvalidCredentials, Message: "Invalid credentials: " + details, Err: cause}
}

func NewInvalidServiceAccount(details string, cause error) *Error {
	return &Error{
		Code:       CodeInvalidServiceAccount,
		Message:    "Invalid service account: " + details,
		AuthMethod: "service_account",
		Err:        cause,
	}
}

func NewTokenExpired(cause error) *Error {
	return &Error{
		Code:       CodeAuthenticationFailed,
		Message:    "OAuth token has expired and refresh failed.",
		AuthMethod: "oauth",
		Err:        cause,
	}
}

func NewCredentialsFileNotFound(path string) *Error {
	return &Error{Code: CodeCredentialsFileNotFound, Message: "Credentials file not found: " + path}
}

// NewRateLimit builds a per-second rate limit error.
func NewRateLimit(retryAfter time.Duration) *Error {
	return &Error{
		Code:       CodeRateLimitExceeded,
		Message:    "Rate limit exceeded. Too many requests per second.",
		RetryAfter: retryAfter,
	}
}

func NewQuotaExceeded(message string, retryAfter time.Duration) *Error {
	if message == "" {
		message = "Daily sending quota exceeded."
	}
	return &Error{Code: CodeQuotaExceeded, Message: message, RetryAfter: retryAfter}
}

func NewSendFailed(message string, cause error) *Error {
	return &Error{Code: CodeSendFailed, Message: message, Err: cause}
}

func NewInvalidRecipient(address string) *Error {
	return &Error{Code: CodeInvalidRecipient, Message: "Invalid recipient email address: " + address}
}

func NewInvalidSender(address string) *Error {
	return &Error{Code: CodeInvalidSender, Message: "Invalid or unauthorized sender email address: " + address}
}

func NewAttachmentTooLarge(filename string, size, limit int64) *Error {
	return &Error{
		Code:    CodeAttachmentTooLarge,
		Message: fmt.Sprintf("Attachment '%s' (%d bytes) exceeds maximum size of %d bytes.", filename, size, limit),
	}
}

func NewMessageTooLarge(size, limit int64) *Error {
	return &Error{
		Code:    CodeMessageTooLarge,
		Message: fmt.Sprintf("Message (%d bytes) exceeds maximum size of %d bytes.", size, limit),
	}
}

func NewInvalidConfiguration(message string) *Error {
	return &Error{Code: CodeInvalidConfiguration, Message: message}
}

// ProviderError is returned by transports when the provider answered with a
// non-success status. The client classifies it by StatusCode.
type ProviderError struct {
	Err        error         // Underlying transport error, optional
	Message    string        // Provider supplied message
	Reason     string        // Provider specific reason, e.g. "rateLimitExceeded"
	RetryAfter time.Duration // Parsed Retry-After, zero when absent
	StatusCode int
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "provider error"
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ParseRetryAfter parses a Retry-After header value given either in seconds
// or as an HTTP date. It returns zero for empty or invalid values.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := time.Parse(time.RFC1123, value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
