package gmail

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"

	"github.com/dmitrymomot/courier/pkg/mailer"
	"github.com/dmitrymomot/courier/pkg/mailer/mime"
)

const (
	sendPath    = "/gmail/v1/users/me/messages/send"
	profilePath = "/gmail/v1/users/me/profile"
)

var (
	quotaReasons = []string{"dailyLimitExceeded", "quotaExceeded", "dailyLimitExceededUnreg"}
	rateReasons  = []string{"rateLimitExceeded", "userRateLimitExceeded"}
)

// Transport calls the Gmail REST API with an already authorised HTTP client.
// It implements mailer.Transport and mailer.Verifier.
type Transport struct {
	client     *resty.Client
	encoder    *mime.Encoder
	now        func() time.Time
	cfg        Config
	authMethod AuthMethod
}

// NewTransport creates a transport sending through hc. The client must add
// the Authorization header itself, as an oauth2 client does.
func NewTransport(hc *http.Client, cfg Config) *Transport {
	cfg = cfg.withDefaults()
	client := resty.NewWithClient(hc).
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.ApplicationName)

	return &Transport{
		client:     client,
		encoder:    mime.NewEncoder(mime.WithKeepBcc()),
		now:        time.Now,
		cfg:        cfg,
		authMethod: cfg.AuthMethod,
	}
}

type sendRequest struct {
	Raw string `json:"raw"`
}

type sendResponse struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

type profileResponse struct {
	EmailAddress  string `json:"emailAddress"`
	MessagesTotal int64  `json:"messagesTotal"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Status  string `json:"status"`
		Errors  []struct {
			Reason  string `json:"reason"`
			Domain  string `json:"domain"`
			Message string `json:"message"`
		} `json:"errors"`
		Code int `json:"code"`
	} `json:"error"`
}

// Deliver sends msg and returns the Gmail message id. An empty sender is
// filled from the configured sender.
func (t *Transport) Deliver(ctx context.Context, msg *mailer.Message) (string, error) {
	if msg == nil {
		return "", mailer.ErrInvalidArgument
	}
	out := msg.Clone()
	if out.From == "" {
		out.From = t.cfg.SenderEmail
	}
	if out.FromName == "" {
		out.FromName = t.cfg.SenderName
	}

	raw, err := t.encoder.Encode(out)
	if err != nil {
		return "", err
	}

	var result sendResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(sendRequest{Raw: mime.EncodeBase64URL(raw)}).
		SetResult(&result).
		SetError(&apiError{}).
		Post(sendPath)
	if err != nil {
		return "", t.requestError(ctx, err)
	}
	if resp.IsError() {
		return "", t.responseError(resp)
	}
	return result.ID, nil
}

// Verify checks the credentials by reading the mailbox profile.
func (t *Transport) Verify(ctx context.Context) error {
	_, err := t.Profile(ctx)
	return err
}

// Profile returns the address of the authenticated mailbox.
func (t *Transport) Profile(ctx context.Context) (string, error) {
	var result profileResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetResult(&result).
		SetError(&apiError{}).
		Get(profilePath)
	if err != nil {
		return "", t.requestError(ctx, err)
	}
	if resp.IsError() {
		return "", t.responseError(resp)
	}
	return result.EmailAddress, nil
}

func (t *Transport) requestError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		if t.authMethod == AuthOAuth {
			return mailer.NewTokenExpired(err)
		}
		return mailer.NewAuthenticationFailed("Failed to authenticate with Gmail API.", string(t.authMethod), err)
	}
	return err
}

func (t *Transport) responseError(resp *resty.Response) error {
	perr := &mailer.ProviderError{
		StatusCode: resp.StatusCode(),
		Message:    http.StatusText(resp.StatusCode()),
		RetryAfter: mailer.ParseRetryAfter(resp.Header().Get("Retry-After"), t.now()),
	}
	if body, ok := resp.Error().(*apiError); ok && body != nil {
		if body.Error.Message != "" {
			perr.Message = body.Error.Message
		}
		if len(body.Error.Errors) > 0 {
			perr.Reason = body.Error.Errors[0].Reason
		}
	}

	switch {
	case isQuotaError(perr):
		q := mailer.NewQuotaExceeded("", perr.RetryAfter)
		q.Err = perr
		return q
	case perr.StatusCode == http.StatusForbidden && slices.Contains(rateReasons, perr.Reason):
		perr.StatusCode = http.StatusTooManyRequests
	}
	return perr
}

func isQuotaError(perr *mailer.ProviderError) bool {
	switch perr.StatusCode {
	case http.StatusForbidden, http.StatusTooManyRequests:
		return slices.Contains(quotaReasons, perr.Reason)
	}
	return false
}
