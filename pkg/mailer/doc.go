// Package mailer sends templated email on behalf of many tenants through a
// single provider account.
//
// Templates are registered per tenant and template type in a Registry. A
// Service looks a template up, renders its subject and body against a model,
// composes a Message with tenant defaults and per-call overrides, and hands it
// to a Deliverer. Every outcome is reported as a SendResult; the Service never
// returns errors.
//
// # Rendering
//
// Placeholders have the form {{Name}} or {{Name:spec}}. Names are matched
// case-insensitively against the exported fields of a struct or the keys of
// a map. Unknown names are left in the output unchanged. Numbers accept
// specs such as N2, F1, P0, D5 or any fmt verb; times accept named layouts
// (date, datetime, kitchen) or a Go layout.
//
//	tpl := mailer.HTMLTemplate("Welcome {{UserName}}", "<p>Balance: {{Balance:N2}}</p>")
//	subject, body := mailer.RenderTemplate(tpl, mailer.Map{"UserName": "Ann", "Balance": 1234.5})
//	// subject: "Welcome Ann", body: "<p>Balance: 1,234.50</p>"
//
// # Delivery
//
// Client wraps a provider Transport. It connects lazily, retries 503 and 504
// responses with exponential backoff, turns 429 responses into rate-limit
// errors with a retry-after hint and drops the cached transport after a 401
// so the next send re-authenticates.
//
//	client := mailer.NewClient(gmail.NewConnector(cfg), mailer.WithName("gmail"))
//	svc := mailer.NewService(registry, client,
//		mailer.WithDefaults(mailer.Defaults{SenderEmail: "noreply@example.com"}),
//		mailer.WithLogger(log),
//	)
//
//	result := svc.SendTemplate(ctx, "acme", "Welcome", []string{"ann@example.com"}, model, mailer.HighPriority())
//	if !result.OK() {
//		log.Warn("send failed", "code", result.Code(), "error", result.Error())
//	}
//
// # Errors
//
// Failures are *Error values with a numeric Code grouped in bands: template
// (1000), authentication (2000), rate limit (3000), send (4000) and
// configuration (5000). errors.Is matches a specific sentinel such as
// ErrQuotaExceeded or the head of its band such as ErrRateLimit.
package mailer
