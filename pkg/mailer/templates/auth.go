package templates

import (
	"fmt"
	"time"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

// Built-in authentication template types.
const (
	EmailConfirmation = "EmailConfirmation"
	PasswordReset     = "PasswordReset"
	TwoFactorEnabled  = "TwoFactorEnabled"
	NewLoginDetected  = "NewLoginDetected"
	AccountLocked     = "AccountLocked"
	PasswordChanged   = "PasswordChanged"
)

const (
	dangerColor  = "#e74c3c"
	successColor = "#27ae60"
)

// AuthTemplates returns the built-in account lifecycle templates keyed by type.
// All of them expect {{UserName}} and {{AppName}}; see each body for the rest.
func AuthTemplates() map[string]*mailer.Template {
	year := time.Now().UTC().Year()
	footer := SimpleFooter("{{AppName}}", year, "")
	build := func(primary, header, body string) string {
		l := Layout{PrimaryColor: primary, Footer: footer}
		l.Header = l.TextHeader(header)
		out, err := l.Wrap(body)
		if err != nil {
			panic(err)
		}
		return out
	}

	return map[string]*mailer.Template{
		EmailConfirmation: mailer.NewTemplate(
			"Confirm your email address",
			build(DefaultPrimaryColor, "Confirm Your Email", fmt.Sprintf(`
<p>Hello {{UserName}},</p>
<p>Thank you for registering with {{AppName}}. Please confirm your email address by clicking the button below:</p>
%s
<p>Or copy and paste this link into your browser:</p>
<p style="word-break: break-all; color: #666666; font-size: 14px;">{{ConfirmationLink}}</p>
<p>This link will expire in {{ExpiryHours}} hours.</p>
<p>If you didn't create an account with us, you can safely ignore this email.</p>
`, Button("Confirm Email", "{{ConfirmationLink}}", DefaultPrimaryColor))),
		),

		PasswordReset: mailer.NewTemplate(
			"Reset your password",
			build(dangerColor, "Password Reset Request", fmt.Sprintf(`
<p>Hello {{UserName}},</p>
<p>We received a request to reset your password for your {{AppName}} account.</p>
%s
<p>Or copy and paste this link into your browser:</p>
<p style="word-break: break-all; color: #666666; font-size: 14px;">{{ResetLink}}</p>
<p><strong>This link will expire in {{ExpiryMinutes}} minutes.</strong></p>
%s
<p style="color: #e74c3c; font-size: 14px;">If you didn't request a password reset, please ignore this email or contact support if you're concerned about your account security.</p>
`, Button("Reset Password", "{{ResetLink}}", dangerColor), Divider())),
			mailer.WithDefaultPriority(mailer.PriorityHigh),
		),

		TwoFactorEnabled: mailer.NewTemplate(
			"Two-factor authentication enabled",
			build(successColor, "2FA Enabled ✓", fmt.Sprintf(`
<p>Hello {{UserName}},</p>
<p style="color: #27ae60; font-weight: bold;">✓ Two-factor authentication has been successfully enabled on your account.</p>
<p>This was enabled on {{EnabledAt}}.</p>
<p>Your account is now more secure! You'll need to enter a verification code from your authenticator app each time you sign in.</p>
%s
<p style="font-size: 14px; color: #666666;">If you didn't make this change, please contact our support team immediately.</p>
`, Divider())),
		),

		NewLoginDetected: mailer.NewTemplate(
			"New sign-in to your account",
			build(DefaultPrimaryColor, "New Sign-In Detected", fmt.Sprintf(`
<p>Hello {{UserName}},</p>
<p>We detected a new sign-in to your {{AppName}} account.</p>
<table role="presentation" style="width: 100%%; background-color: #f8f9fa; border-radius: 8px; padding: 20px; margin: 20px 0;">
    <tr><td style="padding: 8px 0;"><strong>Time:</strong></td><td>{{LoginTime}}</td></tr>
    <tr><td style="padding: 8px 0;"><strong>IP Address:</strong></td><td>{{IpAddress}}</td></tr>
    <tr><td style="padding: 8px 0;"><strong>Location:</strong></td><td>{{Location}}</td></tr>
    <tr><td style="padding: 8px 0;"><strong>Device:</strong></td><td>{{Device}}</td></tr>
</table>
<p>If this was you, you can ignore this email.</p>
<p style="color: #e74c3c;">If you don't recognize this activity, please secure your account immediately:</p>
%s
`, Button("Report Suspicious Activity", "{{ReportLink}}", dangerColor))),
		),

		AccountLocked: mailer.NewTemplate(
			"Your account has been locked",
			build(dangerColor, "Account Locked", fmt.Sprintf(`
<p>Hello {{UserName}},</p>
<p style="color: #e74c3c;">Your {{AppName}} account has been temporarily locked for security reasons.</p>
<p><strong>Reason:</strong> {{LockReason}}</p>
<p>To unlock your account, please click the button below:</p>
%s
<p style="font-size: 14px; color: #666666;">If you didn't trigger this lock or need assistance, please contact our support team.</p>
`, Button("Unlock Account", "{{UnlockLink}}", DefaultPrimaryColor))),
			mailer.WithDefaultPriority(mailer.PriorityUrgent),
		),

		PasswordChanged: mailer.NewTemplate(
			"Your password was changed",
			build(DefaultPrimaryColor, "Password Changed", fmt.Sprintf(`
<p>Hello {{UserName}},</p>
<p>Your {{AppName}} account password was successfully changed on {{ChangedAt}}.</p>
<p>If you made this change, you can safely ignore this email.</p>
%s
<p style="color: #e74c3c;">If you didn't change your password, your account may have been compromised. Please take action immediately:</p>
%s
`, Divider(), Button("Report & Secure Account", "{{ReportLink}}", dangerColor))),
			mailer.WithDefaultPriority(mailer.PriorityHigh),
		),
	}
}

// RegisterAuth registers the built-in authentication templates for tenant.
func RegisterAuth(reg *mailer.Registry, tenant string) error {
	for typ, tpl := range AuthTemplates() {
		if err := reg.Register(tenant, typ, tpl); err != nil {
			return err
		}
	}
	return nil
}
