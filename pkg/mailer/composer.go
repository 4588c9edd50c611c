package mailer

import "slices"

// Compose assembles a message from rendered content.
//
// Format and priority come from tpl; a per-call priority in opts wins.
// Sender, sender name and reply-to resolve per field: opts, then defaults.
// CC, BCC and attachments from opts are appended. Headers from defaults are
// applied first and opts headers after them, so the last value per name wins.
// No address validation happens here.
func Compose(to []string, subject, body string, tpl *Template, defaults Defaults, opts *SendOptions) *Message {
	msg := &Message{
		To:       slices.Clone(to),
		Subject:  subject,
		Body:     body,
		IsHTML:   true,
		Priority: PriorityNormal,
		From:     defaults.SenderEmail,
		FromName: defaults.SenderName,
		ReplyTo:  defaults.ReplyTo,
	}
	if tpl != nil {
		msg.IsHTML = tpl.IsHTML()
		msg.Priority = tpl.Priority()
	}
	msg.Headers.Merge(defaults.Headers)

	if opts == nil {
		return msg
	}

	if opts.Priority != nil {
		msg.Priority = *opts.Priority
	}
	if opts.From != "" {
		msg.From = opts.From
	}
	if opts.FromName != "" {
		msg.FromName = opts.FromName
	}
	if opts.ReplyTo != "" {
		msg.ReplyTo = opts.ReplyTo
	}
	msg.CC = append(msg.CC, opts.CC...)
	msg.BCC = append(msg.BCC, opts.BCC...)
	msg.Attachments = append(msg.Attachments, opts.Attachments...)
	msg.Headers.Merge(opts.Headers)

	return msg
}

// applyDefaults fills the sender fields of msg that are still empty.
func applyDefaults(msg *Message, defaults Defaults) {
	if msg.From == "" {
		msg.From = defaults.SenderEmail
	}
	if msg.FromName == "" {
		msg.FromName = defaults.SenderName
	}
	if msg.ReplyTo == "" {
		msg.ReplyTo = defaults.ReplyTo
	}
}
