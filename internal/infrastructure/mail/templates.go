package mail

import (
	"fmt"
	"net/url"
	"strings"

	"workhub/internal/core/ports"
)

// Rendered is a composed message body ready for a transport.
type Rendered struct {
	Subject string
	Link    string
	Text    string
	HTML    string
}

type template struct {
	subject string
	path    string
	intro   string
	action  string
}

var templates = map[ports.MailKind]template{
	ports.MailVerifyEmail: {
		subject: "Verify your email address",
		path:    "/verify-email",
		intro:   "Welcome to Workhub! Confirm your email address to finish signing up.",
		action:  "Verify email",
	},
	ports.MailResetPassword: {
		subject: "Reset your password",
		path:    "/reset-password",
		intro:   "Someone asked to reset the password for your account. If it was not you, ignore this message.",
		action:  "Reset password",
	},
	ports.MailWorkspaceInvite: {
		subject: "You have been invited to a workspace",
		path:    "/accept-invite",
		intro:   "You have been invited to join a workspace on Workhub.",
		action:  "Accept invite",
	},
	ports.MailEmailChange: {
		subject: "Confirm your new email address",
		path:    "/confirm-email-change",
		intro:   "Confirm this address to make it the new email for your account.",
		action:  "Confirm email",
	},
}

// Render builds the subject, link and bodies for m. Links point at the
// frontend, which posts the token back to the API.
func Render(baseURL string, m ports.Mail) (Rendered, error) {
	tpl, ok := templates[m.Kind]
	if !ok {
		return Rendered{}, fmt.Errorf("unknown mail kind %q", m.Kind)
	}
	if m.Token == "" {
		return Rendered{}, fmt.Errorf("%s mail without token", m.Kind)
	}

	link := strings.TrimRight(baseURL, "/") + tpl.path + "?token=" + url.QueryEscape(m.Token)
	text := fmt.Sprintf("%s\n\n%s: %s\n\nThis link expires in 24 hours.\n", tpl.intro, tpl.action, link)
	html := fmt.Sprintf(
		`<p>%s</p><p><a href="%s">%s</a></p><p>This link expires in 24 hours.</p>`,
		tpl.intro, link, tpl.action,
	)

	return Rendered{Subject: tpl.subject, Link: link, Text: text, HTML: html}, nil
}
