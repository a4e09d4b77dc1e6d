package notification

import (
	"bytes"
	"fmt"
	"html/template"
)

// Notice selects which client message is rendered.
type Notice string

const (
	NoticeTicketCreated  Notice = "ticket_created"
	NoticeTicketClosed   Notice = "ticket_closed"
	NoticeTicketResolved Notice = "ticket_resolved"
	NoticeResumeReady    Notice = "resume_ready"
)

// TicketMessage carries the fields interpolated into client email.
type TicketMessage struct {
	ClientName  string
	ClientEmail string
	ShortCode   string
	Title       string
	PortalURL   string
}

var subjects = map[Notice]string{
	NoticeTicketCreated:  "Ticket %s created",
	NoticeTicketClosed:   "Response on ticket %s",
	NoticeTicketResolved: "Ticket %s resolved",
	NoticeResumeReady:    "Your updated resume is ready for review (%s)",
}

var lead = map[Notice]string{
	NoticeTicketCreated:  "Your ticket has been created and is now in our system for tracking and resolution.",
	NoticeTicketClosed:   "Our team has responded to your ticket. Please review the update and confirm whether your issue is resolved.",
	NoticeTicketResolved: "Your ticket has been resolved by our management team.",
	NoticeResumeReady:    "Our resume team has prepared an updated resume. Please review it and approve or request changes.",
}

var ticketTemplate = template.Must(template.New("ticket").Parse(`<html>
  <body style="font-family: Arial, sans-serif; line-height:1.6; color:#333;">
    <h2 style="color:#1E90FF;">Hi {{.Message.ClientName}} ({{.Message.ClientEmail}}),</h2>
    <p>{{.Lead}}</p>
    <p>Ticket <strong>{{.Message.ShortCode}}</strong>: {{.Message.Title}}</p>
    {{if .Message.PortalURL}}<p>You can manage your ticket here: <a href="{{.Message.PortalURL}}" target="_blank">{{.Message.PortalURL}}</a></p>{{end}}
    <p>Best regards,<br/><strong>Support Team</strong></p>
    <hr style="border:none;border-top:1px solid #eee;" />
    <p style="font-size:12px;color:#777;">This is an automated message. Please do not reply to this email.</p>
  </body>
</html>
`))

// Render builds the email for notice addressed to the client in msg.
func Render(notice Notice, msg TicketMessage) (Email, error) {
	subject, ok := subjects[notice]
	if !ok {
		subject = "Update on ticket %s"
	}

	var buf bytes.Buffer
	if err := ticketTemplate.Execute(&buf, struct {
		Lead    string
		Message TicketMessage
	}{Lead: lead[notice], Message: msg}); err != nil {
		return Email{}, err
	}

	return Email{
		To:       msg.ClientEmail,
		Subject:  fmt.Sprintf(subject, msg.ShortCode),
		HTMLBody: buf.String(),
	}, nil
}
