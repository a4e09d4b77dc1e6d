package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/spec-kit/ticket-workflow/internal/config"
)

const graphScope = "https://graph.microsoft.com/.default"

// GraphSender sends mail through Microsoft Graph on behalf of a shared mailbox.
type GraphSender struct {
	client  *http.Client
	baseURL string
	sender  string
}

// NewGraphSender authenticates with the client-credentials grant against the
// tenant's token endpoint.
func NewGraphSender(ctx context.Context, cfg config.NotificationConfig) *GraphSender {
	tokenURL := fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", url.PathEscape(cfg.TenantID))
	return newGraphSender(ctx, cfg, tokenURL)
}

func newGraphSender(ctx context.Context, cfg config.NotificationConfig, tokenURL string) *GraphSender {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{graphScope},
	}
	return &GraphSender{
		client:  cc.Client(ctx),
		baseURL: strings.TrimRight(cfg.GraphBaseURL, "/"),
		sender:  cfg.SenderEmail,
	}
}

type graphMessage struct {
	Message struct {
		Subject string `json:"subject"`
		Body    struct {
			ContentType string `json:"contentType"`
			Content     string `json:"content"`
		} `json:"body"`
		ToRecipients []graphRecipient `json:"toRecipients"`
	} `json:"message"`
}

type graphRecipient struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

func (s *GraphSender) Send(ctx context.Context, email Email) error {
	if err := email.Validate(); err != nil {
		return err
	}

	var msg graphMessage
	msg.Message.Subject = email.Subject
	msg.Message.Body.ContentType = "HTML"
	msg.Message.Body.Content = email.HTMLBody
	var rcpt graphRecipient
	rcpt.EmailAddress.Address = email.To
	msg.Message.ToRecipients = []graphRecipient{rcpt}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/users/%s/sendMail", s.baseURL, url.PathEscape(s.sender))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("send mail: graph returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
