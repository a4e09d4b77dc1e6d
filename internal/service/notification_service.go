package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/notification"
	"github.com/spec-kit/ticket-workflow/internal/repository"
)

// NotificationService renders and sends client-facing ticket email.
type NotificationService struct {
	directory repository.DirectoryRepository
	sender    notification.Sender
	logger    *zap.Logger
	portalURL string
}

// NotificationDependencies bundles the collaborators of NotificationService.
type NotificationDependencies struct {
	Directory repository.DirectoryRepository
	Sender    notification.Sender
	Logger    *zap.Logger
	// PortalURL is the public base URL tickets are linked from.
	PortalURL string
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		directory: deps.Directory,
		sender:    deps.Sender,
		logger:    logger,
		portalURL: strings.TrimRight(deps.PortalURL, "/"),
	}
}

// NotifyClient emails the ticket's client. Any error is a notification failure;
// callers decide whether it is fatal.
func (n *NotificationService) NotifyClient(ctx context.Context, ticket domain.Ticket, notice notification.Notice) error {
	client, err := n.directory.GetClient(ctx, ticket.ClientID)
	if err != nil {
		return fmt.Errorf("load client %s: %w", ticket.ClientID, err)
	}
	if strings.TrimSpace(client.Email) == "" {
		return errors.New("client has no email address")
	}

	email, err := notification.Render(notice, notification.TicketMessage{
		ClientName:  client.Name,
		ClientEmail: client.Email,
		ShortCode:   ticket.ShortCode,
		Title:       ticket.Title,
		PortalURL:   n.ticketURL(ticket.ID),
	})
	if err != nil {
		return fmt.Errorf("render %s: %w", notice, err)
	}
	if err := n.sender.Send(ctx, email); err != nil {
		return fmt.Errorf("send %s: %w", notice, err)
	}

	n.logger.Debug("client notified",
		zap.String("ticket_id", ticket.ID),
		zap.String("notice", string(notice)))
	return nil
}

func (n *NotificationService) ticketURL(ticketID string) string {
	if n.portalURL == "" {
		return ""
	}
	return n.portalURL + "/tickets/" + ticketID
}
