package connectors

import (
	"context"
	"fmt"
	"strings"

	"grocermap/internal"
	"grocermap/internal/config"
	gmailconnector "grocermap/internal/connectors/gmail"
	imapconnector "grocermap/internal/connectors/imap"
)

// MailConnector pulls raw order mails from a mailbox.
type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}

// Providers lists the mail providers New understands.
var Providers = []string{"gmail", "imap"}

// New builds the connector for provider from cfg.
func New(provider string, cfg config.Config) (MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	}
	return nil, fmt.Errorf("unsupported mail provider %q (want one of %s)", provider, strings.Join(Providers, ", "))
}
