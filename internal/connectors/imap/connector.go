package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"grocermap/internal"
	"grocermap/internal/config"
)

const provider = "imap"

type Connector struct {
	addr     string
	host     string
	secure   bool
	user     string
	password string
	markSeen bool
}

func NewConnector(cfg config.Config) (*Connector, error) {
	for _, req := range []struct{ name, value string }{
		{"IMAP_HOST", cfg.IMAPHost},
		{"IMAP_USER", cfg.IMAPUser},
		{"IMAP_PASSWORD", cfg.IMAPPassword},
	} {
		if err := cfg.Require(req.name, req.value); err != nil {
			return nil, err
		}
	}
	return &Connector{
		addr:     fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort),
		host:     cfg.IMAPHost,
		secure:   cfg.IMAPSecure,
		user:     cfg.IMAPUser,
		password: cfg.IMAPPassword,
		markSeen: cfg.IMAPMarkSeen,
	}, nil
}

func (c *Connector) dial() (*imapclient.Client, error) {
	var (
		client *imapclient.Client
		err    error
	)
	if c.secure {
		client, err = imapclient.DialTLS(c.addr, &tls.Config{ServerName: c.host})
	} else {
		client, err = imapclient.Dial(c.addr)
	}
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", c.addr, err)
	}
	if err := client.Login(c.user, c.password); err != nil {
		_ = client.Logout()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	return client, nil
}

// FetchInbox downloads the newest max unseen messages in mailbox label.
func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	client, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer client.Logout()

	if _, err := client.Select(label, false); err != nil {
		return nil, fmt.Errorf("imap select %s: %w", label, err)
	}
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := client.Search(criteria)
	if err != nil {
		return nil, err
	}
	ids = newest(ids, max)
	if len(ids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)
	section := &imap.BodySectionName{Peek: !c.markSeen}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() { done <- client.Fetch(seqset, items, messages) }()

	out := make([]internal.FetchedMailMessage, 0, len(ids))
	for msg := range messages {
		if msg == nil || ctx.Err() != nil {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		out = append(out, toFetched(msg, raw, time.Now()))
	}
	if err := <-done; err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// newest keeps the last max sequence numbers; max <= 0 keeps all.
func newest(ids []uint32, max int) []uint32 {
	if max > 0 && len(ids) > max {
		return ids[len(ids)-max:]
	}
	return ids
}

func toFetched(msg *imap.Message, raw []byte, now time.Time) internal.FetchedMailMessage {
	out := internal.FetchedMailMessage{
		Provider:   provider,
		MessageID:  fmt.Sprintf("imap-%d", msg.Uid),
		ReceivedAt: now.UTC().Format(time.RFC3339),
		Raw:        raw,
	}
	if env := msg.Envelope; env != nil {
		if env.MessageId != "" {
			out.MessageID = env.MessageId
		}
		out.Subject = env.Subject
		out.From = formatAddresses(env.From)
	}
	if !msg.InternalDate.IsZero() {
		out.ReceivedAt = msg.InternalDate.UTC().Format(time.RFC3339)
	}
	return out
}

func formatAddresses(addrs []*imap.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == nil {
			continue
		}
		email := strings.Trim(a.MailboxName+"@"+a.HostName, "@")
		if a.PersonalName != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", a.PersonalName, email))
		} else {
			parts = append(parts, email)
		}
	}
	return strings.Join(parts, ", ")
}
