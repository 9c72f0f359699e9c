package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"grocermap/internal"
	"grocermap/internal/config"
)

const provider = "gmail"

type Connector struct {
	service *gmail.Service
	user    string
}

func NewConnector(cfg config.Config) (*Connector, error) {
	for _, req := range []struct{ name, value string }{
		{"GMAIL_CLIENT_ID", cfg.GmailClientID},
		{"GMAIL_CLIENT_SECRET", cfg.GmailClientSecret},
		{"GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken},
	} {
		if err := cfg.Require(req.name, req.value); err != nil {
			return nil, err
		}
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}
	ctx := context.Background()
	tokens := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(tokens))
	if err != nil {
		return nil, err
	}
	return &Connector{service: svc, user: "me"}, nil
}

// FetchInbox lists the newest max messages under label and downloads each in
// raw form. Headers come from the raw message itself.
func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	list, err := c.service.Users.Messages.List(c.user).LabelIds(label).MaxResults(int64(max)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail list %s: %w", label, err)
	}

	out := make([]internal.FetchedMailMessage, 0, len(list.Messages))
	for _, ref := range list.Messages {
		if ref.Id == "" {
			continue
		}
		msg, err := c.service.Users.Messages.Get(c.user, ref.Id).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("gmail get %s: %w", ref.Id, err)
		}
		if msg.Raw == "" {
			continue
		}
		raw, err := decodeBase64URL(msg.Raw)
		if err != nil {
			return nil, err
		}
		out = append(out, messageFromRaw(ref.Id, raw, time.Now()))
	}
	return out, nil
}

// messageFromRaw fills a fetched message from raw RFC 822 bytes. Unparseable
// headers fall back to the Gmail id and now.
func messageFromRaw(gmailID string, raw []byte, now time.Time) internal.FetchedMailMessage {
	out := internal.FetchedMailMessage{
		Provider:   provider,
		MessageID:  gmailID,
		ReceivedAt: now.UTC().Format(time.RFC3339),
		Raw:        raw,
	}
	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return out
	}
	dec := new(mime.WordDecoder)
	decode := func(v string) string {
		if d, err := dec.DecodeHeader(v); err == nil {
			return d
		}
		return v
	}
	if id := strings.TrimSpace(parsed.Header.Get("Message-ID")); id != "" {
		out.MessageID = id
	}
	out.Subject = decode(parsed.Header.Get("Subject"))
	out.From = decode(parsed.Header.Get("From"))
	if date, err := parsed.Header.Date(); err == nil {
		out.ReceivedAt = date.UTC().Format(time.RFC3339)
	}
	return out
}

func decodeBase64URL(input string) ([]byte, error) {
	if decoded, err := base64.RawURLEncoding.DecodeString(input); err == nil {
		return decoded, nil
	}
	decoded, err := base64.URLEncoding.DecodeString(input)
	if err != nil {
		return nil, fmt.Errorf("decode gmail raw payload: %w", err)
	}
	return decoded, nil
}
