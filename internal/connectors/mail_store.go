package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"

	"grocermap/internal"
)

// MailIndex records fetched mails. *storage.DB satisfies it.
type MailIndex interface {
	UpsertMail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.MailRow, error)
	GetMailByProviderMessageID(provider, messageID string) (*internal.MailRow, error)
}

// MailArchive keeps raw messages on disk, content-addressed by sha256, and
// indexes them with status "fetched".
type MailArchive struct {
	index  MailIndex
	rawDir string
}

func NewMailArchive(index MailIndex, rawDir string) *MailArchive {
	return &MailArchive{index: index, rawDir: rawDir}
}

// Store archives msg. The returned flag is false when the mail was already indexed.
func (a *MailArchive) Store(msg internal.FetchedMailMessage) (internal.MailRow, bool, error) {
	if msg.MessageID == "" {
		return internal.MailRow{}, false, errors.New("mail without message id")
	}
	existing, err := a.index.GetMailByProviderMessageID(msg.Provider, msg.MessageID)
	if err != nil {
		return internal.MailRow{}, false, err
	}

	sum := sha256.Sum256(msg.Raw)
	hash := hex.EncodeToString(sum[:])
	path, err := a.writeRaw(hash, msg.Raw)
	if err != nil {
		return internal.MailRow{}, false, err
	}

	row, err := a.index.UpsertMail(msg.Provider, msg.MessageID, msg.Subject, msg.From, msg.ReceivedAt, hash, path, "fetched")
	if err != nil {
		return internal.MailRow{}, false, err
	}
	return row, existing == nil, nil
}

// RawPath is where a message with the given hash lives.
func (a *MailArchive) RawPath(hash string) string {
	return filepath.Join(a.rawDir, hash[:2], hash+".eml")
}

func (a *MailArchive) writeRaw(hash string, raw []byte) (string, error) {
	path := a.RawPath(hash)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return "", err
	}
	return path, os.Rename(tmp, path)
}
