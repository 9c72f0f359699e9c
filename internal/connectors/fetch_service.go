package connectors

import (
	"context"
	"log"
)

type FetchService struct {
	connector MailConnector
	archive   *MailArchive
}

type FetchResult struct {
	Fetched int
	Stored  int
	New     int
}

func NewFetchService(index MailIndex, rawMailDir string, connector MailConnector) *FetchService {
	return &FetchService{
		connector: connector,
		archive:   NewMailArchive(index, rawMailDir),
	}
}

// FetchAndStore pulls up to max messages from label and archives them.
// Messages that fail to archive are logged and skipped.
func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	res := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		_, created, err := s.archive.Store(msg)
		if err != nil {
			log.Printf("mail: store failed provider=%s id=%s err=%v", msg.Provider, msg.MessageID, err)
			continue
		}
		res.Stored++
		if created {
			res.New++
		}
	}
	return res, nil
}
