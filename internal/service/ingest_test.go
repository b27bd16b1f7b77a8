package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/UnironicHeyMoon/HMSE/internal/domain"
	"github.com/UnironicHeyMoon/HMSE/internal/infra/storage"
	"github.com/UnironicHeyMoon/HMSE/internal/orderbook"
)

type fakeFeed struct {
	events   []domain.PlatformEvent
	fetchErr error

	messages map[string][]string // username -> bodies
	replies  map[int64][]string  // comment id -> bodies
}

func newFakeFeed(events ...domain.PlatformEvent) *fakeFeed {
	return &fakeFeed{
		events:   events,
		messages: make(map[string][]string),
		replies:  make(map[int64][]string),
	}
}

func (f *fakeFeed) Notifications(_ context.Context, after int64) ([]domain.PlatformEvent, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var fresh []domain.PlatformEvent
	for _, ev := range f.events {
		if ev.ID > after {
			fresh = append(fresh, ev)
		}
	}
	return fresh, nil
}

func (f *fakeFeed) SendMessage(_ context.Context, username, body string) error {
	f.messages[username] = append(f.messages[username], body)
	return nil
}

func (f *fakeFeed) ReplyToComment(_ context.Context, commentID int64, body string) error {
	f.replies[commentID] = append(f.replies[commentID], body)
	return nil
}

func setupIngestor(t *testing.T, feed *fakeFeed) (*Ingestor, domain.Store) {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	book, err := orderbook.Load(s)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return NewIngestor(s, NewHandler(s, book, nil, 1), feed), s
}

func TestIngestDepositsTransfers(t *testing.T) {
	feed := newFakeFeed(domain.PlatformEvent{
		ID: 3, Type: domain.EventTransfer, User: buyer, Amount: 500,
	})
	ing, store := setupIngestor(t, feed)

	if err := ing.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	balance, _ := store.Balance(buyer)
	if balance != 500 {
		t.Errorf("expected 500 deposited, got %d", balance)
	}
	if len(feed.messages["alice"]) != 1 || !strings.Contains(feed.messages["alice"][0], "500") {
		t.Errorf("expected a receipt, got %v", feed.messages["alice"])
	}
	cursor, _ := store.IngestCursor()
	if cursor != 3 {
		t.Errorf("cursor should advance to 3, got %d", cursor)
	}
}

func TestIngestAnswersDirectMessages(t *testing.T) {
	feed := newFakeFeed(domain.PlatformEvent{
		ID: 1, Type: domain.EventDirectMessage, User: buyer, Message: "@HMSE BALANCE",
	})
	ing, _ := setupIngestor(t, feed)

	if err := ing.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got := feed.messages["alice"]
	if len(got) != 1 || !strings.Contains(got[0], "coins in your account") {
		t.Errorf("expected a balance reply, got %v", got)
	}
}

func TestIngestAnswersMentionsInPlace(t *testing.T) {
	feed := newFakeFeed(domain.PlatformEvent{
		ID: 7, Type: domain.EventCommentMention, User: buyer, Message: "@HMSE TICKER",
	})
	ing, _ := setupIngestor(t, feed)

	if err := ing.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(feed.replies[7]) != 1 {
		t.Errorf("expected a comment reply under 7, got %v", feed.replies)
	}
}

func TestIngestQuipsAtSocialEvents(t *testing.T) {
	feed := newFakeFeed(
		domain.PlatformEvent{ID: 1, Type: domain.EventFollow, User: buyer},
		domain.PlatformEvent{ID: 2, Type: domain.EventUnfollow, User: seller},
		domain.PlatformEvent{ID: 3, Type: domain.EventPostMention, User: buyer},
	)
	ing, _ := setupIngestor(t, feed)

	if err := ing.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got := feed.messages["alice"]
	if len(got) != 1 || !strings.Contains(got[0], "If it isn't alice") {
		t.Errorf("expected a follow quip, got %v", got)
	}
	got = feed.messages["bob"]
	if len(got) != 1 || !strings.Contains(got[0], "fuck you too") {
		t.Errorf("expected an unfollow quip, got %v", got)
	}
	if replies := feed.replies[3]; len(replies) != 1 || replies[0] != "You rang?" {
		t.Errorf("expected a reply to the mention, got %v", feed.replies)
	}
}

func TestIngestSkipsProcessedAndUnknownEvents(t *testing.T) {
	feed := newFakeFeed(
		domain.PlatformEvent{ID: 1, Type: domain.EventTransfer, User: buyer, Amount: 100},
		domain.PlatformEvent{ID: 2, Type: "post_pin", User: seller},
	)
	ing, store := setupIngestor(t, feed)

	if err := ing.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := ing.Run(context.Background()); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	// The transfer must not be deposited twice.
	balance, _ := store.Balance(buyer)
	if balance != 100 {
		t.Errorf("expected one deposit of 100, got %d", balance)
	}
	cursor, _ := store.IngestCursor()
	if cursor != 2 {
		t.Errorf("cursor should cover the unknown event too, got %d", cursor)
	}
}

func TestIngestPropagatesFetchErrors(t *testing.T) {
	feed := newFakeFeed()
	feed.fetchErr = errors.New("feed down")
	ing, store := setupIngestor(t, feed)

	if err := ing.Run(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
	cursor, _ := store.IngestCursor()
	if cursor != 0 {
		t.Errorf("cursor must not move on fetch failure, got %d", cursor)
	}
}
