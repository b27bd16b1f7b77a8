package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/UnironicHeyMoon/HMSE/internal/domain"
	"github.com/UnironicHeyMoon/HMSE/internal/ledger"
)

// PlatformFeed is the slice of the platform API the ingest loop needs.
type PlatformFeed interface {
	Notifications(ctx context.Context, after int64) ([]domain.PlatformEvent, error)
	SendMessage(ctx context.Context, username, body string) error
	ReplyToComment(ctx context.Context, commentID int64, body string) error
}

// Ingestor drains the platform notification feed and turns each event into a
// deposit or a command reply. The feed cursor advances past every fetched
// event up front, so a poisoned event is reported and skipped rather than
// reprocessed forever.
type Ingestor struct {
	store   domain.Store
	handler *Handler
	feed    PlatformFeed
	log     *slog.Logger
}

func NewIngestor(store domain.Store, handler *Handler, feed PlatformFeed) *Ingestor {
	return &Ingestor{
		store:   store,
		handler: handler,
		feed:    feed,
		log:     slog.Default().With("module", "ingest"),
	}
}

// Run fetches everything newer than the stored cursor and processes it. Each
// event is handled in isolation so one failure doesn't stall the rest.
func (i *Ingestor) Run(ctx context.Context) error {
	cursor, err := i.store.IngestCursor()
	if err != nil {
		return err
	}

	events, err := i.feed.Notifications(ctx, cursor)
	if err != nil {
		return fmt.Errorf("fetch notifications: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	latest := cursor
	for _, ev := range events {
		if ev.ID > latest {
			latest = ev.ID
		}
	}
	err = i.store.Unit(func(tx domain.Store) error {
		return tx.SetIngestCursor(latest)
	})
	if err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}

	i.log.Info("processing feed", slog.Int("events", len(events)), slog.Int64("cursor", latest))
	for _, ev := range events {
		if err := i.process(ctx, ev); err != nil {
			i.log.Error("event failed",
				slog.Int64("id", ev.ID),
				slog.String("type", ev.Type),
				slog.String("user", ev.User.Name),
				slog.Any("error", err))
		}
	}
	return nil
}

func (i *Ingestor) process(ctx context.Context, ev domain.PlatformEvent) error {
	switch ev.Type {
	case domain.EventTransfer:
		err := i.store.Unit(func(tx domain.Store) error {
			if err := tx.UpsertUser(ev.User); err != nil {
				return err
			}
			return ledger.New(tx).Deposit(ev.User, ev.Amount)
		})
		if err != nil {
			return err
		}
		receipt := fmt.Sprintf("Received your transfer of %d. Your deposit is ready to trade.", ev.Amount)
		return i.feed.SendMessage(ctx, ev.User.Name, receipt)

	case domain.EventDirectMessage:
		if err := i.upsert(ev.User); err != nil {
			return err
		}
		reply := i.handler.Handle(ctx, ev.User, ev.Message)
		return i.feed.SendMessage(ctx, ev.User.Name, reply)

	case domain.EventCommentMention, domain.EventCommentReply:
		if err := i.upsert(ev.User); err != nil {
			return err
		}
		reply := i.handler.Handle(ctx, ev.User, ev.Message)
		return i.feed.ReplyToComment(ctx, ev.ID, reply)

	case domain.EventPostMention:
		return i.feed.ReplyToComment(ctx, ev.ID, "You rang?")

	case domain.EventFollow:
		quip := fmt.Sprintf("*If it isn't %s. Don't expect any special favors.*", ev.User.Name)
		return i.feed.SendMessage(ctx, ev.User.Name, quip)

	case domain.EventUnfollow:
		return i.feed.SendMessage(ctx, ev.User.Name, "*Well, fuck you too, I guess.*")

	default:
		i.log.Debug("skipping event", slog.Int64("id", ev.ID), slog.String("type", ev.Type))
		return nil
	}
}

func (i *Ingestor) upsert(user domain.User) error {
	return i.store.Unit(func(tx domain.Store) error {
		return tx.UpsertUser(user)
	})
}
