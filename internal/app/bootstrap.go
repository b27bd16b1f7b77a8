package app

import (
	"log/slog"

	"github.com/UnironicHeyMoon/HMSE/internal/domain"
	"github.com/UnironicHeyMoon/HMSE/internal/infra"
	"github.com/UnironicHeyMoon/HMSE/internal/infra/platform"
	"github.com/UnironicHeyMoon/HMSE/internal/infra/storage"
	"github.com/UnironicHeyMoon/HMSE/internal/notify"
	"github.com/UnironicHeyMoon/HMSE/internal/orderbook"
	"github.com/UnironicHeyMoon/HMSE/internal/service"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config   *infra.Config
	Storage  *storage.Storage
	Book     *orderbook.Book
	Queue    *notify.Queue
	Platform *platform.Client
	Handler  *service.Handler
	Ticker   *service.TickProcessor
	Ingestor *service.Ingestor
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// House is the exchange's own account, which holds IPO floats.
func (b *Bootstrap) House() domain.User {
	return domain.User{ID: 0, Name: b.Config.Platform.HouseUser}
}

// Initialize loads config, swaps in the rotating logger, opens the database
// and wires every service. offline skips the platform client so tick and ipo
// runs work without a token.
func (b *Bootstrap) Initialize(configPath string, offline bool) error {
	slog.Info("🚀 Bootstrapping HMSE...")

	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized", slog.String("path", cfg.Database.Path))

	book, err := orderbook.Load(store)
	if err != nil {
		return err
	}
	b.Book = book
	slog.Info("✅ Order book loaded", slog.Int("open_orders", len(book.Orders())))

	b.Queue = notify.NewQueue()

	if offline {
		b.Handler = service.NewHandler(store, book, nil, cfg.Exchange.DefaultOrderTTL)
		b.Ticker = service.NewTickProcessor(store, book, b.Queue, nil)
		return nil
	}

	b.Platform = platform.NewClient(cfg)
	b.Handler = service.NewHandler(store, book, b.Platform, cfg.Exchange.DefaultOrderTTL)
	b.Ticker = service.NewTickProcessor(store, book, b.Queue, b.Platform)
	b.Ingestor = service.NewIngestor(store, b.Handler, b.Platform)
	slog.Info("✅ Platform client ready", slog.String("base_url", cfg.Platform.BaseURL))

	return nil
}
