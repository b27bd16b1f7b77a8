package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/UnironicHeyMoon/HMSE/internal/api"
	"github.com/UnironicHeyMoon/HMSE/internal/app"
	"github.com/UnironicHeyMoon/HMSE/internal/service"
)

const usage = `usage: hmse [-config path] <command>

commands:
  ingest                     drain the platform feed and answer commands
  tick                       settle one tick of the exchange
  ipo <name> <count> <price> list a new asset under the house account
  serve                      run ingest + tick on a schedule with a live ticker stream
`

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	offline := flag.Bool("offline", false, "skip the platform client (tick and ipo only)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath, *offline); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch flag.Arg(0) {
	case "ingest":
		err = runIngest(ctx, bootstrap)
	case "tick":
		err = bootstrap.Ticker.Process(ctx)
	case "ipo":
		err = runIPO(bootstrap, flag.Args()[1:])
	case "serve":
		err = runServe(ctx, bootstrap)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("❌ Command failed", slog.String("command", flag.Arg(0)), slog.Any("error", err))
		os.Exit(1)
	}
}

func runIngest(ctx context.Context, b *app.Bootstrap) error {
	if b.Ingestor == nil {
		return fmt.Errorf("ingest needs the platform client; drop the -offline flag")
	}
	return b.Ingestor.Run(ctx)
}

func runIPO(b *app.Bootstrap, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("ipo needs <name> <count> <price>")
	}
	count, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("%q is not a share count", args[1])
	}
	price, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("%q is not a price", args[2])
	}

	asset, err := service.IPO(b.Storage, b.Book, b.House(), args[0], count, price)
	if err != nil {
		return err
	}
	fmt.Printf("Listed %s: %d shares at %d each.\n", asset.Name, count, price)
	return nil
}

// runServe drives the exchange on a schedule: the feed is drained every
// minute, a tick settles every tick_interval_min minutes, and each tick's
// prices stream out over /ws.
func runServe(ctx context.Context, b *app.Bootstrap) error {
	if b.Ingestor == nil {
		return fmt.Errorf("serve needs the platform client; drop the -offline flag")
	}

	hub := api.NewHub()
	go hub.Run()
	b.Ticker.AttachBroadcaster(hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	server := &http.Server{Addr: b.Config.Serve.ListenAddr, Handler: mux}
	go func() {
		slog.Info("✅ Ticker stream listening", slog.String("addr", b.Config.Serve.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Ticker stream failed", slog.Any("error", err))
		}
	}()
	defer server.Close()

	ingestEvery := time.NewTicker(time.Minute)
	defer ingestEvery.Stop()
	tickEvery := time.NewTicker(time.Duration(b.Config.Serve.TickIntervalMin) * time.Minute)
	defer tickEvery.Stop()

	slog.InfoContext(ctx, "✨ HMSE fully operational. Press Ctrl+C to exit.")
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "👋 Shutting down gracefully...")
			return nil
		case <-ingestEvery.C:
			if err := b.Ingestor.Run(ctx); err != nil {
				slog.Error("Ingest pass failed", slog.Any("error", err))
			}
		case <-tickEvery.C:
			if err := b.Ticker.Process(ctx); err != nil {
				slog.Error("Tick failed", slog.Any("error", err))
			}
		}
	}
}
