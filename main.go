package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	redis "github.com/redis/go-redis/v9"

	"github.com/alimasry/typing-replay/config"
	"github.com/alimasry/typing-replay/driver"
	"github.com/alimasry/typing-replay/gitsource"
	"github.com/alimasry/typing-replay/replay"
	"github.com/alimasry/typing-replay/server"
	"github.com/alimasry/typing-replay/store"
	"github.com/alimasry/typing-replay/textdiff"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-config file] [serve]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "       %s [-config file] play -before a.txt -after b.txt\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "       %s [-config file] play -git repo -file path [-ref r] [-from n] [-to m]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "config file (default: ./typing-replay.yaml if present)")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	cmd, args := "serve", flag.Args()
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		err = serve(cfg)
	case "play":
		err = play(cfg, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func diffFunc(cfg *config.Config) server.DiffFunc {
	var opts []textdiff.Option
	if cfg.Replay.LineMode {
		opts = append(opts, textdiff.WithLineMode())
	}
	return func(before, after string) replay.Sequence {
		return textdiff.Compute(before, after, opts...)
	}
}

// openStore returns the configured document store and a function releasing it.
func openStore(ctx context.Context, cfg *config.Config) (store.DocumentStore, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.Firestore.Project)
		if err != nil {
			return nil, nil, fmt.Errorf("firestore client: %w", err)
		}
		cs := store.NewCachedStore(store.NewFirestoreStore(client, cfg.Firestore.Collection), cfg.Store.FlushInterval)
		return cs, func() {
			cs.Close()
			client.Close()
		}, nil
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		return store.NewRedisStore(rdb, cfg.Redis.Prefix), func() { rdb.Close() }, nil
	default:
		return store.NewMemoryStore(), func() {}, nil
	}
}

func serve(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := server.NewHub(st, diffFunc(cfg), driver.WithSpeed(cfg.Replay.Speed))
	if cfg.Git.Remote != "" {
		hub.SetRepos(gitsource.NewCache(cfg.Git.CacheDir, cfg.Git.Remote))
	}
	go hub.Run()
	defer hub.Close()

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: server.NewHandler(hub)}
	errc := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s (store: %s)", cfg.Server.Addr, cfg.Store.Backend)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Printf("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
