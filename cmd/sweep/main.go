package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskdesk.org/internal/obs"
	"taskdesk.org/internal/store/pg"
	"taskdesk.org/internal/sweep"
)

func main() {
	log.SetFlags(0)
	var (
		dsn      = flag.String("dsn", os.Getenv("TASKDESK_PG_DSN"), "PostgreSQL DSN")
		once     = flag.Bool("once", false, "Run a single sweep and exit")
		interval = flag.Duration("interval", 5*time.Minute, "Time between sweeps")
		dedup    = flag.Bool("dedup", false, "Skip tasks already journaled since their due date")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or TASKDESK_PG_DSN")
	}

	obs.Init()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	sweeper := sweep.New(store, store,
		sweep.WithInterval(*interval),
		sweep.WithDedup(*dedup),
	)

	if *once {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		logged, err := sweeper.Run(ctx)
		if err != nil {
			log.Fatalf("sweep: %v", err)
		}
		log.Printf("sweep complete, %d overdue task(s) journaled", logged)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		cancel()
	}()

	log.Printf("sweeping every %s", *interval)
	sweeper.Start(ctx)
	log.Println("Stopped")
}
