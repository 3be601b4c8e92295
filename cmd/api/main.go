package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskdesk.org/internal/audit"
	"taskdesk.org/internal/auth"
	"taskdesk.org/internal/httpapi"
	"taskdesk.org/internal/ids"
	"taskdesk.org/internal/obs"
	"taskdesk.org/internal/store/memory"
	"taskdesk.org/internal/store/pg"
	"taskdesk.org/internal/sweep"
	"taskdesk.org/internal/task"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

// backend is the single store wired into every service; both
// implementations satisfy all three persistence contracts.
type backend interface {
	auth.Store
	task.Store
	audit.Store
}

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		store   backend
		pgStore *pg.Store
	)
	if dsn := os.Getenv("TASKDESK_PG_DSN"); dsn != "" {
		var err error
		pgStore, err = pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pgStore
	} else {
		// Dev mode: everything in memory, gone on restart.
		mem := memory.New()
		if err := bootstrapMemory(mem); err != nil {
			log.Fatalf("bootstrap memory store: %v", err)
		}
		store = mem
		log.Println("TASKDESK_PG_DSN not set, using in-memory store")
	}

	rbac := auth.NewService(store)
	tasks := task.NewService(store, store)

	probe := httpapi.ReadyProbe{}
	if pgStore != nil {
		probe.DB = pgStore.DB()
	}
	api := httpapi.New(rbac, tasks, store, probe, version)

	addr := os.Getenv("TASKDESK_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional in-process overdue sweeper; run cmd/sweep instead when the
	// API is scaled beyond one replica.
	if raw := os.Getenv("TASKDESK_SWEEP_INTERVAL"); raw != "" {
		interval, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("parse TASKDESK_SWEEP_INTERVAL: %v", err)
		}
		opts := []sweep.Option{sweep.WithInterval(interval)}
		if os.Getenv("TASKDESK_SWEEP_DEDUP") == "true" {
			opts = append(opts, sweep.WithDedup(true))
		}
		sweeper := sweep.New(store, store, opts...)
		go sweeper.Start(ctx)
		log.Printf("overdue sweeper running every %s", interval)
	}

	log.Printf("Starting taskdesk-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}

// bootstrapMemory seeds a Manager role holding every permission and one
// admin account so a fresh dev instance is usable immediately.
func bootstrapMemory(mem *memory.Store) error {
	ctx := context.Background()
	now := time.Now().UTC()

	perms, err := mem.ListPermissions(ctx)
	if err != nil {
		return err
	}
	permIDs := make([]string, 0, len(perms))
	for _, p := range perms {
		permIDs = append(permIDs, p.ID)
	}

	role := &auth.Role{ID: ids.New(), Name: "Manager", CreatedAt: now, UpdatedAt: now}
	entry := audit.NewEntry("", audit.ActionCreateRole,
		fmt.Sprintf("Created a role: %s", role.Name), now)
	if err := mem.CreateRole(ctx, role, permIDs, entry); err != nil {
		return err
	}

	password := os.Getenv("TASKDESK_ADMIN_PASSWORD")
	if password == "" {
		password = "changeme"
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	admin := &auth.User{
		ID:           ids.New(),
		Name:         "Administrator",
		Email:        "admin@taskdesk.local",
		PasswordHash: hash,
		Status:       auth.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	entry = audit.NewEntry("", audit.ActionCreateUser,
		fmt.Sprintf("Created a new user: %s (%s)", admin.Name, admin.Email), now)
	return mem.CreateUser(ctx, admin, []string{role.ID}, entry)
}
