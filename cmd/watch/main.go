// watch logs in to a workhub API, keeps a realtime connection open and
// prints notification and workspace activity as it arrives.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"workhub/internal/client"
	"workhub/pkg/logger"
)

func main() {
	serverURL := flag.String("server", "http://localhost:1337", "API base URL")
	socketURL := flag.String("socket", "", "Realtime URL (default derived from -server)")
	email := flag.String("email", "", "Account email")
	statePath := flag.String("state", "workhub-watch.db", "Path to local state file; empty disables persistence")
	query := flag.String("search", "", "Run a search once connected")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	log := logger.New(*logLevel, "console").Sugar()
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := client.NewAPI(*serverURL, &http.Client{Timeout: 10 * time.Second})
	opts := []client.Option{}
	if *socketURL != "" {
		opts = append(opts, client.WithSocketURL(*socketURL))
	}
	store := client.New(api, log, opts...)

	if *statePath != "" {
		persister, err := client.OpenPersister(*statePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open state file: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			if err := persister.Close(); err != nil {
				log.Errorw("failed to close state file", "error", err)
			}
		}()

		saved, err := persister.Load()
		switch {
		case err == nil:
			store.Rehydrate(saved)
		case errors.Is(err, client.ErrNothingPersisted):
		default:
			log.Warnw("ignoring unreadable state file", "error", err)
		}
		defer store.AutoPersist(persister)()
	}

	if !store.Snapshot().Auth.Authenticated() {
		if err := logIn(ctx, store, *email); err != nil {
			fmt.Fprintf(os.Stderr, "Login failed: %v\n", err)
			os.Exit(1)
		}
	}

	if err := store.Refresh(ctx); err != nil {
		if !errors.Is(err, client.ErrUnauthorized) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		// Saved session expired.
		store.Logout()
		if err := logIn(ctx, store, *email); err != nil {
			fmt.Fprintf(os.Stderr, "Login failed: %v\n", err)
			os.Exit(1)
		}
		if err := store.Refresh(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	st := store.Snapshot()
	fmt.Printf("Signed in as %s <%s>\n", st.Auth.User.Name, st.Auth.User.Email)
	for _, ws := range st.Workspaces {
		fmt.Printf("  workspace %s  %s (%s)\n", ws.ID, ws.Name, ws.Role)
	}
	fmt.Printf("Unread notifications: %d\n", st.UnreadCount)

	unread := st.UnreadCount
	connected := false
	searched := false
	defer store.Subscribe(func(st client.State) {
		if st.UnreadCount != unread {
			unread = st.UnreadCount
			fmt.Printf("Unread notifications: %d\n", unread)
		}
		if st.Websocket.Connected != connected {
			connected = st.Websocket.Connected
			if connected {
				fmt.Printf("Connected, rooms: %v\n", st.Websocket.Rooms)
			} else {
				fmt.Println("Disconnected")
			}
		}
		if *query != "" && !searched && !st.Search.Loading && st.Search.Query == *query &&
			(len(st.Search.Suggestions.Projects) > 0 || len(st.Search.Suggestions.Tasks) > 0) {
			searched = true
			for _, p := range st.Search.Suggestions.Projects {
				fmt.Printf("  project %s  %s\n", p.ID, p.Name)
			}
			for _, t := range st.Search.Suggestions.Tasks {
				fmt.Printf("  task %s  %s\n", t.ID, t.Title)
			}
		}
	})()
	defer store.SubscribeEvents(func(ev client.Event) {
		switch e := ev.(type) {
		case client.NotificationCreated:
			fmt.Printf("[notification] %s\n", e.Notification.Message)
		case client.EntityEvent:
			fmt.Printf("[%s] %s\n", e.FrameType(), string(e.Object))
		case client.MemberEvent:
			fmt.Printf("[%s] workspace %s user %s\n", e.FrameType(), e.Change.WorkspaceID, e.Change.UserID)
		}
	})()

	if err := store.InitSocket(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer store.DisconnectSocket()

	if *query != "" {
		store.SetQuery(*query)
	}

	<-ctx.Done()
	fmt.Println("Bye")
}

func logIn(ctx context.Context, store *client.Store, email string) error {
	if email == "" {
		return errors.New("-email is required")
	}
	password := os.Getenv("WORKHUB_PASSWORD")
	if password == "" {
		return errors.New("WORKHUB_PASSWORD is not set")
	}
	return store.LogIn(ctx, email, password)
}
