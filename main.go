package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const usageDoc = `TwitOff

Usage:
  twitoff [serve]
  twitoff fetch <handle>...
  twitoff update
  twitoff dump
  twitoff reset
  twitoff hash-token <token>
  twitoff help
Commands:
  serve         Run the web server (default).
  fetch         Add or update the given handles.
  update        Refetch every stored user.
  dump          Print all users and their tweets to STDOUT.
  reset         Delete all users and tweets.
  hash-token    Print a bcrypt hash usable as RESET_TOKEN_HASH.`

var (
	ReadTimeout     = 10 * time.Second
	WriteTimeout    = 30 * time.Second
	IdleTimeout     = 60 * time.Second
	ShutdownTimeout = 10 * time.Second
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usageDoc)
		return 0
	case "hash-token":
		if len(args) != 1 {
			fmt.Fprintln(stderr, usageDoc)
			return 2
		}
		hash, err := hashToken(args[0])
		if err != nil {
			fmt.Fprintf(stderr, "Can't hash token: %s\n", err)
			return 1
		}
		fmt.Fprintln(stdout, hash)
		return 0
	case "serve", "fetch", "update", "dump", "reset":
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n%s\n", cmd, usageDoc)
		return 2
	}

	cfg, err := LoadConfig("")
	if err != nil {
		fmt.Fprintf(stderr, "Can't load config: %s\n", err)
		return 1
	}
	log := newLogger(stderr, cfg.ServiceName, cfg.LogLevel)

	app, err := NewApp(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize application")
		return 1
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		err = app.serve(ctx)
	case "fetch":
		err = app.fetchCommand(ctx, stdout, args)
	case "update":
		err = app.updateCommand(ctx, stdout)
	case "dump":
		err = app.dumpCommand(ctx, stdout)
	case "reset":
		err = app.store.Reset(ctx)
		if err == nil {
			fmt.Fprintln(stdout, "All users and tweets deleted")
		}
	}
	if err != nil {
		log.Error().Err(err).Str("command", cmd).Msg("command failed")
		return 1
	}
	return 0
}

func (a *App) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         a.config.Addr,
		Handler:      a.setupRouter(),
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
		IdleTimeout:  IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.config.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
		a.log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (a *App) fetchCommand(ctx context.Context, out io.Writer, handles []string) error {
	if len(handles) == 0 {
		return errors.New("fetch needs at least one handle")
	}

	var errs []error
	for _, h := range handles {
		res, err := a.syncer.AddOrUpdateUser(ctx, h)
		if err != nil {
			fmt.Fprintf(out, "%s: error: %s\n", h, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(out, "%s: fetched %d, stored %d new\n", res.User.Name, res.Fetched, res.Inserted)
	}
	return errors.Join(errs...)
}

func (a *App) updateCommand(ctx context.Context, out io.Writer) error {
	results, err := a.syncer.UpdateAllUsers(ctx)
	for _, res := range results {
		fmt.Fprintf(out, "%s: fetched %d, stored %d new\n", res.User.Name, res.Fetched, res.Inserted)
	}
	return err
}

// dumpCommand prints users and tweets as CSV-ish lines:
// user,<name>,<display name> followed by tweet,<id>,<text>.
func (a *App) dumpCommand(ctx context.Context, out io.Writer) error {
	users, err := a.store.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		fmt.Fprintf(out, "user,%s,%s\n", u.Name, u.DisplayName)
		tweets, err := a.store.TweetsFor(ctx, u.Name)
		if err != nil {
			return err
		}
		for _, t := range tweets {
			fmt.Fprintf(out, "tweet,%s,%q\n", t.ID, t.Text)
		}
	}

	nUsers, nTweets, err := a.store.Counts(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d users, %d tweets\n", nUsers, nTweets)
	return nil
}
