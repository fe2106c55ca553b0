// ABOUTME: sessions and history commands over the local session cache
// ABOUTME: Lists cached sessions, prints one session's transcript, or clears the cache

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/hol-org/registry-cli/internal/chat"
	"github.com/hol-org/registry-cli/internal/session"
)

func (a *app) openCache() (*session.SQLiteStore, error) {
	cache, err := session.NewSQLiteStore(a.cfg.SessionsDB())
	if err != nil {
		return nil, fmt.Errorf("opening session cache: %w", err)
	}
	return cache, nil
}

func (a *app) cmdSessions(args []string) error {
	cache, err := a.openCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	entries, err := cache.List(context.Background())
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No cached sessions.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tSESSION\tTRANSPORT\tLAST USED")
	for _, e := range entries {
		transport := e.Transport
		if transport == "" {
			transport = "(server default)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.TargetKey, e.SessionID, transport, e.LastUsedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func (a *app) cmdHistory(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: history <uaid> or history clear")
	}

	cache, err := a.openCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	ctx := context.Background()

	if args[0] == "clear" {
		if err := cache.Clear(ctx); err != nil {
			return err
		}
		color.Green("Session cache cleared.")
		return nil
	}

	rec, err := cache.Get(ctx, args[0])
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return fmt.Errorf("no cached session for %s", args[0])
		}
		return err
	}

	id, err := a.loadIdentity()
	if err != nil {
		return err
	}
	if err := a.ensureAuth(ctx, id); err != nil {
		return err
	}

	hist, err := a.client.GetSessionHistory(ctx, rec.SessionID)
	if err != nil {
		return fmt.Errorf("fetching history: %w", err)
	}

	cyan := color.New(color.FgCyan)
	for _, entry := range hist.History {
		if entry.Role == "agent" && chat.IsDeliveryConfirmation(entry.Content) {
			continue
		}
		cyan.Printf("[%s] ", entry.Role)
		fmt.Println(entry.Content)
	}
	if hist.HistoryTTLSeconds > 0 {
		fmt.Printf("\n(history expires in %ds)\n", hist.HistoryTTLSeconds)
	}
	return nil
}
