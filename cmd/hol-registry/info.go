// ABOUTME: balance, stats, resolve, and whoami commands
// ABOUTME: Read-side lookups against the broker plus local identity display

package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/fatih/color"
)

func (a *app) cmdBalance(args []string) error {
	ctx := context.Background()
	id, err := a.loadIdentity()
	if err != nil {
		return err
	}
	if err := a.ensureAuth(ctx, id); err != nil {
		return err
	}

	bal, err := a.client.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("fetching balance: %w", err)
	}
	color.Green("Balance: %.2f credits", bal.Balance)
	if bal.AccountID != "" {
		fmt.Printf("Account: %s\n", bal.AccountID)
	}
	return nil
}

func (a *app) cmdStats(args []string) error {
	stats, err := a.client.GetStats(context.Background())
	if err != nil {
		return fmt.Errorf("fetching stats: %w", err)
	}

	color.Cyan("Registered agents: %d", stats.TotalAgents)
	if len(stats.Registries) > 0 {
		names := make([]string, 0, len(stats.Registries))
		for name := range stats.Registries {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-20s %d\n", name, stats.Registries[name])
		}
	}
	return nil
}

func (a *app) cmdResolve(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: resolve <uaid>")
	}
	ctx := context.Background()

	agent, err := a.client.Resolve(ctx, args[0])
	if err != nil {
		return fmt.Errorf("resolving %s: %w", args[0], err)
	}

	color.Cyan("%s", agent.DisplayName())
	fmt.Printf("UAID:     %s\n", agent.UAID)
	if agent.Registry != "" {
		fmt.Printf("Registry: %s\n", agent.Registry)
	}
	if desc := agent.Describe(); desc != "" {
		fmt.Printf("About:    %s\n", desc)
	}

	if status, err := a.client.GetVerificationStatus(ctx, args[0]); err == nil {
		if status.Verified {
			color.Green("Ownership: verified")
		} else {
			color.Yellow("Ownership: unverified")
		}
	}
	return nil
}

func (a *app) cmdWhoami(args []string) error {
	id, err := a.loadIdentity()
	if err != nil {
		return err
	}

	color.Cyan("Address: %s", id.Address)
	fmt.Printf("Chain:   %s\n", id.Chain)
	fmt.Printf("Network: %s\n", a.cfg.LedgerNetwork())
	fmt.Printf("Created: %s\n", id.CreatedAt.Format("2006-01-02"))
	if id.Imported {
		fmt.Println("Key:     imported")
	}

	if id.APIKeyFor(a.client.BaseURL()) != "" {
		color.Green("API key: cached for %s", a.client.BaseURL())
	} else {
		fmt.Println("API key: none (will authenticate on first use)")
	}

	if len(id.ClaimedAgents) == 0 {
		fmt.Println("Claimed agents: none")
		return nil
	}
	fmt.Println("Claimed agents:")
	for _, uaid := range id.ClaimedAgents {
		fmt.Printf("  %s\n", uaid)
	}
	return nil
}
