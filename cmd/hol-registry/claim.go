// ABOUTME: claim and check commands for agent ownership and health
// ABOUTME: Records verified agents locally and reports availability/trust detail

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/hol-org/registry-cli/internal/auth"
)

func (a *app) cmdClaim(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: claim <uaid>")
	}
	uaid := args[0]

	ctx := context.Background()
	id, err := a.loadIdentity()
	if err != nil {
		return err
	}
	if err := a.ensureAuth(ctx, id); err != nil {
		return err
	}

	if id.HasClaimed(uaid) {
		fmt.Printf("%s is already in your claimed agents.\n", uaid)
		return nil
	}

	if err := auth.Claim(ctx, a.client, a.store, id, uaid); err != nil {
		return err
	}

	color.Green("Claimed %s", uaid)
	fmt.Println("You can now send as this agent:")
	fmt.Printf("  hol-registry chat --as %s <uaid> \"Hello!\"\n", uaid)
	return nil
}

func (a *app) cmdCheck(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: check <uaid>")
	}

	agent, err := a.client.Resolve(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("resolving %s: %w", args[0], err)
	}

	color.Cyan("%s", agent.DisplayName())

	status := agent.AvailabilityStatus
	if status == "" {
		status = "unknown"
	}
	switch status {
	case "online":
		color.Green("Status:  %s", status)
	case "stale":
		color.Yellow("Status:  %s", status)
	default:
		fmt.Printf("Status:  %s\n", status)
	}

	if agent.AvailabilityScore != nil {
		fmt.Printf("Uptime:  %.1f%%\n", *agent.AvailabilityScore*100)
	}
	if agent.AvailabilityLatencyMs > 0 {
		fmt.Printf("Latency: %dms\n", agent.AvailabilityLatencyMs)
	}
	if agent.TrustScore != nil {
		fmt.Printf("Trust:   %.1f/100\n", *agent.TrustScore)
	}
	if agent.CommunicationSupported {
		fmt.Println("Chat:    supported")
	} else {
		fmt.Println("Chat:    not supported")
	}
	if agent.Registry != "" {
		fmt.Printf("Registry: %s\n", agent.Registry)
	}
	if agent.LastSeen != "" {
		if seen, err := time.Parse(time.RFC3339, agent.LastSeen); err == nil {
			fmt.Printf("Last seen: %s ago\n", time.Since(seen).Round(time.Minute))
		} else {
			fmt.Printf("Last seen: %s\n", agent.LastSeen)
		}
	}
	return nil
}
