// ABOUTME: roundtrip command: agent-to-agent p2p ping/pong with public mirroring
// ABOUTME: Wires the derived-key dialer and the roundtrip driver from config

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/hol-org/registry-cli/internal/p2p"
)

func (a *app) cmdRoundtrip(args []string) error {
	var reply, title, tags, categories string
	var positional []string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--reply":
			if i+1 < len(args) {
				reply = args[i+1]
				i++
			}
		case "--title":
			if i+1 < len(args) {
				title = args[i+1]
				i++
			}
		case "--tags":
			if i+1 < len(args) {
				tags = args[i+1]
				i++
			}
		case "--categories":
			if i+1 < len(args) {
				categories = args[i+1]
				i++
			}
		default:
			positional = append(positional, args[i])
		}
	}

	if len(positional) < 2 {
		return fmt.Errorf("usage: roundtrip <from-uaid> <to-uaid> [message]")
	}
	fromUAID, toUAID := positional[0], positional[1]
	message := strings.Join(positional[2:], " ")

	ctx := context.Background()
	id, err := a.loadIdentity()
	if err != nil {
		return err
	}
	if err := a.ensureAuth(ctx, id); err != nil {
		return err
	}

	if a.cfg.P2P.Homeserver == "" {
		return fmt.Errorf("p2p homeserver is not configured (set HOL_P2P_HOMESERVER)")
	}

	seed := os.Getenv("HOL_P2P_SEED")
	if seed == "" {
		seed = id.PrivateKey
	}

	driver := p2p.NewDriver(
		a.client,
		&p2p.MatrixDialer{Homeserver: a.cfg.P2P.Homeserver},
		id,
		p2p.NormalizeSeed(seed),
		a.cfg.IsStaging(),
		a.cfg.WebBaseURL(),
	)

	res, err := driver.Run(ctx, p2p.RoundtripOptions{
		FromUAID:   fromUAID,
		ToUAID:     toUAID,
		Message:    message,
		Reply:      reply,
		Title:      title,
		Tags:       tags,
		Categories: categories,
	})
	if err != nil {
		return err
	}

	color.Green("Roundtrip complete.")
	fmt.Printf("Session:  %s\n", res.SessionID)
	fmt.Printf("Ping:     %s  (%s)\n", res.Ping, res.FromAddr)
	fmt.Printf("Reply:    %s  (%s)\n", res.Reply, res.ToAddr)
	fmt.Println("View it at:")
	for _, u := range res.PublicURLs {
		fmt.Printf("  %s\n", u)
	}
	return nil
}
