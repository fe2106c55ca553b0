// ABOUTME: chat command: send one message through a cached-or-new session
// ABOUTME: Parses transport/sender flags and renders the reply or pending state

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/hol-org/registry-cli/internal/chat"
	"github.com/hol-org/registry-cli/internal/session"
)

func (a *app) cmdChat(args []string) error {
	var transport, agentURL, senderUAID string
	var asJSON bool
	var positional []string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--transport", "-t":
			if i+1 < len(args) {
				transport = args[i+1]
				i++
			}
		case "--agent-url":
			if i+1 < len(args) {
				agentURL = args[i+1]
				i++
			}
		case "--as":
			if i+1 < len(args) {
				senderUAID = args[i+1]
				i++
			}
		case "--json":
			asJSON = true
		default:
			positional = append(positional, args[i])
		}
	}

	var uaid, message string
	if agentURL != "" {
		message = strings.Join(positional, " ")
	} else {
		if len(positional) == 0 {
			return fmt.Errorf("usage: chat <uaid> [message] or chat --agent-url <url> [message]")
		}
		uaid = positional[0]
		message = strings.Join(positional[1:], " ")
	}

	id, err := a.loadIdentity()
	if err != nil {
		return err
	}
	if senderUAID == "" {
		senderUAID = id.DefaultSenderUAID(uaid)
	}

	cache, err := session.NewSQLiteStore(a.cfg.SessionsDB())
	if err != nil {
		return fmt.Errorf("opening session cache: %w", err)
	}
	defer cache.Close()

	orch := chat.NewOrchestrator(a.client, cache, chat.WithAuth(func(ctx context.Context) error {
		return a.ensureAuth(ctx, id)
	}))

	res, err := orch.Chat(context.Background(), uaid, message, chat.Options{
		SenderUAID: senderUAID,
		Transport:  transport,
		AgentURL:   agentURL,
	})
	if err != nil {
		var createErr *chat.CreateSessionError
		if errors.As(err, &createErr) && createErr.VerificationURL != "" {
			color.Yellow("Verify agent ownership at: %s", createErr.VerificationURL)
		}
		return err
	}

	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"sessionId": res.SessionID,
			"transport": res.Transport,
			"created":   res.Created,
			"reply":     res.Reply,
			"pending":   res.Pending,
		})
	}

	if message == "" {
		color.Green("Session ready: %s", res.SessionID)
		return nil
	}
	if res.Pending {
		color.Yellow("Message delivered; no reply yet. Check back with: history %s", uaid)
		return nil
	}
	fmt.Println(res.Reply)
	return nil
}
