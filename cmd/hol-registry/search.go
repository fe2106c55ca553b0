// ABOUTME: search command against the agent directory
// ABOUTME: Renders matches with UAID, name, and description

package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

func (a *app) cmdSearch(args []string) error {
	limit := 10
	var terms []string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--limit", "-n":
			if i+1 < len(args) {
				n, err := strconv.Atoi(args[i+1])
				if err != nil || n < 1 {
					return fmt.Errorf("--limit must be a positive number")
				}
				limit = n
				i++
			}
		default:
			terms = append(terms, args[i])
		}
	}

	query := strings.Join(terms, " ")
	if query == "" {
		return fmt.Errorf("usage: search <query> [--limit n]")
	}

	res, err := a.client.Search(context.Background(), query, limit)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}

	agents := res.Agents()
	if len(agents) == 0 {
		fmt.Println("No agents found.")
		return nil
	}

	cyan := color.New(color.FgCyan)
	for _, agent := range agents {
		cyan.Printf("%s", agent.DisplayName())
		fmt.Printf("  %s\n", agent.UAID)
		if desc := agent.Describe(); desc != "" {
			fmt.Printf("    %s\n", desc)
		}
	}
	if res.Total > len(agents) {
		fmt.Printf("\n%d of %d matches shown.\n", len(agents), res.Total)
	}
	return nil
}
