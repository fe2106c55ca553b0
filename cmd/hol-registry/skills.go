// ABOUTME: skills command: validate and publish skill bundles
// ABOUTME: Loads a bundle directory and runs lint or the publish pipeline

package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"

	"github.com/hol-org/registry-cli/internal/skills"
)

func (a *app) cmdSkills(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: skills validate <dir> or skills publish <dir> [--as <uaid>]")
	}

	switch args[0] {
	case "validate":
		bundle, err := skills.LoadBundle(args[1])
		if err != nil {
			return err
		}
		if err := bundle.Validate(); err != nil {
			return err
		}
		color.Green("Bundle %s %s is valid.", bundle.Manifest.Name, bundle.Manifest.Version)
		return nil

	case "publish":
		dir := args[1]
		var asUAID string
		for i := 2; i < len(args); i++ {
			if args[i] == "--as" && i+1 < len(args) {
				asUAID = args[i+1]
				i++
			}
		}

		bundle, err := skills.LoadBundle(dir)
		if err != nil {
			return err
		}

		ctx := context.Background()
		id, err := a.loadIdentity()
		if err != nil {
			return err
		}
		if err := a.ensureAuth(ctx, id); err != nil {
			return err
		}
		if asUAID == "" {
			asUAID = id.DefaultSenderUAID("")
		}
		if asUAID == "" {
			return fmt.Errorf("no claimed agent to publish as; pass --as <uaid>")
		}

		res, err := skills.Publish(ctx, a.client, asUAID, bundle)
		if err != nil {
			return err
		}
		color.Green("Published %s %s", bundle.Manifest.Name, bundle.Manifest.Version)
		if res.URL != "" {
			fmt.Printf("View it at: %s\n", res.URL)
		}
		return nil

	default:
		return fmt.Errorf("usage: skills validate <dir> or skills publish <dir> [--as <uaid>]")
	}
}
