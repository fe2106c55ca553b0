// ABOUTME: identity command: import an existing master key
// ABOUTME: Replaces the stored identity with one derived from the given key

package main

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/hol-org/registry-cli/internal/identity"
)

func (a *app) cmdIdentity(args []string) error {
	if len(args) == 0 {
		return a.cmdWhoami(nil)
	}

	switch args[0] {
	case "import":
		if len(args) < 2 {
			return fmt.Errorf("usage: identity import <private-key-hex>")
		}
		id, err := identity.Import(a.store, args[1])
		if err != nil {
			return err
		}
		color.Green("Imported identity %s", id.Address)
		return nil
	default:
		return fmt.Errorf("usage: identity [import <private-key-hex>]")
	}
}
