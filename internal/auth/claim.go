// ABOUTME: Claimed-agent recording against broker ownership verification
// ABOUTME: Adds a verified agent to the local identity's claimed set

package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/hol-org/registry-cli/internal/broker"
	"github.com/hol-org/registry-cli/internal/identity"
)

// OwnershipAPI is the broker surface claiming consumes.
type OwnershipAPI interface {
	GetVerificationStatus(ctx context.Context, uaid string) (*broker.VerificationStatus, error)
}

// Claim records an agent in the identity's claimed set after confirming the
// broker has its ownership verified to this identity. The verification
// ceremony itself happens out of band; Claim only checks the outcome.
// Claiming an already-claimed agent is a no-op.
func Claim(ctx context.Context, api OwnershipAPI, store identity.Store, id *identity.Identity, uaid string) error {
	if uaid == "" {
		return fmt.Errorf("a UAID is required")
	}
	if id.HasClaimed(uaid) {
		return nil
	}

	status, err := api.GetVerificationStatus(ctx, uaid)
	if err != nil {
		return fmt.Errorf("checking verification status: %w", err)
	}
	if !status.Verified {
		return fmt.Errorf("ownership of %s is not verified; complete verification with the registry first", uaid)
	}
	if status.OwnerID != "" && !strings.EqualFold(status.OwnerID, id.Address) {
		return fmt.Errorf("%s is verified to a different owner (%s)", uaid, status.OwnerID)
	}

	id.AddClaim(uaid)
	if err := store.Save(id); err != nil {
		return fmt.Errorf("persisting claim: %w", err)
	}
	return nil
}
