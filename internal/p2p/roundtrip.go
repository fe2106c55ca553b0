// ABOUTME: Agent-to-agent roundtrip driver: two derived identities exchange a ping/pong
// ABOUTME: Mirrors both legs into a public broker session so the exchange is auditable

package p2p

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hol-org/registry-cli/internal/broker"
	"github.com/hol-org/registry-cli/internal/identity"
)

// RoundtripBroker is the broker surface the driver consumes.
type RoundtripBroker interface {
	Resolve(ctx context.Context, uaid string) (*broker.Agent, error)
	GetVerificationStatus(ctx context.Context, uaid string) (*broker.VerificationStatus, error)
	SeedAgents(ctx context.Context, agents []broker.SeedAgent) error
	CreateSession(ctx context.Context, req broker.CreateSessionRequest) (*broker.CreateSessionResult, error)
	InviteMember(ctx context.Context, sessionID string, req broker.InviteRequest) (*broker.InviteResult, error)
	PatchSession(ctx context.Context, sessionID string, req broker.PatchSessionRequest) error
	IngestMessage(ctx context.Context, sessionID string, req broker.IngestRequest) error
}

// RoundtripOptions configure one exchange.
type RoundtripOptions struct {
	FromUAID   string
	ToUAID     string
	Message    string // ping content; defaults to a timestamped ping
	Reply      string // pong content; defaults to echoing the ping
	Title      string
	Tags       string
	Categories string
	LegTimeout time.Duration
}

// RoundtripResult describes a completed exchange and where to view it.
type RoundtripResult struct {
	SessionID  string
	Members    []string
	Ping       string
	Reply      string
	FromAddr   string
	ToAddr     string
	PublicURLs []string
}

// Driver runs peer-to-peer roundtrips between two agents claimed by the
// local identity.
type Driver struct {
	api     RoundtripBroker
	dialer  Dialer
	ident   *identity.Identity
	seed    []byte
	staging bool
	webBase string
	logger  *slog.Logger
}

// NewDriver creates a roundtrip driver. seed is the raw derivation seed
// material; staging enables placeholder agent seeding against non-production
// brokers; webBase is where mirrored sessions are published.
func NewDriver(api RoundtripBroker, dialer Dialer, ident *identity.Identity, seed []byte, staging bool, webBase string) *Driver {
	return &Driver{
		api:     api,
		dialer:  dialer,
		ident:   ident,
		seed:    seed,
		staging: staging,
		webBase: webBase,
		logger:  slog.Default().With("component", "roundtrip"),
	}
}

// Run executes the full exchange: derive both identities, establish a
// mirrored public session, deliver the ping, deliver the pong, and ingest
// both legs into the session ledger. Mirroring is append-only; a leg that
// was ingested stays ingested even when a later step fails.
func (d *Driver) Run(ctx context.Context, opts RoundtripOptions) (*RoundtripResult, error) {
	if opts.FromUAID == "" || opts.ToUAID == "" {
		return nil, fmt.Errorf("both sender and recipient agents are required")
	}
	if opts.FromUAID == opts.ToUAID {
		return nil, fmt.Errorf("sender and recipient must be distinct agents")
	}
	// Ownership guard: both endpoints must be claimed by this identity
	// before any network traffic happens.
	for _, uaid := range []string{opts.FromUAID, opts.ToUAID} {
		if !d.ident.HasClaimed(uaid) {
			return nil, fmt.Errorf("agent %s is not claimed by this identity", uaid)
		}
	}

	if opts.Message == "" {
		opts.Message = fmt.Sprintf("PING %d", time.Now().Unix())
	}
	if opts.Reply == "" {
		opts.Reply = fmt.Sprintf("PONG: Received %q", opts.Message)
	}

	if d.staging {
		if err := d.ensureSeeded(ctx, opts.FromUAID, opts.ToUAID); err != nil {
			return nil, fmt.Errorf("seeding staging agents: %w", err)
		}
	}

	sessionID, members, err := d.createMirrorSession(ctx, opts)
	if err != nil {
		return nil, err
	}
	d.logger.Info("mirror session ready", "session_id", sessionID)

	fromKey, err := DeriveKey(d.seed, opts.FromUAID, DefaultDerivationDomain)
	if err != nil {
		return nil, fmt.Errorf("deriving sender key: %w", err)
	}
	toKey, err := DeriveKey(d.seed, opts.ToUAID, DefaultDerivationDomain)
	if err != nil {
		return nil, fmt.Errorf("deriving recipient key: %w", err)
	}

	sender, err := d.dialer.Dial(ctx, fromKey)
	if err != nil {
		return nil, fmt.Errorf("connecting sender: %w", err)
	}
	defer sender.Close()
	receiver, err := d.dialer.Dial(ctx, toKey)
	if err != nil {
		return nil, fmt.Errorf("connecting recipient: %w", err)
	}
	defer receiver.Close()

	result := &RoundtripResult{
		SessionID: sessionID,
		Members:   members,
		Ping:      opts.Message,
		Reply:     opts.Reply,
		FromAddr:  sender.Address(),
		ToAddr:    receiver.Address(),
		PublicURLs: []string{
			d.webBase + "/chats/public/" + sessionID,
			d.webBase + "/registry/chats/public/" + sessionID,
		},
	}

	// Leg 1: ping from sender to receiver, mirrored as the sender's turn.
	// The wait window opens slightly before the send to cover messages the
	// network timestamps ahead of us.
	legStart := time.Now().Add(-2 * time.Second)
	if err := SendMessage(ctx, sender, receiver.Address(), opts.Message, opts.LegTimeout); err != nil {
		return nil, fmt.Errorf("delivering ping: %w", err)
	}
	if err := receiver.Allow(ctx, sender.Address()); err != nil {
		d.logger.Debug("recipient consent failed", "error", err)
	}
	if _, err := WaitForMessage(ctx, receiver, sender.Address(), opts.Message, legStart, opts.LegTimeout); err != nil {
		return nil, fmt.Errorf("confirming ping receipt: %w", err)
	}
	if err := d.api.IngestMessage(ctx, sessionID, broker.IngestRequest{
		SenderUAID:    opts.FromUAID,
		RecipientUAID: opts.ToUAID,
		Role:          "agent",
		Content:       opts.Message,
	}); err != nil {
		return nil, fmt.Errorf("mirroring ping: %w", err)
	}
	d.logger.Info("ping delivered and mirrored", "from", result.FromAddr, "to", result.ToAddr)

	// Leg 2: pong back, mirrored as the recipient's turn.
	legStart = time.Now().Add(-2 * time.Second)
	if err := SendMessage(ctx, receiver, sender.Address(), opts.Reply, opts.LegTimeout); err != nil {
		return nil, fmt.Errorf("delivering reply: %w", err)
	}
	if err := sender.Allow(ctx, receiver.Address()); err != nil {
		d.logger.Debug("sender consent failed", "error", err)
	}
	if _, err := WaitForMessage(ctx, sender, receiver.Address(), opts.Reply, legStart, opts.LegTimeout); err != nil {
		return nil, fmt.Errorf("confirming reply receipt: %w", err)
	}
	if err := d.api.IngestMessage(ctx, sessionID, broker.IngestRequest{
		SenderUAID:    opts.ToUAID,
		RecipientUAID: opts.FromUAID,
		Role:          "agent",
		Content:       opts.Reply,
	}); err != nil {
		return nil, fmt.Errorf("mirroring reply: %w", err)
	}
	d.logger.Info("roundtrip complete", "session_id", sessionID)

	return result, nil
}

// createMirrorSession establishes the ledger-mirrored session, invites the
// recipient with full history, and publishes it.
func (d *Driver) createMirrorSession(ctx context.Context, opts RoundtripOptions) (string, []string, error) {
	// The session targets its owner; the recipient joins via the invite below.
	res, err := d.api.CreateSession(ctx, broker.CreateSessionRequest{
		UAID:       opts.FromUAID,
		SenderUAID: opts.FromUAID,
		Transport:  "moltbook",
	})
	if err != nil {
		return "", nil, fmt.Errorf("creating mirror session: %w", err)
	}
	if res.Failure != nil {
		return "", nil, fmt.Errorf("creating mirror session: %s", res.Failure.Message)
	}
	sessionID := res.SessionID

	invite, err := d.api.InviteMember(ctx, sessionID, broker.InviteRequest{
		SenderUAID:   opts.FromUAID,
		UAID:         opts.ToUAID,
		HistoryScope: "all",
	})
	if err != nil {
		return "", nil, fmt.Errorf("inviting recipient: %w", err)
	}

	patch := broker.PatchSessionRequest{
		SenderUAID: opts.FromUAID,
		Visibility: "public",
		Title:      opts.Title,
		Tags:       opts.Tags,
		Categories: opts.Categories,
	}
	if patch.Title == "" {
		patch.Title = fmt.Sprintf("Roundtrip %s <> %s", opts.FromUAID, opts.ToUAID)
	}
	if err := d.api.PatchSession(ctx, sessionID, patch); err != nil {
		return "", nil, fmt.Errorf("publishing session: %w", err)
	}
	return sessionID, invite.Members, nil
}

// ensureSeeded registers placeholder records on a staging broker for agents
// the directory does not know, or knows but has never verified.
func (d *Driver) ensureSeeded(ctx context.Context, uaids ...string) error {
	var missing []broker.SeedAgent
	for _, uaid := range uaids {
		needsSeed := false
		if _, err := d.api.Resolve(ctx, uaid); err != nil {
			if !broker.IsNotFound(err) {
				return fmt.Errorf("resolving %s: %w", uaid, err)
			}
			needsSeed = true
		} else if status, err := d.api.GetVerificationStatus(ctx, uaid); err == nil && !status.Verified {
			needsSeed = true
		}
		if !needsSeed {
			continue
		}
		missing = append(missing, broker.SeedAgent{
			UAID:     uaid,
			Name:     shortName(uaid),
			Registry: "staging",
		})
	}
	if len(missing) == 0 {
		return nil
	}
	d.logger.Info("seeding staging agents", "count", len(missing))
	return d.api.SeedAgents(ctx, missing)
}

// shortName derives a human-readable placeholder name from a UAID's last
// segment.
func shortName(uaid string) string {
	if idx := strings.LastIndex(uaid, ":"); idx >= 0 && idx+1 < len(uaid) {
		return uaid[idx+1:]
	}
	return uaid
}
