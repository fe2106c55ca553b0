// ABOUTME: Matrix-backed Messenger: derived keys become homeserver accounts
// ABOUTME: Login-or-register, direct-message rooms, invite consent, and history scans

package p2p

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/hol-org/registry-cli/internal/identity"
)

// matrixCallTimeout bounds individual homeserver API calls.
const matrixCallTimeout = 30 * time.Second

// historyPageSize is how many events one Recent scan pages through.
const historyPageSize = 50

// MatrixDialer turns derived keys into Matrix accounts on a fixed homeserver.
// The localpart is the key's lowercased ledger address, so peers can compute
// each other's user ID from an address alone.
type MatrixDialer struct {
	Homeserver string
	Logger     *slog.Logger
}

// Dial logs in as the account for the derived key, registering it on first
// use. The account password is derived from the key, so any holder of the
// seed can re-establish the same identity.
func (d *MatrixDialer) Dial(ctx context.Context, key *secp256k1.PrivateKey) (Messenger, error) {
	serverName, err := serverNameFrom(d.Homeserver)
	if err != nil {
		return nil, err
	}

	address := strings.ToLower(identity.AddressFromKey(key))
	password := accountPassword(key)
	logger := d.Logger
	if logger == nil {
		logger = slog.Default().With("component", "p2p")
	}

	client, err := mautrix.NewClient(d.Homeserver, "", "")
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	_, err = client.Login(ctx, &mautrix.ReqLogin{
		Type:             mautrix.AuthTypePassword,
		Identifier:       mautrix.UserIdentifier{Type: mautrix.IdentifierTypeUser, User: address},
		Password:         password,
		StoreCredentials: true,
	})
	if err != nil {
		if !errors.Is(err, mautrix.MForbidden) {
			return nil, fmt.Errorf("matrix login for %s: %w", address, err)
		}
		logger.Info("registering messaging identity", "address", address)
		resp, regErr := client.RegisterDummy(ctx, &mautrix.ReqRegister{
			Username: address,
			Password: password,
		})
		if regErr != nil {
			return nil, fmt.Errorf("matrix register for %s: %w", address, regErr)
		}
		client.UserID = resp.UserID
		client.AccessToken = resp.AccessToken
	}

	return &matrixMessenger{
		client:     client,
		address:    address,
		serverName: serverName,
		logger:     logger.With("address", address),
		rooms:      make(map[string]id.RoomID),
	}, nil
}

type matrixMessenger struct {
	client     *mautrix.Client
	address    string
	serverName string
	logger     *slog.Logger

	mu    sync.Mutex
	rooms map[string]id.RoomID // peer address -> direct room
}

func (m *matrixMessenger) Address() string { return m.address }

func (m *matrixMessenger) userFor(addr string) id.UserID {
	return id.NewUserID(strings.ToLower(addr), m.serverName)
}

// CanMessage reports whether the peer's account exists yet. The peer registers
// itself on its own Dial, so early probes legitimately come back false.
func (m *matrixMessenger) CanMessage(ctx context.Context, addr string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, matrixCallTimeout)
	defer cancel()

	_, err := m.client.GetProfile(ctx, m.userFor(addr))
	if err != nil {
		if errors.Is(err, mautrix.MNotFound) || errors.Is(err, mautrix.MForbidden) {
			return false, nil
		}
		return false, fmt.Errorf("probing %s: %w", addr, err)
	}
	return true, nil
}

// Send delivers a text message to the peer's direct room, creating it on
// first contact.
func (m *matrixMessenger) Send(ctx context.Context, addr, content string) error {
	room, err := m.directRoom(ctx, addr, true)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, matrixCallTimeout)
	defer cancel()
	if _, err := m.client.SendText(ctx, room, content); err != nil {
		return fmt.Errorf("sending to %s: %w", addr, err)
	}
	return nil
}

// Allow accepts any pending room invite from the peer. Joining the room is
// the network's consent signal.
func (m *matrixMessenger) Allow(ctx context.Context, addr string) error {
	ctx, cancel := context.WithTimeout(ctx, matrixCallTimeout)
	defer cancel()

	resp, err := m.client.SyncRequest(ctx, 0, "", "", false, event.PresenceOffline)
	if err != nil {
		return fmt.Errorf("fetching invites: %w", err)
	}

	peer := m.userFor(addr)
	for roomID, invited := range resp.Rooms.Invite {
		if !inviteFrom(invited, peer) {
			continue
		}
		if _, err := m.client.JoinRoomByID(ctx, roomID); err != nil {
			return fmt.Errorf("joining room from %s: %w", addr, err)
		}
		m.mu.Lock()
		m.rooms[strings.ToLower(addr)] = roomID
		m.mu.Unlock()
		m.logger.Debug("accepted room invite", "peer", addr, "room", roomID.String())
	}
	return nil
}

// Recent returns the peer's text messages in the shared room observed at or
// after since, oldest first.
func (m *matrixMessenger) Recent(ctx context.Context, addr string, since time.Time) ([]Message, error) {
	room, err := m.directRoom(ctx, addr, false)
	if err != nil {
		return nil, err
	}
	if room == "" {
		return nil, nil // no shared room yet
	}

	ctx, cancel := context.WithTimeout(ctx, matrixCallTimeout)
	defer cancel()
	resp, err := m.client.Messages(ctx, room, "", "", mautrix.DirectionBackward, nil, historyPageSize)
	if err != nil {
		return nil, fmt.Errorf("fetching messages from %s: %w", addr, err)
	}

	peer := m.userFor(addr)
	var out []Message
	// Chunk is newest-first; prepend to return oldest-first.
	for _, evt := range resp.Chunk {
		if evt.Sender != peer || evt.Type != event.EventMessage {
			continue
		}
		sentAt := time.UnixMilli(evt.Timestamp)
		if sentAt.Before(since) {
			continue
		}
		if err := evt.Content.ParseRaw(event.EventMessage); err != nil {
			continue
		}
		msg := evt.Content.AsMessage()
		if msg.MsgType != event.MsgText {
			continue
		}
		out = append([]Message{{From: strings.ToLower(addr), Content: msg.Body, SentAt: sentAt}}, out...)
	}
	return out, nil
}

func (m *matrixMessenger) Close() error {
	m.client.StopSync()
	return nil
}

// directRoom finds or (when create is set) establishes the direct room with
// the peer. Without create, an unknown peer yields an empty room ID.
func (m *matrixMessenger) directRoom(ctx context.Context, addr string, create bool) (id.RoomID, error) {
	key := strings.ToLower(addr)
	m.mu.Lock()
	room, ok := m.rooms[key]
	m.mu.Unlock()
	if ok {
		return room, nil
	}

	ctx, cancel := context.WithTimeout(ctx, matrixCallTimeout)
	defer cancel()

	// A room the peer created and we joined via Allow also counts.
	if room := m.findSharedRoom(ctx, m.userFor(addr)); room != "" {
		m.mu.Lock()
		m.rooms[key] = room
		m.mu.Unlock()
		return room, nil
	}

	if !create {
		return "", nil
	}

	resp, err := m.client.CreateRoom(ctx, &mautrix.ReqCreateRoom{
		Preset:   "trusted_private_chat",
		Invite:   []id.UserID{m.userFor(addr)},
		IsDirect: true,
	})
	if err != nil {
		return "", fmt.Errorf("creating room with %s: %w", addr, err)
	}
	m.mu.Lock()
	m.rooms[key] = resp.RoomID
	m.mu.Unlock()
	m.logger.Debug("created direct room", "peer", addr, "room", resp.RoomID.String())
	return resp.RoomID, nil
}

func (m *matrixMessenger) findSharedRoom(ctx context.Context, peer id.UserID) id.RoomID {
	joined, err := m.client.JoinedRooms(ctx)
	if err != nil {
		return ""
	}
	for _, roomID := range joined.JoinedRooms {
		members, err := m.client.JoinedMembers(ctx, roomID)
		if err != nil {
			continue
		}
		if _, ok := members.Joined[peer]; ok {
			return roomID
		}
	}
	return ""
}

// inviteFrom reports whether the invite's membership event names the peer as
// its sender.
func inviteFrom(room *mautrix.SyncInvitedRoom, peer id.UserID) bool {
	for _, evt := range room.State.Events {
		if evt.Type == event.StateMember && evt.Sender == peer {
			return true
		}
	}
	return false
}

// accountPassword derives a stable homeserver password from the messaging
// key. Not a secret beyond the seed itself.
func accountPassword(key *secp256k1.PrivateKey) string {
	sum := sha256.Sum256(append([]byte("hol-p2p-account:"), key.Serialize()...))
	return hex.EncodeToString(sum[:])
}

func serverNameFrom(homeserver string) (string, error) {
	u, err := url.Parse(homeserver)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("invalid homeserver URL %q", homeserver)
	}
	return u.Hostname(), nil
}
