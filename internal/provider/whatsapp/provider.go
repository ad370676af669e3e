// Package whatsapp adapts the whatsmeow multi-device client to the provider
// interface. Each Open call links a fresh device; verified clients stay
// registered so credentials and channel follows can be sent over the same
// connection.
package whatsapp

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/gdtech/pairgate/internal/provider"
)

const eventBuffer = 16

type Provider struct {
	container  *sqlstore.Container
	channelJID string
	log        zerolog.Logger

	mu      sync.Mutex
	clients map[string]*whatsmeow.Client // phone number -> linked client
}

// New wires the whatsmeow device store onto an existing database pool and
// runs its schema migrations.
func New(ctx context.Context, db *sql.DB, channelJID string, logger zerolog.Logger) (*Provider, error) {
	container := sqlstore.NewWithDB(db, "postgres", waLog.Zerolog(logger.With().Str("component", "wa-store").Logger()))
	if err := container.Upgrade(ctx); err != nil {
		return nil, fmt.Errorf("upgrade whatsmeow store: %w", err)
	}

	return &Provider{
		container:  container,
		channelJID: channelJID,
		log:        logger,
		clients:    make(map[string]*whatsmeow.Client),
	}, nil
}

// Open links a new device. With an identity hint it requests a phone-pairing
// code for that number; without one it streams QR codes. Both surface as QR
// events carrying the payload the user must act on.
func (p *Provider) Open(ctx context.Context, identityHint string) (<-chan provider.Event, provider.CancelFunc, error) {
	device := p.container.NewDevice()
	client := whatsmeow.NewClient(device, waLog.Zerolog(p.log.With().Str("component", "wa-client").Logger()))

	conn := &connection{
		provider: p,
		client:   client,
		events:   make(chan provider.Event, eventBuffer),
		done:     make(chan struct{}),
	}
	client.AddEventHandler(conn.handleEvent)

	if identityHint == "" {
		// GetQRChannel must be armed before Connect.
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("open qr channel: %w", err)
		}
		go conn.pumpQR(qrChan)
	}

	if err := client.Connect(); err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}

	if identityHint != "" {
		code, err := client.PairPhone(ctx, identityHint, true, whatsmeow.PairClientChrome, "Chrome (Linux)")
		if err != nil {
			client.Disconnect()
			return nil, nil, fmt.Errorf("request pairing code: %w", err)
		}
		conn.emit(provider.QR{Payload: code})
	}

	return conn.events, conn.cancel, nil
}

func (p *Provider) register(phoneNumber string, client *whatsmeow.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients[phoneNumber] = client
}

func (p *Provider) unregister(phoneNumber string, client *whatsmeow.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clients[phoneNumber] == client {
		delete(p.clients, phoneNumber)
	}
}

func (p *Provider) linkedClient(phoneNumber string) (*whatsmeow.Client, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	client, ok := p.clients[phoneNumber]
	return client, ok
}

// connection is one linking attempt. Events stop flowing once cancel fires;
// emit never blocks past cancellation, so a superseded attempt cannot wedge.
type connection struct {
	provider *Provider
	client   *whatsmeow.Client
	events   chan provider.Event
	done     chan struct{}

	closeOnce sync.Once
	phone     string
}

func (c *connection) emit(ev provider.Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *connection) cancel() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.client.Disconnect()
		if c.phone != "" {
			c.provider.unregister(c.phone, c.client)
		}
	})
}

func (c *connection) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		if item.Event == whatsmeow.QRChannelEventCode {
			c.emit(provider.QR{Payload: item.Code})
		}
	}
}

func (c *connection) handleEvent(evt any) {
	switch e := evt.(type) {
	case *events.PairSuccess:
		c.phone = "+" + e.ID.User
		c.provider.register(c.phone, c.client)
		c.emit(provider.Opened{PhoneNumber: c.phone})

	case *events.Connected:
		blob, err := marshalCredentials(c.client.Store)
		if err != nil {
			c.emit(provider.Closed{Retryable: false, Reason: "credential export failed: " + err.Error()})
			return
		}
		c.emit(provider.CredentialsReady{Blob: blob})

	case *events.Disconnected:
		c.emit(provider.Closed{Retryable: true, Reason: "connection lost"})

	case *events.StreamError:
		c.emit(provider.Closed{Retryable: true, Reason: "stream error: " + e.Code})

	case *events.LoggedOut:
		c.emit(provider.Closed{Retryable: false, Reason: fmt.Sprintf("logged out: %s", e.Reason)})

	case *events.ClientOutdated:
		c.emit(provider.Closed{Retryable: false, Reason: "client version rejected"})

	case *events.TemporaryBan:
		c.emit(provider.Closed{Retryable: false, Reason: e.String()})
	}
}

// credentials is the portable snapshot handed to the paired device, shaped
// like the creds file companion bots expect.
type credentials struct {
	JID            string `json:"jid"`
	RegistrationID uint32 `json:"registrationId"`
	NoiseKey       string `json:"noiseKey"`
	IdentityKey    string `json:"identityKey"`
	AdvSecretKey   string `json:"advSecretKey"`
	Platform       string `json:"platform,omitempty"`
	PushName       string `json:"pushName,omitempty"`
}

func marshalCredentials(device *store.Device) ([]byte, error) {
	if device.ID == nil {
		return nil, fmt.Errorf("device has no JID")
	}
	creds := credentials{
		JID:            device.ID.String(),
		RegistrationID: device.RegistrationID,
		NoiseKey:       base64.StdEncoding.EncodeToString(device.NoiseKey.Priv[:]),
		IdentityKey:    base64.StdEncoding.EncodeToString(device.IdentityKey.Priv[:]),
		AdvSecretKey:   base64.StdEncoding.EncodeToString(device.AdvSecretKey),
		Platform:       device.Platform,
		PushName:       device.PushName,
	}
	return json.Marshal(creds)
}

func normalizeUser(phoneNumber string) string {
	return strings.TrimPrefix(phoneNumber, "+")
}
