// Package matrixbot implements the chat transport on a mautrix client with
// end-to-end encryption.
package matrixbot

import (
	"context"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/crypto/cryptohelper"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/jjj333-p/gemini-matrix/pkg/bot"
	"github.com/jjj333-p/gemini-matrix/pkg/botcfg"
)

// Handler receives one inbound room message per invocation.
type Handler func(ctx context.Context, msg bot.Inbound)

// Bot owns the Matrix connection: login, E2EE, room joining, the sync loop,
// and outbound delivery.
type Bot struct {
	cli    *mautrix.Client
	crypto *cryptohelper.CryptoHelper
	cfg    botcfg.MatrixConfig
	log    zerolog.Logger

	handler   Handler
	startTime time.Time
}

func New(cfg botcfg.MatrixConfig, log zerolog.Logger) (*Bot, error) {
	cli, err := mautrix.NewClient(cfg.Homeserver, "", "")
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}
	log = log.With().Str("component", "matrix").Logger()
	cli.Log = log

	crypto, err := cryptohelper.NewCryptoHelper(cli, []byte(cfg.PickleKey), cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to create crypto helper: %w", err)
	}
	crypto.LoginAs = &mautrix.ReqLogin{
		Type:       mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{Type: mautrix.IdentifierTypeUser, User: cfg.UserID},
		Password:   cfg.Password,
	}

	b := &Bot{cli: cli, crypto: crypto, cfg: cfg, log: log}
	syncer := cli.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, b.handleMessage)
	return b, nil
}

// OnMessage registers the pipeline entrypoint. Must be called before Run.
func (b *Bot) OnMessage(handler Handler) {
	b.handler = handler
}

// SelfID returns the logged-in user ID. Only valid after Run has logged in.
func (b *Bot) SelfID() id.UserID {
	return b.cli.UserID
}

// Run logs in, joins the configured rooms and blocks in the sync loop until
// ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.crypto.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize crypto: %w", err)
	}
	b.cli.Crypto = b.crypto
	defer func() {
		if err := b.crypto.Close(); err != nil {
			b.log.Warn().Err(err).Msg("Failed to close crypto store")
		}
	}()

	b.log.Info().Stringer("user_id", b.cli.UserID).Msg("Logged in")

	if b.cfg.DisplayName != "" {
		if err := b.cli.SetDisplayName(ctx, b.cfg.DisplayName); err != nil {
			b.log.Warn().Err(err).Msg("Failed to set display name")
		}
	}

	for _, room := range b.cfg.Rooms {
		if _, err := b.cli.JoinRoom(ctx, room, &mautrix.ReqJoinRoom{}); err != nil {
			b.log.Warn().Err(err).Str("room", room).Msg("Failed to join room")
		} else {
			b.log.Info().Str("room", room).Msg("Joined room")
		}
	}

	b.startTime = time.Now()
	return b.cli.SyncWithContext(ctx)
}

// handleMessage feeds one decrypted room message into the pipeline. Each
// message runs as its own unit of work; the pipeline serializes per room.
func (b *Bot) handleMessage(ctx context.Context, evt *event.Event) {
	if b.handler == nil {
		return
	}
	// Skip backlog delivered on the first sync.
	if time.UnixMilli(evt.Timestamp).Before(b.startTime) {
		return
	}
	content := evt.Content.AsMessage()
	if content == nil || content.Body == "" {
		return
	}

	msg := bot.Inbound{
		RoomID:     evt.RoomID,
		Sender:     evt.Sender,
		SenderName: b.senderDisplayName(ctx, evt.Sender),
		Body:       content.Body,
		EventID:    evt.ID,
	}
	go b.handler(context.WithoutCancel(ctx), msg)
}

func (b *Bot) senderDisplayName(ctx context.Context, userID id.UserID) string {
	resp, err := b.cli.GetDisplayName(ctx, userID)
	if err != nil || resp == nil || resp.DisplayName == "" {
		return userID.Localpart()
	}
	return resp.DisplayName
}
