// Package bot contains the message-processing pipeline: classification,
// command handling, conversational replies with oversize fallback, the
// image-generation workflow and the URL description scan.
package bot

import (
	"context"
	"errors"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"

	"github.com/jjj333-p/gemini-matrix/pkg/classify"
	"github.com/jjj333-p/gemini-matrix/pkg/fetch"
	"github.com/jjj333-p/gemini-matrix/pkg/session"
	"github.com/jjj333-p/gemini-matrix/pkg/urlscan"
)

const (
	forgetAck = "Drinking to forget! 🍻"
	helpText  = "Hi! I'm a bot that interacts with the Google Gemini API for group chats.\n" +
		"See my source code at https://github.com/jjj333-p/gemini-matrix"
	refusalNotice = "The llm refused to respond"
)

// Params configures a Pipeline.
type Params struct {
	// SelfID is the bot's own identity, used for echo suppression.
	SelfID id.UserID
	// Nick is the display name used for mention matching.
	Nick string
	// ImageTrigger is the prefix keyword requesting image generation.
	ImageTrigger string

	// ModelTimeout bounds one model call. Zero means a minute.
	ModelTimeout time.Duration
	// UploadTimeout bounds one media upload. Zero means ten seconds.
	UploadTimeout time.Duration
}

// Pipeline coordinates the handling of one inbound room message.
type Pipeline struct {
	selfID        id.UserID
	nick          string
	imageTrigger  string
	modelTimeout  time.Duration
	uploadTimeout time.Duration

	transport Transport
	sessions  *session.Registry
	generator ImageGenerator
	fetcher   ImageFetcher
	log       zerolog.Logger
}

func NewPipeline(params Params, transport Transport, sessions *session.Registry, generator ImageGenerator, fetcher ImageFetcher, log zerolog.Logger) *Pipeline {
	if params.ModelTimeout <= 0 {
		params.ModelTimeout = time.Minute
	}
	if params.UploadTimeout <= 0 {
		params.UploadTimeout = 10 * time.Second
	}
	return &Pipeline{
		selfID:        params.SelfID,
		nick:          params.Nick,
		imageTrigger:  params.ImageTrigger,
		modelTimeout:  params.ModelTimeout,
		uploadTimeout: params.UploadTimeout,
		transport:     transport,
		sessions:      sessions,
		generator:     generator,
		fetcher:       fetcher,
		log:           log.With().Str("component", "pipeline").Logger(),
	}
}

// Handle processes one inbound message to completion. Units for different
// rooms may run concurrently; the per-room lock serializes units for the
// same room so the conversation is never raced.
func (p *Pipeline) Handle(ctx context.Context, msg Inbound) {
	if msg.Sender == p.selfID {
		return
	}

	log := p.log.With().
		Str("trace_id", xid.New().String()).
		Stringer("room_id", msg.RoomID).
		Stringer("sender", msg.Sender).
		Logger()

	lock := p.sessions.RoomLock(msg.RoomID)
	lock.Lock()
	defer lock.Unlock()

	cls := classify.Classify(msg.Body, p.nick, p.imageTrigger)
	switch cls.Kind {
	case classify.KindCommand:
		p.handleCommand(ctx, log, msg, cls.Command)
	case classify.KindMention:
		p.handleMention(ctx, log, msg)
	case classify.KindImageGen:
		p.runImageWorkflow(ctx, log, msg, cls.Prompt)
	case classify.KindPassive:
		// URL scan only.
	}

	p.scanURLs(ctx, log, msg)
}

func (p *Pipeline) handleCommand(ctx context.Context, log zerolog.Logger, msg Inbound, cmd classify.Command) {
	var reply string
	switch cmd {
	case classify.CommandForget:
		p.sessions.Destroy(msg.RoomID)
		reply = forgetAck
	case classify.CommandHelp:
		reply = helpText
	default:
		return
	}
	quote := Quote(msg.SenderName, msg.Body)
	p.send(ctx, log, buildReply(msg.RoomID, reply, quote, msg.EventID))
}

func (p *Pipeline) handleMention(ctx context.Context, log zerolog.Logger, msg Inbound) {
	reply := ""
	conv, err := p.sessions.GetOrCreate(ctx, msg.RoomID)
	if err != nil {
		log.Err(err).Msg("Failed to create conversation session")
		reply = err.Error()
	} else {
		sendCtx, cancel := context.WithTimeout(ctx, p.modelTimeout)
		reply, err = conv.Send(sendCtx, msg.Body)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("Model call failed")
			reply = err.Error()
		}
	}
	if reply == "" {
		reply = refusalNotice
	}

	reply = p.finalizeResponse(ctx, reply)
	quote := Quote(msg.SenderName, msg.Body)
	p.send(ctx, log, buildReply(msg.RoomID, reply, quote, msg.EventID))
}

// scanURLs runs unconditionally over the original body, independent of which
// branch handled the message. One URL's failure never blocks the rest.
func (p *Pipeline) scanURLs(ctx context.Context, log zerolog.Logger, msg Inbound) {
	for _, url := range urlscan.Extract(msg.Body) {
		desc := p.describeURL(ctx, log, msg.RoomID, url)
		if desc == "" {
			continue
		}
		p.send(ctx, log, buildReply(msg.RoomID, desc, Quote("", url), msg.EventID))
	}
}

// describeURL fetches one URL and asks the room's session for a description.
// Not-describable content (wrong type, too large) yields an empty string:
// those are silent no-ops, not user-facing errors.
func (p *Pipeline) describeURL(ctx context.Context, log zerolog.Logger, roomID id.RoomID, url string) string {
	data, mimeType, err := p.fetcher.Fetch(ctx, url)
	if errors.Is(err, fetch.ErrUnsupportedContentType) || errors.Is(err, fetch.ErrSizeLimitExceeded) {
		log.Debug().Err(err).Str("url", url).Msg("Skipping non-describable URL")
		return ""
	}
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("Failed to fetch URL content")
		return "Error while attempting to fetch " + url + "\n" + err.Error()
	}
	return p.describeBytes(ctx, log, roomID, data, mimeType)
}

// describeBytes asks the room's session to describe image bytes. A failed
// model call reduces to its error text so the room still sees an outcome.
func (p *Pipeline) describeBytes(ctx context.Context, log zerolog.Logger, roomID id.RoomID, data []byte, mimeType string) string {
	conv, err := p.sessions.GetOrCreate(ctx, roomID)
	if err != nil {
		log.Err(err).Msg("Failed to create conversation session")
		return err.Error()
	}
	descCtx, cancel := context.WithTimeout(ctx, p.modelTimeout)
	defer cancel()
	desc, err := conv.Describe(descCtx, data, mimeType)
	if err != nil {
		log.Warn().Err(err).Msg("Description call failed")
		return err.Error()
	}
	return desc
}

func (p *Pipeline) send(ctx context.Context, log zerolog.Logger, out Outbound) {
	if err := p.transport.Send(ctx, out); err != nil {
		log.Warn().Err(err).Msg("Failed to send outbound message")
	}
}
