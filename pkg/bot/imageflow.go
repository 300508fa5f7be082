package bot

import (
	"context"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"
)

const generatedFileName = "generated.jpeg"
const generatedMimeType = "image/jpeg"

// runImageWorkflow generates images for prompt and, per blob in order,
// uploads it, sends a media message, and loops a short description of the
// bytes back through the room's session. One image's failure never stops the
// rest. Zero generated images produce a single failure notice quoting the
// prompt; one or more produce no summary at all.
func (p *Pipeline) runImageWorkflow(ctx context.Context, log zerolog.Logger, msg Inbound, prompt string) {
	log = log.With().Str("workflow", "imagegen").Logger()

	blobs, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		// Provider failures are absorbed at this boundary and reduce to
		// an empty sequence.
		log.Warn().Err(err).Msg("Image generation failed")
		blobs = nil
	}

	for i, blob := range blobs {
		urlText := p.sendImage(ctx, log, msg.RoomID, blob)

		desc := p.describeBytes(ctx, log, msg.RoomID, blob, generatedMimeType)
		if desc == "" {
			continue
		}
		followup := Quote("", urlText) + "\n" + desc
		p.send(ctx, log, Outbound{RoomID: msg.RoomID, Body: followup})
		log.Debug().Int("index", i).Msg("Sent generated image and description")
	}

	if len(blobs) == 0 {
		notice := "Failed to generate any images for prompt " + msg.Body
		quote := Quote(msg.SenderName, msg.Body)
		p.send(ctx, log, buildReply(msg.RoomID, notice, quote, msg.EventID))
	}
}

// sendImage uploads one generated blob and sends the media message. The
// returned text is the media's download URL, or the upload error standing in
// for it, either way delivered to the room.
func (p *Pipeline) sendImage(ctx context.Context, log zerolog.Logger, roomID id.RoomID, blob []byte) string {
	upCtx, cancel := context.WithTimeout(ctx, p.uploadTimeout)
	defer cancel()

	up, err := p.transport.UploadMedia(upCtx, blob, generatedFileName, generatedMimeType)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to upload generated image")
		urlText := err.Error()
		p.send(ctx, log, Outbound{RoomID: roomID, Body: urlText})
		return urlText
	}

	p.send(ctx, log, Outbound{
		RoomID: roomID,
		Body:   up.DownloadURL,
		Media: &MediaRef{
			URI:      up.URI,
			FileName: generatedFileName,
			MimeType: generatedMimeType,
			Size:     len(blob),
			Width:    up.Width,
			Height:   up.Height,
		},
	})
	return up.DownloadURL
}
