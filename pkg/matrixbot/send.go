package matrixbot

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/format"

	"github.com/jjj333-p/gemini-matrix/pkg/bot"
)

// Send delivers one outbound message. Media references become m.image
// events; everything else is rendered as markdown text. Implements
// bot.Transport.
func (b *Bot) Send(ctx context.Context, out bot.Outbound) error {
	var content event.MessageEventContent
	if out.Media != nil {
		content = event.MessageEventContent{
			MsgType: event.MsgImage,
			Body:    out.Media.FileName,
			URL:     out.Media.URI,
			Info: &event.FileInfo{
				MimeType: out.Media.MimeType,
				Size:     out.Media.Size,
				Width:    out.Media.Width,
				Height:   out.Media.Height,
			},
		}
	} else {
		content = format.RenderMarkdown(out.Body, true, false)
	}
	if out.InReplyTo != "" {
		content.RelatesTo = &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: out.InReplyTo},
		}
	}

	_, err := b.cli.SendMessageEvent(ctx, out.RoomID, event.EventMessage, &content)
	if err != nil {
		return fmt.Errorf("failed to send message to %s: %w", out.RoomID, err)
	}
	return nil
}

// UploadMedia uploads raw bytes to the homeserver's media repo and returns
// both the mxc URI and its plain HTTP download form. Implements
// bot.Transport.
func (b *Bot) UploadMedia(ctx context.Context, data []byte, fileName, mimeType string) (bot.UploadedMedia, error) {
	resp, err := b.cli.UploadMedia(ctx, mautrix.ReqUploadMedia{
		ContentBytes:  data,
		ContentLength: int64(len(data)),
		ContentType:   mimeType,
		FileName:      fileName,
	})
	if err != nil {
		return bot.UploadedMedia{}, fmt.Errorf("failed to upload %s: %w", fileName, err)
	}

	up := bot.UploadedMedia{
		URI:         resp.ContentURI.CUString(),
		DownloadURL: b.cli.BuildClientURL("v1", "media", "download", resp.ContentURI.Homeserver, resp.ContentURI.FileID),
	}
	up.Width, up.Height = imageDimensions(data)
	return up, nil
}

// imageDimensions probes the byte stream for image dimensions. Returns zeros
// for anything the registered decoders don't recognize.
func imageDimensions(data []byte) (width, height int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
