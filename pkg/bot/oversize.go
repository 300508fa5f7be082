package bot

import (
	"context"

	"maunium.net/go/mautrix/format"
)

const (
	// oversizeThreshold is the longest reply delivered verbatim, in runes.
	oversizeThreshold = 315
	// truncateAt is how many runes of an oversized reply stay in the room.
	truncateAt = 300

	truncationSuffix = " { truncated } \n"
)

// finalizeResponse returns text unchanged when it fits a room message.
// Oversized text is rendered to HTML, uploaded, and replaced with a
// truncated body linking to the full document. The reply is delivered even
// when the upload fails; the error text stands in for the link. Both the
// threshold and the cut count runes so a multi-byte character is never
// split.
func (p *Pipeline) finalizeResponse(ctx context.Context, text string) string {
	runes := []rune(text)
	if len(runes) <= oversizeThreshold {
		return text
	}

	rendered := format.RenderMarkdown(text, true, false)
	html := rendered.FormattedBody
	if html == "" {
		html = rendered.Body
	}

	upCtx, cancel := context.WithTimeout(ctx, p.uploadTimeout)
	defer cancel()
	link := ""
	up, err := p.transport.UploadMedia(upCtx, []byte(html), "o.html", "text/html")
	if err != nil {
		p.log.Warn().Err(err).Msg("Failed to upload oversized response document")
		link = err.Error()
	} else {
		link = up.DownloadURL
	}

	return string(runes[:truncateAt]) + truncationSuffix + link
}
