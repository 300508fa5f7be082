package bot

import (
	"context"

	"maunium.net/go/mautrix/id"
)

// Inbound is one room message delivered by the chat transport.
type Inbound struct {
	RoomID     id.RoomID
	Sender     id.UserID
	SenderName string
	Body       string
	EventID    id.EventID
}

// MediaRef points a message at already-uploaded media.
type MediaRef struct {
	URI      id.ContentURIString
	FileName string
	MimeType string
	Size     int
	Width    int
	Height   int
}

// Outbound is a message the pipeline hands to the transport. Fire and
// forget; no delivery receipt is tracked.
type Outbound struct {
	RoomID    id.RoomID
	Body      string
	InReplyTo id.EventID
	Media     *MediaRef
}

// UploadedMedia is the result of a successful media upload.
type UploadedMedia struct {
	URI id.ContentURIString
	// DownloadURL is the plain HTTP form of URI, usable in message text.
	DownloadURL string
	// Width and Height are probed from the bytes for image uploads and
	// zero otherwise.
	Width  int
	Height int
}

// Transport abstracts the chat layer. The pipeline only composes messages
// and uploads bytes; connecting, joining and delivery live behind this.
type Transport interface {
	Send(ctx context.Context, out Outbound) error
	UploadMedia(ctx context.Context, data []byte, fileName, mimeType string) (UploadedMedia, error)
}

// ImageGenerator is the image-generation collaborator. An empty result with
// a nil error means the backend produced nothing, which is not an error.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([][]byte, error)
}

// ImageFetcher is the URL fetch collaborator. Gating outcomes are reported
// with fetch.ErrUnsupportedContentType and fetch.ErrSizeLimitExceeded.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (data []byte, mimeType string, err error)
}
