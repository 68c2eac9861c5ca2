// Copyright 2024-2026 Aiku AI

package relay

import "context"

// OutSegment is one element of an assembled platform-native message.
// Exactly the Out* types in this package implement it.
type OutSegment interface {
	isOutSegment()
}

// OutText is native literal text.
type OutText struct {
	Text string
}

// OutMention is a native structured mention of a platform account.
type OutMention struct {
	UserID int64
}

// OutImage references an image previously uploaded through the platform
// client.
type OutImage struct {
	ImageID string
}

// OutQuote is a structured reply quote of a native message.
type OutQuote struct {
	// Seq is the quoted message's native sequence number.
	Seq int32
	// Sender is the native account the quote is attributed to.
	Sender int64
	// Content is the flattened quoted content.
	Content []OutSegment
}

func (OutText) isOutSegment()    {}
func (OutMention) isOutSegment() {}
func (OutImage) isOutSegment()   {}
func (OutQuote) isOutSegment()   {}

// SendReceipt is the platform's acknowledgement of a sent message.
type SendReceipt struct {
	// Seqs are the native sequence numbers assigned to the message. The
	// first one keys reply correlation.
	Seqs []int32
}

// PlatformClient is the outbound boundary to one platform's protocol
// client. Both methods may fail and are treated as recoverable: the
// pipeline degrades or skips, it never crashes.
type PlatformClient interface {
	// UploadImage uploads image bytes for use in the given group and
	// returns the platform's handle for it.
	UploadImage(ctx context.Context, groupID int64, data []byte) (string, error)
	// SendMessage dispatches an assembled message to the given group.
	SendMessage(ctx context.Context, groupID int64, content []OutSegment) (*SendReceipt, error)
}

// ImageFetcher loads image bytes from a bridge-level handle.
type ImageFetcher interface {
	Fetch(ctx context.Context, handle string) ([]byte, error)
}
