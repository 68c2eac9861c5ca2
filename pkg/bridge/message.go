// Copyright 2024-2026 Aiku AI

package bridge

// Message is the bridge-neutral representation of one chat message as
// published on the bus.
type Message struct {
	// ID identifies the message at the bridge level, independent of any
	// platform's native message coordinates.
	ID string
	// SenderID is the author's canonical User.ID.
	SenderID string
	// AvatarURL optionally points at the author's avatar image.
	AvatarURL string
	// Chain is the ordered sequence of content segments.
	Chain []Segment
	// Destinations maps a platform tag to the native group/channel the
	// message should be relayed to on that platform. A pipeline whose tag
	// is absent skips the message.
	Destinations map[string]int64
}

// Segment is one element of a message content chain. Exactly the types in
// this package implement it.
type Segment interface {
	isSegment()
}

// Plain is literal text. It may itself carry encoded mentions meant for the
// destination platform; renderers pass it through the mention codec.
type Plain struct {
	Text string
}

// At mentions a bridge user by canonical id.
type At struct {
	// Target is the mentioned User.ID.
	Target string
}

// Reply quotes an earlier bridge message. MessageID may be empty when the
// source platform did not supply one.
type Reply struct {
	MessageID string
}

// Image references image content by a fetchable handle (typically a URL).
type Image struct {
	Handle string
}

// Unknown stands in for content variants not yet modeled. Renderers emit a
// generic placeholder for it instead of failing.
type Unknown struct {
	Kind string
}

func (Plain) isSegment()   {}
func (At) isSegment()      {}
func (Reply) isSegment()   {}
func (Image) isSegment()   {}
func (Unknown) isSegment() {}

// MessageRef correlates a bridge message with its rendered form on one
// platform. A message accumulates one ref per platform it was relayed to.
type MessageRef struct {
	Platform string
	OriginID string
}
