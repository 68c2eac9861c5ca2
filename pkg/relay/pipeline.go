// Copyright 2024-2026 Aiku AI

// Package relay translates bridge-neutral messages into platform-native
// outbound messages.
//
// One [Pipeline] runs per bridged platform. It consumes messages from a bus
// subscription one at a time, resolves identities through the shared
// identity store, renders embedded mentions through the platform's mention
// codec, resolves reply targets through the shared message store, sends the
// assembled message through the platform client, and records the resulting
// native coordinates for future reply correlation.
//
// Translation is best effort: a segment that cannot be fully rendered
// degrades to a placeholder or is dropped, and a failed send skips
// correlation recording. No per-message failure stops the loop.
package relay

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/aiku/chatbridge/pkg/bridge"
	"github.com/aiku/chatbridge/pkg/identity"
	"github.com/aiku/chatbridge/pkg/mention"
)

// Placeholders rendered when a segment cannot be translated.
const (
	placeholderQuote       = "{quoted message}"
	placeholderNestedReply = "[reply]"
	placeholderImage       = "[image]"
	placeholderUnknown     = "{unsupported message}"
)

// Pipeline relays bus messages onto one platform.
type Pipeline struct {
	platform     string
	defaultGroup int64
	botID        int64

	users    *identity.Store
	messages *bridge.MessageStore
	codec    *mention.Codec
	client   PlatformClient
	fetch    ImageFetcher
	log      zerolog.Logger
}

// NewPipeline creates the pipeline for one configured platform. The
// identity store and message store are shared across pipelines; the codec
// is the destination platform's registered mention codec.
func NewPipeline(
	pc bridge.PlatformConfig,
	users *identity.Store,
	messages *bridge.MessageStore,
	codec *mention.Codec,
	client PlatformClient,
	fetch ImageFetcher,
	log zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		platform:     pc.Tag,
		defaultGroup: pc.GroupID,
		botID:        pc.BotID,
		users:        users,
		messages:     messages,
		codec:        codec,
		client:       client,
		fetch:        fetch,
		log:          log.With().Str("component", "pipeline").Str("platform", pc.Tag).Logger(),
	}
}

// Run consumes messages from sub until the subscription closes or ctx is
// cancelled. In-flight sends are not rolled back on shutdown.
func (p *Pipeline) Run(ctx context.Context, sub <-chan bridge.Message) {
	p.log.Info().Msg("Pipeline started")
	defer p.log.Info().Msg("Pipeline stopped")
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub:
			if !ok {
				return
			}
			p.handle(ctx, msg)
		}
	}
}

func (p *Pipeline) handle(ctx context.Context, msg bridge.Message) {
	groupID, ok := msg.Destinations[p.platform]
	if !ok {
		groupID = p.defaultGroup
	}
	if groupID == 0 {
		p.log.Debug().Str("message_id", msg.ID).Msg("Message not routed to this platform")
		return
	}

	// Keep the message around so later replies can quote it.
	p.messages.Add(msg)

	content := p.translate(ctx, msg, groupID)

	receipt, err := p.client.SendMessage(ctx, groupID, content)
	if err != nil {
		p.log.Error().Err(err).
			Str("message_id", msg.ID).
			Int64("group_id", groupID).
			Msg("Failed to send message")
		return
	}
	if receipt == nil || len(receipt.Seqs) == 0 {
		p.log.Warn().Str("message_id", msg.ID).Msg("Send receipt carried no sequence ids")
		return
	}
	nativeID := MakeGroupMessageID(groupID, receipt.Seqs[0])
	p.messages.RecordDelivery(msg.ID, p.platform, nativeID)
	p.log.Debug().
		Str("message_id", msg.ID).
		Str("native_id", nativeID).
		Msg("Relayed message")
}

// translate assembles the outbound content chain for one message.
func (p *Pipeline) translate(ctx context.Context, msg bridge.Message, groupID int64) []OutSegment {
	var out []OutSegment

	if msg.AvatarURL != "" {
		if img, ok := p.uploadImage(ctx, groupID, msg.AvatarURL); ok {
			out = append(out, img)
		}
	}

	out = append(out, OutText{Text: p.senderLine(msg.SenderID)})

	for _, seg := range msg.Chain {
		out = append(out, p.renderSegment(ctx, seg, groupID)...)
	}
	return out
}

// senderLine renders the author's display line. An unresolvable author is
// not fatal; the message is relayed with an unresolved display form.
func (p *Pipeline) senderLine(senderID string) string {
	if user, ok := p.users.Get(senderID); ok {
		return user.DisplayString() + "\n"
	}
	p.log.Warn().Str("sender_id", senderID).Msg("Sender has no bridge identity")
	return mention.UnresolvedText(senderID) + "\n"
}

func (p *Pipeline) renderSegment(ctx context.Context, seg bridge.Segment, groupID int64) []OutSegment {
	switch s := seg.(type) {
	case bridge.Plain:
		return p.renderPlain(s.Text)
	case bridge.At:
		return []OutSegment{p.renderAt(s.Target)}
	case bridge.Reply:
		return []OutSegment{p.renderReply(s)}
	case bridge.Image:
		if img, ok := p.uploadImage(ctx, groupID, s.Handle); ok {
			return []OutSegment{img}
		}
		// Best-effort degradation: a broken image drops silently instead
		// of aborting the whole message.
		return nil
	default:
		return []OutSegment{OutText{Text: placeholderUnknown}}
	}
}

// renderPlain decodes embedded mentions meant for this platform and renders
// each token natively.
func (p *Pipeline) renderPlain(text string) []OutSegment {
	tokens := p.codec.Decode(text)
	out := make([]OutSegment, 0, len(tokens))
	for _, token := range tokens {
		switch t := token.(type) {
		case mention.Text:
			out = append(out, OutText{Text: string(t)})
		case mention.Mention:
			out = append(out, OutMention{UserID: t.ID})
		}
	}
	return out
}

// renderAt resolves a bridge-level mention. A target with a native identity
// on this platform becomes a structured mention; a known target without one
// falls back to its encoded display text; an unknown target renders the
// unresolved sentinel.
func (p *Pipeline) renderAt(target string) OutSegment {
	user, ok := p.users.Get(target)
	if !ok {
		return OutText{Text: mention.UnresolvedText(target)}
	}
	if native, ok := p.nativeIdentity(user); ok {
		if id, err := strconv.ParseInt(native.OriginID, 10, 64); err == nil {
			return OutMention{UserID: id}
		}
	}
	return OutText{Text: user.DisplayString()}
}

// nativeIdentity finds the user's identity on this pipeline's platform:
// the user itself if this is its home platform, otherwise the identity
// ref-linked to it.
func (p *Pipeline) nativeIdentity(user bridge.User) (bridge.User, bool) {
	if user.Platform == p.platform {
		return user, true
	}
	return p.users.FindLinked(user.ID, p.platform)
}

// renderReply resolves a reply target through the message store. Only a
// message previously relayed to this platform can be quoted natively;
// everything else degrades to a plain placeholder.
func (p *Pipeline) renderReply(s bridge.Reply) OutSegment {
	if s.MessageID == "" {
		return OutText{Text: placeholderQuote}
	}
	original, ok := p.messages.Get(s.MessageID)
	if !ok {
		return OutText{Text: "> " + placeholderQuote + "\n"}
	}
	nativeID, ok := p.messages.ResolveReplyTarget(s.MessageID, p.platform)
	if !ok {
		return OutText{Text: placeholderQuote}
	}
	_, seq, err := ParseGroupMessageID(nativeID)
	if err != nil {
		p.log.Warn().Err(err).Str("native_id", nativeID).Msg("Bad correlation ref")
		return OutText{Text: placeholderQuote}
	}
	return OutQuote{
		Seq:     seq,
		Sender:  p.quoteSender(original.SenderID),
		Content: p.flatten(original.Chain),
	}
}

// quoteSender attributes the quote to the original author's native account
// when it lives on this platform, otherwise to the bridge's own account.
func (p *Pipeline) quoteSender(senderID string) int64 {
	user, ok := p.users.Get(senderID)
	if ok && user.Platform == p.platform {
		if id, err := strconv.ParseInt(user.OriginID, 10, 64); err == nil {
			return id
		}
	}
	return p.botID
}

// flatten renders quoted content at depth 1: nested replies and images
// collapse to short placeholders.
func (p *Pipeline) flatten(chain []bridge.Segment) []OutSegment {
	var out []OutSegment
	for _, seg := range chain {
		switch s := seg.(type) {
		case bridge.Plain:
			out = append(out, OutText{Text: s.Text})
		case bridge.At:
			out = append(out, p.renderAt(s.Target))
		case bridge.Reply:
			out = append(out, OutText{Text: placeholderNestedReply})
		case bridge.Image:
			out = append(out, OutText{Text: placeholderImage})
		}
	}
	return out
}

// uploadImage fetches image bytes from a handle and uploads them to the
// platform. Both steps are best effort.
func (p *Pipeline) uploadImage(ctx context.Context, groupID int64, handle string) (OutImage, bool) {
	data, err := p.fetch.Fetch(ctx, handle)
	if err != nil {
		p.log.Warn().Err(err).Str("handle", handle).Msg("Failed to fetch image")
		return OutImage{}, false
	}
	imageID, err := p.client.UploadImage(ctx, groupID, data)
	if err != nil {
		p.log.Warn().Err(err).Str("handle", handle).Msg("Failed to upload image")
		return OutImage{}, false
	}
	return OutImage{ImageID: imageID}, true
}
