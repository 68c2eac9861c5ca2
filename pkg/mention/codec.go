// Copyright 2024-2026 Aiku AI

// Package mention encodes bridge identities as platform-embeddable text and
// decodes such text back into structured tokens.
//
// Platforms in the bridge share no mention namespace, so a mention that
// cannot be rendered natively is embedded as literal text in the form
// "@[TAG] name(id)". The relay targeting platform TAG recovers it
// mechanically with [Codec.Decode].
package mention

import (
	"regexp"
	"strconv"

	"github.com/aiku/chatbridge/pkg/bridge"
)

// UnresolvedTag marks a mention whose target has no identity store record.
const UnresolvedTag = "UN"

// Token is one element of a decoded text, either a Text or a Mention.
type Token interface {
	isToken()
}

// Text is literal passthrough content.
type Text string

// Mention is a decoded mention with a display name and the target's
// numeric platform-native id.
type Mention struct {
	Name string
	ID   int64
}

func (Text) isToken()    {}
func (Mention) isToken() {}

// Codec encodes and decodes embedded mentions for one platform tag.
type Codec struct {
	tag     string
	pattern *regexp.Regexp
}

// NewCodec builds the codec for a platform tag. The decode pattern is
// "@[TAG] name(digits)" where the name contains neither '@' nor a newline.
func NewCodec(tag string) *Codec {
	return &Codec{
		tag:     tag,
		pattern: regexp.MustCompile(`@\[` + regexp.QuoteMeta(tag) + `\] ([^\n@]+)\(([0-9]+)\)`),
	}
}

// Tag returns the platform tag this codec decodes.
func (c *Codec) Tag() string {
	return c.tag
}

// Decode scans text left to right and splits it into Text and Mention
// tokens. Matching advances a cursor one leftmost match at a time, so the
// same literal mention appearing more than once decodes into separate
// tokens. Empty Text tokens are suppressed.
func (c *Codec) Decode(text string) []Token {
	var tokens []Token
	for {
		loc := c.pattern.FindStringSubmatchIndex(text)
		if loc == nil {
			break
		}
		if prefix := text[:loc[0]]; prefix != "" {
			tokens = append(tokens, Text(prefix))
		}
		name := text[loc[2]:loc[3]]
		id, err := strconv.ParseInt(text[loc[4]:loc[5]], 10, 64)
		if err != nil {
			// The digit group overflowed int64. Keep the match as text.
			tokens = append(tokens, Text(text[loc[0]:loc[1]]))
		} else {
			tokens = append(tokens, Mention{Name: name, ID: id})
		}
		text = text[loc[1]:]
	}
	if text != "" {
		tokens = append(tokens, Text(text))
	}
	return tokens
}

// Encode renders a mention in this codec's decodable form.
func (c *Codec) Encode(name string, id int64) string {
	return "@[" + c.tag + "] " + name + "(" + strconv.FormatInt(id, 10) + ")"
}

// EncodeUser renders a bridge user as decodable mention text for the user's
// home platform. The canonical display text already carries the
// "name(native_id)" form, so the result round-trips through the home
// platform's Decode.
func EncodeUser(u bridge.User) string {
	return "@" + u.DisplayString()
}

// UnresolvedText renders the sentinel for a mention target with no
// identity store record at all.
func UnresolvedText(target string) string {
	return "@[" + UnresolvedTag + "] " + target
}
