// Copyright 2024-2026 Aiku AI

package main

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/aiku/chatbridge/pkg/relay"
)

// consoleClient is a PlatformClient that writes outbound messages to the
// log and fabricates sequence ids, so the core can run end to end without
// a real protocol adapter attached.
type consoleClient struct {
	log zerolog.Logger
	seq atomic.Int32
}

var _ relay.PlatformClient = (*consoleClient)(nil)

func (c *consoleClient) UploadImage(_ context.Context, groupID int64, data []byte) (string, error) {
	c.log.Debug().Int64("group_id", groupID).Int("bytes", len(data)).Msg("Image upload")
	return "img-" + strconv.Itoa(len(data)), nil
}

func (c *consoleClient) SendMessage(_ context.Context, groupID int64, content []relay.OutSegment) (*relay.SendReceipt, error) {
	seq := c.seq.Add(1)
	c.log.Info().
		Int64("group_id", groupID).
		Int32("seq", seq).
		Str("content", renderSegments(content)).
		Msg("Outbound message")
	return &relay.SendReceipt{Seqs: []int32{seq}}, nil
}

func renderSegments(content []relay.OutSegment) string {
	var sb strings.Builder
	for _, seg := range content {
		switch s := seg.(type) {
		case relay.OutText:
			sb.WriteString(s.Text)
		case relay.OutMention:
			sb.WriteString("@" + strconv.FormatInt(s.UserID, 10))
		case relay.OutImage:
			sb.WriteString("[image " + s.ImageID + "]")
		case relay.OutQuote:
			sb.WriteString("> " + renderSegments(s.Content) + "\n")
		}
	}
	return sb.String()
}
