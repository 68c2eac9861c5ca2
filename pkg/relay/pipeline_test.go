// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
	"go.mau.fi/util/ptr"

	"github.com/aiku/chatbridge/pkg/bridge"
	"github.com/aiku/chatbridge/pkg/identity"
	"github.com/aiku/chatbridge/pkg/mention"
)

// fakeClient records outbound traffic and fabricates sequence ids.
type fakeClient struct {
	sent       [][]OutSegment
	groups     []int64
	uploads    [][]byte
	nextSeq    int32
	failSend   bool
	failUpload bool
}

func (c *fakeClient) UploadImage(_ context.Context, _ int64, data []byte) (string, error) {
	if c.failUpload {
		return "", errors.New("upload rejected")
	}
	c.uploads = append(c.uploads, data)
	return "img-1", nil
}

func (c *fakeClient) SendMessage(_ context.Context, groupID int64, content []OutSegment) (*SendReceipt, error) {
	if c.failSend {
		return nil, errors.New("send failed")
	}
	c.sent = append(c.sent, content)
	c.groups = append(c.groups, groupID)
	c.nextSeq++
	return &SendReceipt{Seqs: []int32{c.nextSeq}}, nil
}

// fakeFetcher serves image bytes by handle.
type fakeFetcher struct {
	data map[string][]byte
	fail bool
}

func (f *fakeFetcher) Fetch(_ context.Context, handle string) ([]byte, error) {
	if f.fail {
		return nil, errors.New("fetch failed")
	}
	data, ok := f.data[handle]
	if !ok {
		return nil, errors.New("no such handle")
	}
	return data, nil
}

type testEnv struct {
	pipeline *Pipeline
	client   *fakeClient
	fetch    *fakeFetcher
	users    *identity.Store
	messages *bridge.MessageStore
}

func newTestEnv(t *testing.T, tag string) *testEnv {
	t.Helper()
	users, err := identity.NewStore(filepath.Join(t.TempDir(), "bridge_user.json"), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	client := &fakeClient{}
	fetch := &fakeFetcher{data: map[string][]byte{}}
	messages := bridge.NewMessageStore()
	pc := bridge.PlatformConfig{Tag: tag, GroupID: 987, BotID: 10001}
	return &testEnv{
		pipeline: NewPipeline(pc, users, messages, mention.NewCodec(tag), client, fetch, zerolog.Nop()),
		client:   client,
		fetch:    fetch,
		users:    users,
		messages: messages,
	}
}

func (e *testEnv) mustUser(t *testing.T, originID, platform, display string) bridge.User {
	t.Helper()
	user, err := e.users.GetOrCreate(bridge.UserSaveForm{
		OriginID:    originID,
		Platform:    platform,
		DisplayText: display,
	})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	return user
}

func (e *testEnv) link(t *testing.T, from bridge.User, to bridge.User) bridge.User {
	t.Helper()
	from.RefID = ptr.Ptr(to.ID)
	if count, err := e.users.BatchUpsert([]bridge.User{from}); err != nil || count != 1 {
		t.Fatalf("BatchUpsert: got (%d, %v)", count, err)
	}
	return from
}

func TestTranslateFallbackMention(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "DC")
	sender := env.mustUser(t, "1", "QQ", "Sender(1)")
	target := env.mustUser(t, "5", "QQ", "X(5)")

	env.pipeline.handle(context.Background(), bridge.Message{
		ID:       "m1",
		SenderID: sender.ID,
		Chain: []bridge.Segment{
			bridge.Plain{Text: "hello "},
			bridge.At{Target: target.ID},
		},
		Destinations: map[string]int64{"DC": 555},
	})

	if len(env.client.sent) != 1 {
		t.Fatalf("sent: got %d messages, want 1", len(env.client.sent))
	}
	want := []OutSegment{
		OutText{Text: "[QQ] Sender(1)\n"},
		OutText{Text: "hello "},
		OutText{Text: "[QQ] X(5)"},
	}
	if !reflect.DeepEqual(env.client.sent[0], want) {
		t.Errorf("content: got %#v, want %#v", env.client.sent[0], want)
	}
	if env.client.groups[0] != 555 {
		t.Errorf("group: got %d, want 555", env.client.groups[0])
	}
}

func TestTranslateLinkedMention(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "DC")
	sender := env.mustUser(t, "1", "QQ", "Sender(1)")
	target := env.mustUser(t, "5", "QQ", "X(5)")
	dcIdentity := env.mustUser(t, "777", "DC", "x#1")
	env.link(t, dcIdentity, target)

	env.pipeline.handle(context.Background(), bridge.Message{
		ID:           "m1",
		SenderID:     sender.ID,
		Chain:        []bridge.Segment{bridge.At{Target: target.ID}},
		Destinations: map[string]int64{"DC": 555},
	})

	want := []OutSegment{
		OutText{Text: "[QQ] Sender(1)\n"},
		OutMention{UserID: 777},
	}
	if !reflect.DeepEqual(env.client.sent[0], want) {
		t.Errorf("content: got %#v, want %#v", env.client.sent[0], want)
	}
}

func TestTranslateNativeMention(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "QQ")
	sender := env.mustUser(t, "1", "QQ", "Sender(1)")
	target := env.mustUser(t, "5", "QQ", "X(5)")

	env.pipeline.handle(context.Background(), bridge.Message{
		ID:           "m1",
		SenderID:     sender.ID,
		Chain:        []bridge.Segment{bridge.At{Target: target.ID}},
		Destinations: map[string]int64{"QQ": 987},
	})

	want := []OutSegment{
		OutText{Text: "[QQ] Sender(1)\n"},
		OutMention{UserID: 5},
	}
	if !reflect.DeepEqual(env.client.sent[0], want) {
		t.Errorf("content: got %#v, want %#v", env.client.sent[0], want)
	}
}

func TestTranslateUnresolvedMention(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "QQ")
	sender := env.mustUser(t, "1", "QQ", "Sender(1)")

	env.pipeline.handle(context.Background(), bridge.Message{
		ID:           "m1",
		SenderID:     sender.ID,
		Chain:        []bridge.Segment{bridge.At{Target: "no-such-user"}},
		Destinations: map[string]int64{"QQ": 987},
	})

	want := []OutSegment{
		OutText{Text: "[QQ] Sender(1)\n"},
		OutText{Text: "@[UN] no-such-user"},
	}
	if !reflect.DeepEqual(env.client.sent[0], want) {
		t.Errorf("content: got %#v, want %#v", env.client.sent[0], want)
	}
}

func TestTranslatePlainDecodesEmbeddedMention(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "QQ")
	sender := env.mustUser(t, "1", "QQ", "Sender(1)")

	env.pipeline.handle(context.Background(), bridge.Message{
		ID:           "m1",
		SenderID:     sender.ID,
		Chain:        []bridge.Segment{bridge.Plain{Text: "hi @[QQ] Alice(111)!"}},
		Destinations: map[string]int64{"QQ": 987},
	})

	want := []OutSegment{
		OutText{Text: "[QQ] Sender(1)\n"},
		OutText{Text: "hi "},
		OutMention{UserID: 111},
		OutText{Text: "!"},
	}
	if !reflect.DeepEqual(env.client.sent[0], want) {
		t.Errorf("content: got %#v, want %#v", env.client.sent[0], want)
	}
}

func TestUnknownSenderFallback(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "QQ")

	env.pipeline.handle(context.Background(), bridge.Message{
		ID:           "m1",
		SenderID:     "ghost",
		Chain:        []bridge.Segment{bridge.Plain{Text: "hi"}},
		Destinations: map[string]int64{"QQ": 987},
	})

	want := []OutSegment{
		OutText{Text: "@[UN] ghost\n"},
		OutText{Text: "hi"},
	}
	if !reflect.DeepEqual(env.client.sent[0], want) {
		t.Errorf("content: got %#v, want %#v", env.client.sent[0], want)
	}
}

func TestUnknownSegmentPlaceholder(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "QQ")
	sender := env.mustUser(t, "1", "QQ", "Sender(1)")

	env.pipeline.handle(context.Background(), bridge.Message{
		ID:           "m1",
		SenderID:     sender.ID,
		Chain:        []bridge.Segment{bridge.Unknown{Kind: "sticker"}},
		Destinations: map[string]int64{"QQ": 987},
	})

	want := []OutSegment{
		OutText{Text: "[QQ] Sender(1)\n"},
		OutText{Text: "{unsupported message}"},
	}
	if !reflect.DeepEqual(env.client.sent[0], want) {
		t.Errorf("content: got %#v, want %#v", env.client.sent[0], want)
	}
}

func TestImageUploadAndAvatarBestEffort(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "QQ")
	sender := env.mustUser(t, "1", "QQ", "Sender(1)")
	env.fetch.data["https://example.invalid/avatar.png"] = []byte{1, 2}
	env.fetch.data["https://example.invalid/pic.png"] = []byte{3, 4, 5}

	env.pipeline.handle(context.Background(), bridge.Message{
		ID:           "m1",
		SenderID:     sender.ID,
		AvatarURL:    "https://example.invalid/avatar.png",
		Chain:        []bridge.Segment{bridge.Image{Handle: "https://example.invalid/pic.png"}},
		Destinations: map[string]int64{"QQ": 987},
	})

	want := []OutSegment{
		OutImage{ImageID: "img-1"},
		OutText{Text: "[QQ] Sender(1)\n"},
		OutImage{ImageID: "img-1"},
	}
	if !reflect.DeepEqual(env.client.sent[0], want) {
		t.Errorf("content: got %#v, want %#v", env.client.sent[0], want)
	}
	if len(env.client.uploads) != 2 {
		t.Errorf("uploads: got %d, want 2", len(env.client.uploads))
	}
}

func TestImageDroppedOnFetchFailure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "QQ")
	sender := env.mustUser(t, "1", "QQ", "Sender(1)")
	env.fetch.fail = true

	env.pipeline.handle(context.Background(), bridge.Message{
		ID:           "m1",
		SenderID:     sender.ID,
		Chain:        []bridge.Segment{bridge.Image{Handle: "broken"}},
		Destinations: map[string]int64{"QQ": 987},
	})

	want := []OutSegment{OutText{Text: "[QQ] Sender(1)\n"}}
	if !reflect.DeepEqual(env.client.sent[0], want) {
		t.Errorf("content: got %#v, want %#v", env.client.sent[0], want)
	}
}

func TestCorrelationRecordedAfterSend(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "QQ")
	sender := env.mustUser(t, "1", "QQ", "Sender(1)")

	env.pipeline.handle(context.Background(), bridge.Message{
		ID:           "m1",
		SenderID:     sender.ID,
		Chain:        []bridge.Segment{bridge.Plain{Text: "hi"}},
		Destinations: map[string]int64{"QQ": 987},
	})

	nativeID, ok := env.messages.ResolveReplyTarget("m1", "QQ")
	if !ok {
		t.Fatal("ResolveReplyTarget: got absent, want recorded coordinate")
	}
	if nativeID != MakeGroupMessageID(987, 1) {
		t.Errorf("native id: got %q, want %q", nativeID, MakeGroupMessageID(987, 1))
	}
}

func TestSendFailureSkipsCorrelation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "QQ")
	sender := env.mustUser(t, "1", "QQ", "Sender(1)")
	env.client.failSend = true

	env.pipeline.handle(context.Background(), bridge.Message{
		ID:           "m1",
		SenderID:     sender.ID,
		Chain:        []bridge.Segment{bridge.Plain{Text: "hi"}},
		Destinations: map[string]int64{"QQ": 987},
	})

	if _, ok := env.messages.ResolveReplyTarget("m1", "QQ"); ok {
		t.Error("ResolveReplyTarget after failed send: got match, want absent")
	}
}

func TestReplyRendersStructuredQuote(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "QQ")
	author := env.mustUser(t, "42", "QQ", "Author(42)")
	replier := env.mustUser(t, "1", "QQ", "Replier(1)")

	original := bridge.Message{
		ID:       "m1",
		SenderID: author.ID,
		Chain: []bridge.Segment{
			bridge.Plain{Text: "original text"},
			bridge.Reply{MessageID: "m0"},
			bridge.Image{Handle: "pic"},
		},
		Destinations: map[string]int64{"QQ": 987},
	}
	env.pipeline.handle(context.Background(), original)

	env.pipeline.handle(context.Background(), bridge.Message{
		ID:           "m2",
		SenderID:     replier.ID,
		Chain:        []bridge.Segment{bridge.Reply{MessageID: "m1"}},
		Destinations: map[string]int64{"QQ": 987},
	})

	content := env.client.sent[1]
	if len(content) != 2 {
		t.Fatalf("content: got %d segments, want 2", len(content))
	}
	quote, ok := content[1].(OutQuote)
	if !ok {
		t.Fatalf("segment 1: got %#v, want OutQuote", content[1])
	}
	if quote.Seq != 1 {
		t.Errorf("quote seq: got %d, want 1", quote.Seq)
	}
	if quote.Sender != 42 {
		t.Errorf("quote sender: got %d, want 42", quote.Sender)
	}
	// Nested reply and image flatten to placeholders at depth 1.
	wantQuoted := []OutSegment{
		OutText{Text: "original text"},
		OutText{Text: "[reply]"},
		OutText{Text: "[image]"},
	}
	if !reflect.DeepEqual(quote.Content, wantQuoted) {
		t.Errorf("quoted content: got %#v, want %#v", quote.Content, wantQuoted)
	}
}

func TestReplyQuoteAttributedToBotForForeignAuthor(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "QQ")
	author := env.mustUser(t, "9000", "DC", "bob#2")
	replier := env.mustUser(t, "1", "QQ", "Replier(1)")

	env.pipeline.handle(context.Background(), bridge.Message{
		ID:           "m1",
		SenderID:     author.ID,
		Chain:        []bridge.Segment{bridge.Plain{Text: "from discord"}},
		Destinations: map[string]int64{"QQ": 987},
	})
	env.pipeline.handle(context.Background(), bridge.Message{
		ID:           "m2",
		SenderID:     replier.ID,
		Chain:        []bridge.Segment{bridge.Reply{MessageID: "m1"}},
		Destinations: map[string]int64{"QQ": 987},
	})

	quote, ok := env.client.sent[1][1].(OutQuote)
	if !ok {
		t.Fatalf("segment 1: got %#v, want OutQuote", env.client.sent[1][1])
	}
	if quote.Sender != 10001 {
		t.Errorf("quote sender: got %d, want bot id 10001", quote.Sender)
	}
}

func TestReplyPlaceholders(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "QQ")
	sender := env.mustUser(t, "1", "QQ", "Sender(1)")

	// Known message that was never relayed to this platform.
	env.messages.Add(bridge.Message{ID: "m-unrelayed", SenderID: sender.ID})

	tests := []struct {
		name  string
		reply bridge.Reply
		want  OutSegment
	}{
		{"no id", bridge.Reply{}, OutText{Text: "{quoted message}"}},
		{"unknown message", bridge.Reply{MessageID: "m-unknown"}, OutText{Text: "> {quoted message}\n"}},
		{"not relayed here", bridge.Reply{MessageID: "m-unrelayed"}, OutText{Text: "{quoted message}"}},
	}
	for _, tt := range tests {
		got := env.pipeline.renderReply(tt.reply)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: got %#v, want %#v", tt.name, got, tt.want)
		}
	}
}

func TestUnroutedMessageSkipped(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "QQ")
	env.pipeline.defaultGroup = 0
	sender := env.mustUser(t, "1", "QQ", "Sender(1)")

	env.pipeline.handle(context.Background(), bridge.Message{
		ID:           "m1",
		SenderID:     sender.ID,
		Chain:        []bridge.Segment{bridge.Plain{Text: "hi"}},
		Destinations: map[string]int64{"DC": 555},
	})

	if len(env.client.sent) != 0 {
		t.Errorf("sent: got %d messages, want 0", len(env.client.sent))
	}
}

func TestRunDrainsAndStopsOnClose(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "QQ")
	sender := env.mustUser(t, "1", "QQ", "Sender(1)")

	bus := bridge.NewBus(4, zerolog.Nop())
	sub, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		env.pipeline.Run(context.Background(), sub)
	}()

	bus.Publish(bridge.Message{
		ID:           "m1",
		SenderID:     sender.ID,
		Chain:        []bridge.Segment{bridge.Plain{Text: "hi"}},
		Destinations: map[string]int64{"QQ": 987},
	})
	bus.Close()
	<-done

	if len(env.client.sent) != 1 {
		t.Errorf("sent: got %d messages, want 1", len(env.client.sent))
	}
}
