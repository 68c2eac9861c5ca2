// Copyright 2024-2026 Aiku AI

// Package bridge holds the platform-neutral domain model of the chat
// bridge: canonical user identities, bridge messages and their content
// segments, the broadcast message bus, the message store that correlates
// bridge messages with their platform-native renderings, and the yaml
// configuration.
//
// # Core Types
//
// [User] is the canonical cross-platform identity of one platform account.
// The (origin id, platform) pair is unique across the identity store, and
// an optional ref link ties an identity to its counterpart on another
// platform.
//
// [Message] is the bridge-neutral form of one chat message: an ordered
// chain of [Segment] variants ([Plain], [At], [Reply], [Image]) plus
// per-platform destination routing.
//
// [Bus] broadcasts messages to one subscriber per platform pipeline with
// bounded buffers; [MessageStore] accumulates one [MessageRef] per platform
// a message was relayed to, which is what makes cross-platform reply
// threading possible.
package bridge
