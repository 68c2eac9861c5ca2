// Copyright 2024-2026 Aiku AI

package relay

import (
	"github.com/aiku/chatbridge/pkg/bridge"
	"github.com/aiku/chatbridge/pkg/identity"
)

// ApplyUser resolves or creates the canonical bridge identity for a native
// account seen on the inbound side. The display text is rendered from the
// configured displayname template, so canonical labels stay uniform across
// platforms.
func ApplyUser(store *identity.Store, cfg *bridge.Config, platform, originID, name string) (bridge.User, error) {
	return store.GetOrCreate(bridge.UserSaveForm{
		OriginID:    originID,
		Platform:    platform,
		DisplayText: cfg.FormatDisplayname(bridge.DisplaynameParams{Name: name, ID: originID}),
	})
}
