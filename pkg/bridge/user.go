// Copyright 2024-2026 Aiku AI

package bridge

// User is the canonical cross-platform identity of one platform account.
//
// The (OriginID, Platform) pair is unique across the identity store. RefID
// optionally points at another User's ID, meaning "this identity is linked
// to that identity" (typically the same human on another platform). The
// link is directional and not automatically symmetric.
type User struct {
	// ID is globally unique, immutable, and assigned once at creation.
	ID string `json:"id"`
	// OriginID is the account's native identifier on its home platform.
	OriginID string `json:"origin_id"`
	// Platform is the home platform tag, e.g. "QQ".
	Platform string `json:"platform"`
	// DisplayText is the platform-supplied human-readable label. It is not
	// guaranteed unique and commonly has the form "name(native_id)".
	DisplayText string `json:"display_text"`
	// RefID references the linked User's ID, if any.
	RefID *string `json:"ref_id"`
}

// DisplayString renders the identity as platform-embeddable text.
func (u User) DisplayString() string {
	return "[" + u.Platform + "] " + u.DisplayText
}

// UserSaveForm is the transient input for creating a User. It is never
// persisted standalone.
type UserSaveForm struct {
	OriginID    string
	Platform    string
	DisplayText string
}
