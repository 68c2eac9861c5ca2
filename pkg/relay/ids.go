// Copyright 2024-2026 Aiku AI

package relay

import (
	"fmt"
	"strconv"
	"strings"
)

// MakeGroupMessageID encodes a platform-native message coordinate pair
// (group id + message sequence number) as a single opaque string.
func MakeGroupMessageID(groupID int64, seq int32) string {
	return strconv.FormatInt(groupID, 10) + "|" + strconv.FormatInt(int64(seq), 10)
}

// ParseGroupMessageID decodes a string produced by MakeGroupMessageID back
// into its coordinate pair.
func ParseGroupMessageID(id string) (groupID int64, seq int32, err error) {
	group, seqStr, ok := strings.Cut(id, "|")
	if !ok {
		return 0, 0, fmt.Errorf("invalid group message id %q", id)
	}
	groupID, err = strconv.ParseInt(group, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid group id in %q: %w", id, err)
	}
	seq64, err := strconv.ParseInt(seqStr, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid sequence number in %q: %w", id, err)
	}
	return groupID, int32(seq64), nil
}
