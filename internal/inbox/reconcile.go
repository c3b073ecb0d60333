// Package inbox holds the deterministic inbox reconciliation rules. The
// server pushes coarse inbox:update signals with no payload, so every client
// re-fetches its conversation list on signal receipt and runs the fetched
// rows through Reconcile to get the list it actually renders.
package inbox

import (
	"sort"
	"time"
)

// Entry is one fetched inbox row, normalized to the canonical field per
// concept, with no fallback chains across legacy field names.
type Entry struct {
	ConversationID string
	PeerID         string
	PeerName       string
	LastMessageID  string
	LastSenderID   string
	LastMessageAt  *time.Time
	Preview        string

	// ReadAt is the server-recorded read stamp for the viewer.
	ReadAt *time.Time

	// Unread is derived by Reconcile; input values are ignored.
	Unread bool
}

// hasActivity reports whether the conversation has any real activity. Rows
// may exist in storage before any message is sent (a dm created ahead of the
// first send); those must not clutter the visible inbox.
func (e Entry) hasActivity() bool {
	return e.LastMessageID != "" && e.LastMessageAt != nil
}

// Reconcile produces the renderable inbox from fetched rows:
//
//  1. drops conversations with zero activity,
//  2. deduplicates rows resolving to the same peer, keeping the one with the
//     most recent activity,
//  3. derives unread as "last sender is not the viewer AND last message is
//     newer than the viewer's read time", where the read time is the max of
//     the server stamp and any local mark-read moment from localReads,
//  4. sorts by most recent activity first.
//
// localReads maps conversation id to the instant the viewer locally marked
// it read. It only papers over the gap until the server confirms; it is
// never authoritative beyond the current session.
func Reconcile(entries []Entry, viewerID string, localReads map[string]time.Time) []Entry {
	byPeer := make(map[string]Entry)
	var order []string

	for _, e := range entries {
		if !e.hasActivity() {
			continue
		}

		kept, seen := byPeer[e.PeerID]
		if !seen {
			byPeer[e.PeerID] = e
			order = append(order, e.PeerID)
			continue
		}
		if kept.LastMessageAt == nil || (e.LastMessageAt != nil && e.LastMessageAt.After(*kept.LastMessageAt)) {
			byPeer[e.PeerID] = e
		}
	}

	out := make([]Entry, 0, len(byPeer))
	for _, peerID := range order {
		e := byPeer[peerID]
		e.Unread = deriveUnread(e, viewerID, localReads)
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(*out[j].LastMessageAt)
	})
	return out
}

func deriveUnread(e Entry, viewerID string, localReads map[string]time.Time) bool {
	if e.LastSenderID == viewerID {
		return false
	}

	readAt := effectiveReadAt(e, localReads)
	if readAt == nil {
		return true
	}
	return e.LastMessageAt.After(*readAt)
}

// effectiveReadAt is max(server read stamp, local mark-read moment). The
// local value exists purely to avoid the unread badge flickering back on
// between a local mark-read and the server's eventual confirmation.
func effectiveReadAt(e Entry, localReads map[string]time.Time) *time.Time {
	readAt := e.ReadAt
	if local, ok := localReads[e.ConversationID]; ok {
		if readAt == nil || local.After(*readAt) {
			readAt = &local
		}
	}
	return readAt
}
