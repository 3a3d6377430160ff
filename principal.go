package collab

import "strings"

// Role values carried by a verified credential.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// Principal is the authenticated identity attached to a connection for its
// lifetime. It is immutable once attached.
type Principal struct {
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

// Channel identifies one logical real-time group: all connections joined to
// the same document instance.
type Channel struct {
	Kind       string `json:"documentKind"`
	DocumentID string `json:"documentId"`
}

// Key returns the canonical channel identifier used as the session record ID.
func (c Channel) Key() string {
	return c.Kind + ":" + c.DocumentID
}

// ParseChannelKey inverts Key. Document IDs may themselves contain colons;
// the kind never does.
func ParseChannelKey(key string) (Channel, bool) {
	i := strings.IndexByte(key, ':')
	if i <= 0 || i == len(key)-1 {
		return Channel{}, false
	}
	return Channel{Kind: key[:i], DocumentID: key[i+1:]}, true
}
