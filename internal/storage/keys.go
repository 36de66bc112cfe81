package storage

import "github.com/paywall-labs/paywall-go/pkg/utils"

// Persisted concern keys. The exact strings are internal; only the set of
// distinct concerns is fixed.
const (
	KeyUserID        = "pw:user_id"
	KeyUserIDSandbox = "pw:user_id:sandbox"
	KeyOutbox        = "pw:outbox"
	KeySelection     = "pw:selection"
	KeyDeepLink      = "pw:deep_link"
	KeyLastProvider  = "pw:last_provider"
	KeyAppVersion    = "pw:app_version"

	attributionPrefix = "pw:attribution_sent:"
)

// UserIDKey returns the user id key for the environment. Sandbox and
// production ids are stored separately so switching environments never
// leaks a visitor identity across them.
func UserIDKey(sandbox bool) string {
	if sandbox {
		return KeyUserIDSandbox
	}
	return KeyUserID
}

// AttributionMarkerKey returns the sent-marker key for an attribution
// source. Sources are caller-supplied free text, so they are hashed into a
// fixed-width key segment.
func AttributionMarkerKey(source string) string {
	return attributionPrefix + utils.HashString(source)
}
