package rediskeys

import (
	"fmt"

	"gitlab.com/timkado/api/social-feed-client/pkg/crypto"
)

// Namespace derives the credential namespace for one backend. Clients pointed at
// different backends never share credentials.
func Namespace(apiBaseURL string) string {
	return crypto.Fingerprint(apiBaseURL, 16)
}

// CredentialKey generates the Redis key for one persisted credential slot.
func CredentialKey(namespace, slot string) string {
	return fmt.Sprintf("creds:%s:%s", namespace, slot)
}

// SessionEventsChannel generates the pub/sub channel shared by clients of one namespace.
func SessionEventsChannel(base, namespace string) string {
	return fmt.Sprintf("%s:%s", base, namespace)
}
