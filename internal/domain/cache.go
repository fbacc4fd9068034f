package domain

import "context"

// CredentialSlot names one of the three persisted credential values.
type CredentialSlot string

const (
	SlotUser         CredentialSlot = "auth.user"
	SlotAccessToken  CredentialSlot = "auth.accessToken"
	SlotRefreshToken CredentialSlot = "auth.refreshToken"
)

// AllCredentialSlots lists every slot, in the order they are written.
var AllCredentialSlots = []CredentialSlot{SlotUser, SlotAccessToken, SlotRefreshToken}

// CredentialStore is the durable mirror of the session. It is only ever written by SessionState.
type CredentialStore interface {
	// Get returns ("", false, nil) when the slot is empty.
	Get(ctx context.Context, slot CredentialSlot) (string, bool, error)
	Set(ctx context.Context, slot CredentialSlot, value string) error
	// Delete must not fail when the slot is already empty.
	Delete(ctx context.Context, slot CredentialSlot) error
}

// Cache entity namespaces.
const (
	EntityPosts    = "posts"
	EntityComments = "comments"
	EntityUser     = "user"
)

// CacheKey addresses an entry in the response cache.
type CacheKey struct {
	Entity string
	Kind   string // "list", "detail" or "me"
	ID     string
	Params string // canonical query string for lists
}

func (k CacheKey) String() string {
	s := k.Entity + "/" + k.Kind
	if k.ID != "" {
		s += "/" + k.ID
	}
	if k.Params != "" {
		s += "/" + k.Params
	}
	return s
}

// PostListKey addresses one page of a post list. url.Values.Encode sorts keys,
// so equal params always map to one key.
func PostListKey(p GetPostsParams) CacheKey {
	return CacheKey{Entity: EntityPosts, Kind: "list", Params: p.Query().Encode()}
}

func PostDetailKey(id string) CacheKey {
	return CacheKey{Entity: EntityPosts, Kind: "detail", ID: id}
}

// PostListsPrefix matches every post list key.
func PostListsPrefix() string { return EntityPosts + "/list" }

func CommentListKey(p GetCommentsParams) CacheKey {
	return CacheKey{Entity: EntityComments, Kind: "list", ID: p.PostID, Params: p.Query().Encode()}
}

func CommentDetailKey(id string) CacheKey {
	return CacheKey{Entity: EntityComments, Kind: "detail", ID: id}
}

// CommentListsPrefix matches every comment list key of one post.
func CommentListsPrefix(postID string) string {
	return CacheKey{Entity: EntityComments, Kind: "list", ID: postID}.String()
}

func CurrentUserKey() CacheKey {
	return CacheKey{Entity: EntityUser, Kind: "me"}
}
