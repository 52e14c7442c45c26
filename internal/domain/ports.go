package domain

import (
	"context"
	"errors"
)

// ErrMediaNotFound is returned by a MediaSource when the backend does not
// (yet) have media for a message. It is retried exactly like a transport
// error: both consume one bounded resolution attempt.
var ErrMediaNotFound = errors.New("media not found")

// BackfillPage is one page of historical posts, newest first within the page.
type BackfillPage struct {
	Posts   []*Post
	HasMore bool
}

// BackfillSource retrieves historical pages of posts. A short page
// (len(Posts) < limit) overrides HasMore to false on the caller's side.
type BackfillSource interface {
	FetchPosts(ctx context.Context, offset, limit int) (*BackfillPage, error)
}

// MediaResult is a successfully resolved media attachment.
type MediaResult struct {
	URL  string
	Kind MediaKind
}

// MediaSource looks up the media attached to a message. It returns
// ErrMediaNotFound when the backend has no media for the id yet.
type MediaSource interface {
	FetchMedia(ctx context.Context, messageID int64) (*MediaResult, error)
}

// FeedListener receives change notifications from the store. Callbacks are
// invoked outside the store's lock, so a listener may call back into any
// store mutation method.
type FeedListener interface {
	// PostsChanged fires when membership or order changed.
	PostsChanged()

	// PostUpdated fires when fields of an existing post changed in place.
	PostUpdated(id int64)
}

// MediaRequester is the resolver surface the window needs: lazily request
// resolution for posts entering the viewport and cancel it for posts leaving.
type MediaRequester interface {
	Request(ctx context.Context, id int64, cb func(MediaOutcome))
	Cancel(id int64)
}

// MediaOutcome is the terminal result delivered to resolution subscribers.
// Unavailable is set when the bounded attempt budget was exhausted.
type MediaOutcome struct {
	URL         string
	Kind        MediaKind
	Unavailable bool
}
