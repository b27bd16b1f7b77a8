package domain

// Platform event types we react to. The last three only get a canned quip.
// Anything else in the feed is skipped.
const (
	EventTransfer       = "transfer"
	EventDirectMessage  = "direct_message"
	EventCommentMention = "comment_mention"
	EventCommentReply   = "comment_reply"
	EventPostMention    = "post_mention"
	EventFollow         = "follow"
	EventUnfollow       = "unfollow"
)

// PlatformEvent is one notification pulled from the host platform's feed.
type PlatformEvent struct {
	ID      int64
	Type    string
	User    User
	Amount  int64 // transfers only
	Message string
}
