package domain

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// FeedEvent n'est jamais persisté. Post est renseigné pour create/update,
// PostID seul pour delete. Seq est attribué par le hub local à la diffusion.
type FeedEvent struct {
	Seq     uint64
	Action  Action
	Post    *Post
	Creator *Creator
	PostID  string
}

func CreatedEvent(post *Post, creator *Creator) FeedEvent {
	return FeedEvent{Action: ActionCreate, Post: post, Creator: creator, PostID: post.ID}
}

func UpdatedEvent(post *Post) FeedEvent {
	return FeedEvent{Action: ActionUpdate, Post: post, PostID: post.ID}
}

func DeletedEvent(postID string) FeedEvent {
	return FeedEvent{Action: ActionDelete, PostID: postID}
}
