package repository

import (
	"huddle-chat/internal/docstore"
	"huddle-chat/internal/domain"
)

const (
	UsersCollection         = "users"
	ChannelsCollection      = "channels"
	ConversationsCollection = "conversations"

	membersSegment  = "members"
	messagesSegment = "messages"
	repliesSegment  = "replies"

	// messages and replies are ordered by this field
	createdAtField = "createdAt"
)

func UserPath(id string) string {
	return docstore.Join(UsersCollection, id)
}

func ChannelPath(id string) string {
	return docstore.Join(ChannelsCollection, id)
}

func MembersCollection(channelID string) string {
	return docstore.Join(ChannelsCollection, channelID, membersSegment)
}

func MemberPath(channelID, userID string) string {
	return docstore.Join(MembersCollection(channelID), userID)
}

func ConversationPath(id string) string {
	return docstore.Join(ConversationsCollection, id)
}

// ContainerPath is the channel or conversation document of a target.
func ContainerPath(t domain.Target) string {
	if t.IsDM() {
		return ConversationPath(t.ID)
	}
	return ChannelPath(t.ID)
}

func MessagesCollection(t domain.Target) string {
	return docstore.Join(ContainerPath(t), messagesSegment)
}

func MessagePath(t domain.Target, id string) string {
	return docstore.Join(MessagesCollection(t), id)
}

func RepliesCollection(t domain.Target, rootID string) string {
	return docstore.Join(MessagePath(t, rootID), repliesSegment)
}

func ReplyPath(t domain.Target, rootID, replyID string) string {
	return docstore.Join(RepliesCollection(t, rootID), replyID)
}

// Path resolves a reference to the root message document or to the reply
// document under its root.
func (r MessageRef) Path(t domain.Target) string {
	if r.IsReply() {
		return ReplyPath(t, r.ParentID, r.ID)
	}
	return MessagePath(t, r.ID)
}
