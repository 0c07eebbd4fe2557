package httpdto

import "huddle-chat/internal/domain/channel"

type CreateChannelRequest struct {
	Name  string `json:"name" binding:"required"`
	Topic string `json:"topic"`
}

type SetTopicRequest struct {
	Topic string `json:"topic"`
}

type ChannelsResponse struct {
	Channels []*channel.Channel `json:"channels"`
}

type MembersResponse struct {
	Members []*channel.Member `json:"members"`
}

// MembershipResponse reports whether a join or leave changed anything.
type MembershipResponse struct {
	ChannelID string `json:"channelId"`
	Changed   bool   `json:"changed"`
}
