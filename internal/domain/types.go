package domain

type TargetKind string

const (
	TargetChannel TargetKind = "channel"
	TargetDM      TargetKind = "dm"
)

// Target names the place messages live: a channel or a DM conversation.
type Target struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id"`
}

func ChannelTarget(channelID string) Target {
	return Target{Kind: TargetChannel, ID: channelID}
}

func DMTarget(conversationID string) Target {
	return Target{Kind: TargetDM, ID: conversationID}
}

func (t Target) IsDM() bool {
	return t.Kind == TargetDM
}

func (t Target) Valid() bool {
	return t.ID != "" && (t.Kind == TargetChannel || t.Kind == TargetDM)
}

type MemberRole string

const (
	MemberRoleOwner  MemberRole = "owner"
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

type UserStatus string

const (
	UserStatusActive UserStatus = "active"
	UserStatusAway   UserStatus = "away"
)

type UserRole string

const (
	UserRoleMember UserRole = "member"
	UserRoleGuest  UserRole = "guest"
)
