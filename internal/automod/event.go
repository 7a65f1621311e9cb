// Package automod implements the per-guild moderation engine: a ledger of
// recent countable events, a grace-period tracker, the rule matcher, and the
// action dispatcher, evaluated one event at a time per guild.
package automod

import (
	"time"

	"github.com/ZeppelinBot/Zeppelin-sub001/internal/utils"
)

type EventType int

const (
	EventMessageCreated EventType = iota
	EventMessageUpdated
	EventMemberProfileChanged
	EventVoiceChannelMoved
)

// Event is the engine-facing form of a gateway event. The bot layer fills
// only the fields the event type carries.
type Event struct {
	Type    EventType
	GuildID string

	MessageID      string
	ChannelID      string
	AuthorID       string
	Content        string
	EmbedText      string // first embed, serialized
	Attachments    int
	MentionedUsers int
	MentionedRoles int

	Username string // username#discriminator
	Nickname string

	FromChannelID string
	ToChannelID   string

	Timestamp time.Time
}

// EventRef identifies the concrete message behind a ledger entry so the
// dispatcher can act on exactly the offending content.
type EventRef struct {
	ChannelID string
	MessageID string
}

type CountableKind int

const (
	KindMessage CountableKind = iota
	KindMention
	KindLink
	KindAttachment
	KindEmoji
	KindLine
	KindCharacter
	kindCount
)

func (k CountableKind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindMention:
		return "mention"
	case KindLink:
		return "link"
	case KindAttachment:
		return "attachment"
	case KindEmoji:
		return "emoji"
	case KindLine:
		return "line"
	case KindCharacter:
		return "character"
	default:
		return "unknown"
	}
}

// GlobalScopeKey identifies an author across the whole guild.
func GlobalScopeKey(authorID string) string { return authorID }

// ChannelScopeKey identifies an author within one channel.
func ChannelScopeKey(channelID, authorID string) string { return channelID + ":" + authorID }

// Countables derives the event's countable facts. Only created messages
// produce counts; edits, profile changes and voice moves contribute nothing
// to rate windows.
func (ev *Event) Countables() map[CountableKind]uint {
	if ev.Type != EventMessageCreated {
		return nil
	}

	counts := map[CountableKind]uint{KindMessage: 1}
	if n := ev.MentionedUsers + ev.MentionedRoles; n > 0 {
		counts[KindMention] = uint(n)
	}
	if n := len(utils.ExtractURLs(ev.Content)); n > 0 {
		counts[KindLink] = uint(n)
	}
	if ev.Attachments > 0 {
		counts[KindAttachment] = uint(ev.Attachments)
	}
	if n := utils.CountEmojis(ev.Content); n > 0 {
		counts[KindEmoji] = uint(n)
	}
	if n := utils.CountLines(ev.Content); n > 0 {
		counts[KindLine] = uint(n)
	}
	if n := utils.CountCharacters(ev.Content); n > 0 {
		counts[KindCharacter] = uint(n)
	}
	return counts
}

// Ref returns the event's message reference, zero for non-message events.
func (ev *Event) Ref() EventRef {
	if ev.MessageID == "" {
		return EventRef{}
	}
	return EventRef{ChannelID: ev.ChannelID, MessageID: ev.MessageID}
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
