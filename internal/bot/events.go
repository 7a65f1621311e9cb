package bot

import (
	"encoding/json"
	"time"

	"github.com/ZeppelinBot/Zeppelin-sub001/internal/automod"

	"github.com/bwmarrin/discordgo"
)

func eventFromMessage(m *discordgo.Message, eventType automod.EventType) *automod.Event {
	ev := &automod.Event{
		Type:           eventType,
		GuildID:        m.GuildID,
		MessageID:      m.ID,
		ChannelID:      m.ChannelID,
		AuthorID:       m.Author.ID,
		Content:        m.Content,
		EmbedText:      firstEmbedText(m.Embeds),
		Attachments:    len(m.Attachments),
		MentionedUsers: len(m.Mentions),
		MentionedRoles: len(m.MentionRoles),
		Username:       userTag(m.Author),
		Timestamp:      time.Now(),
	}
	if m.Member != nil {
		ev.Nickname = m.Member.Nick
	}
	if !m.Timestamp.IsZero() {
		ev.Timestamp = m.Timestamp
	}
	return ev
}

// firstEmbedText serializes the first embed so content triggers can match
// text smuggled through embed fields.
func firstEmbedText(embeds []*discordgo.MessageEmbed) string {
	if len(embeds) == 0 || embeds[0] == nil {
		return ""
	}
	data, err := json.Marshal(embeds[0])
	if err != nil {
		return ""
	}
	return string(data)
}

func userTag(u *discordgo.User) string {
	if u == nil {
		return ""
	}
	if u.Discriminator == "" || u.Discriminator == "0" {
		return u.Username
	}
	return u.Username + "#" + u.Discriminator
}
