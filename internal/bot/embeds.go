package bot

import (
	"fmt"
	"strings"
	"time"

	"kymera-bot/internal/commands"
	"kymera-bot/internal/modules/audit"
	"kymera-bot/internal/music"
	"kymera-bot/internal/stats"
	"kymera-bot/internal/storage"
	"kymera-bot/internal/stream"

	"github.com/bwmarrin/discordgo"
)

const (
	welcomeSchedule = "Mon/Wed/Fri 2PM EST"
	liveTitle       = "🔴 Kymera is LIVE!"
	welcomeTitle    = "Welcome to Kymera_Gaming! 🎮"
)

func (b *Bot) commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}

func liveEmbed(a stream.Announcement, color int) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       liveTitle,
		URL:         a.URL,
		Description: fmt.Sprintf("**%s**", a.Title),
		Color:       color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Game", Value: a.Game, Inline: true},
			{Name: "Viewers", Value: fmt.Sprintf("%d", a.Viewers), Inline: true},
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if a.ThumbnailURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: a.ThumbnailURL}
	}
	return embed
}

func welcomeEmbed(member *discordgo.Member, twitchChannel string, color int) *discordgo.MessageEmbed {
	mention := "there"
	if member != nil && member.User != nil {
		mention = member.User.Mention()
	}
	return &discordgo.MessageEmbed{
		Title:       welcomeTitle,
		Description: fmt.Sprintf("Hey %s, welcome!", mention),
		Color:       color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Schedule", Value: welcomeSchedule, Inline: true},
			{Name: "Twitch", Value: "twitch.tv/" + twitchChannel, Inline: true},
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

var auditTitles = map[string]string{
	audit.ActionKick:          "👢 Member Kicked",
	audit.ActionBan:           "🔨 Member Banned",
	audit.ActionUnban:         "♻️ Member Unbanned",
	audit.ActionWarn:          "⚠️ Member Warned",
	audit.ActionClearWarnings: "🧽 Warnings Cleared",
	audit.ActionMute:          "🔇 Member Muted",
	audit.ActionUnmute:        "🔊 Member Unmuted",
	audit.ActionClear:         "🧹 Messages Cleared",
}

func auditEmbed(entry audit.Entry, color int) *discordgo.MessageEmbed {
	title, ok := auditTitles[entry.Action]
	if !ok {
		title = "Moderation: " + entry.Action
	}
	target := entry.TargetTag
	if target == "" {
		target = entry.TargetID
	}
	moderator := entry.ModeratorTag
	if moderator == "" {
		moderator = entry.ModeratorID
	}
	return &discordgo.MessageEmbed{
		Title: title,
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Target", Value: fmt.Sprintf("%s (%s)", target, entry.TargetID), Inline: true},
			{Name: "Moderator", Value: moderator, Inline: true},
			{Name: "Reason", Value: entry.Reason, Inline: false},
		},
		Timestamp: entry.At.Format(time.RFC3339),
	}
}

func helpEmbed(prefix string, cmds []*commands.Command, color int) *discordgo.MessageEmbed {
	groups := map[string][]string{}
	order := []string{"General", "Music", "Moderation"}
	for _, cmd := range cmds {
		group := "General"
		switch {
		case cmd.Tier == commands.TierModerator:
			group = "Moderation"
		case musicCommands[cmd.Name]:
			group = "Music"
		}
		line := fmt.Sprintf("`%s%s`", prefix, cmd.Usage)
		if cmd.Description != "" {
			line += " " + cmd.Description
		}
		groups[group] = append(groups[group], line)
	}
	var fields []*discordgo.MessageEmbedField
	for _, name := range order {
		if len(groups[name]) == 0 {
			continue
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: name, Value: strings.Join(groups[name], "\n")})
	}
	return &discordgo.MessageEmbed{
		Title:  "Kymera Bot Commands",
		Color:  color,
		Fields: fields,
	}
}

var musicCommands = map[string]bool{"play": true, "skip": true, "stop": true, "queue": true, "np": true}

func statsEmbed(snap stats.Snapshot, report stats.Report, color int) *discordgo.MessageEmbed {
	var fields []*discordgo.MessageEmbedField
	for _, name := range stats.Names {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   strings.ToUpper(name[:1]) + name[1:],
			Value:  fmt.Sprintf("%d", snap.Counters[name]),
			Inline: true,
		})
	}
	fields = append(fields, &discordgo.MessageEmbedField{Name: "Uptime", Value: formatDuration(snap.Uptime), Inline: true})
	fields = append(fields, &discordgo.MessageEmbedField{Name: "Tracking Since", Value: fmt.Sprintf("<t:%d:D>", snap.StartTime.Unix()), Inline: true})

	actions := "None"
	if report.Total > 0 {
		parts := make([]string, 0, len(report.ByAction))
		for _, item := range report.ByAction {
			parts = append(parts, fmt.Sprintf("%s: %d", item.Action, item.Count))
		}
		actions = strings.Join(parts, " | ")
	}
	fields = append(fields, &discordgo.MessageEmbedField{Name: "Moderation (7d)", Value: actions, Inline: false})

	return &discordgo.MessageEmbed{
		Title:     "📊 Bot Stats",
		Color:     color,
		Fields:    fields,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

func warningsEmbed(userTag string, warnings []storage.WarningRecord, color int) *discordgo.MessageEmbed {
	if len(warnings) == 0 {
		return &discordgo.MessageEmbed{Title: "Warnings for " + userTag, Description: "✅ No warnings on record.", Color: color}
	}
	lines := make([]string, 0, len(warnings))
	for i, w := range warnings {
		lines = append(lines, fmt.Sprintf("**%d.** %s | by %s <t:%d:R>", i+1, w.Reason, w.ModeratorTag, w.IssuedAt.Unix()))
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Warnings for %s (%d)", userTag, len(warnings)),
		Description: truncateField(strings.Join(lines, "\n"), 4000),
		Color:       color,
	}
}

func serverInfoEmbed(guild *discordgo.Guild, color int) *discordgo.MessageEmbed {
	created := "unknown"
	if ts, err := discordgo.SnowflakeTimestamp(guild.ID); err == nil {
		created = fmt.Sprintf("<t:%d:D>", ts.Unix())
	}
	owner := "unknown"
	if guild.OwnerID != "" {
		owner = "<@" + guild.OwnerID + ">"
	}
	embed := &discordgo.MessageEmbed{
		Title: guild.Name,
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Owner", Value: owner, Inline: true},
			{Name: "Members", Value: fmt.Sprintf("%d", guild.MemberCount), Inline: true},
			{Name: "Created", Value: created, Inline: true},
			{Name: "Channels", Value: fmt.Sprintf("%d", len(guild.Channels)), Inline: true},
			{Name: "Roles", Value: fmt.Sprintf("%d", len(guild.Roles)), Inline: true},
			{Name: "Boosts", Value: fmt.Sprintf("%d", guild.PremiumSubscriptionCount), Inline: true},
		},
	}
	if guild.Icon != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: guild.IconURL("256")}
	}
	return embed
}

func nowPlayingEmbed(song music.Song, color int) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{}
	if song.Duration > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Duration", Value: formatTrackLength(song.Duration), Inline: true})
	}
	if song.RequestedBy != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Requested by", Value: song.RequestedBy, Inline: true})
	}
	return &discordgo.MessageEmbed{
		Title:       "🎶 Now Playing",
		Description: fmt.Sprintf("[%s](%s)", song.Title, song.URL),
		Color:       color,
		Fields:      fields,
	}
}

func queueEmbed(songs []music.Song, color int) *discordgo.MessageEmbed {
	if len(songs) == 0 {
		return &discordgo.MessageEmbed{Title: "🎵 Queue", Description: "The queue is empty.", Color: color}
	}
	lines := make([]string, 0, len(songs))
	for i, song := range songs {
		if i == 0 {
			lines = append(lines, fmt.Sprintf("▶️ **%s**", song.Title))
			continue
		}
		if i > 10 {
			lines = append(lines, fmt.Sprintf("...and %d more", len(songs)-i))
			break
		}
		lines = append(lines, fmt.Sprintf("%d. %s", i, song.Title))
	}
	return &discordgo.MessageEmbed{Title: "🎵 Queue", Description: strings.Join(lines, "\n"), Color: color}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int(d / time.Minute)

	parts := []string{}
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	parts = append(parts, fmt.Sprintf("%dm", minutes))
	return strings.Join(parts, " ")
}

func formatTrackLength(d time.Duration) string {
	total := int(d.Round(time.Second) / time.Second)
	if total >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func truncateField(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
