package bot

import "kymera-bot/internal/commands"

func (b *Bot) registerCommands() {
	everyone := []*commands.Command{
		{Name: "help", Usage: "help", Description: "show this list", Handler: b.handleHelp},
		{Name: "ping", Usage: "ping", Description: "check the bot's latency", Handler: b.handlePing},
		{Name: "drop", Usage: "drop [item]", Description: "find where an item drops", MinArgs: 1, Handler: b.handleDrop},
		{Name: "wiki", Usage: "wiki [search]", Description: "search the Warframe wiki", MinArgs: 1, Handler: b.handleWiki},
		{Name: "live", Usage: "live", Description: "link to the Twitch channel", Handler: b.handleLive},
		{Name: "roles", Usage: "roles", Description: "where to pick your roles", Handler: b.handleRoles},
		{Name: "stats", Usage: "stats", Description: "bot usage stats", Handler: b.handleStats},
		{Name: "serverinfo", Usage: "serverinfo", Description: "about this server", Handler: b.handleServerInfo},
		{Name: "play", Aliases: []string{"p"}, Usage: "play <query|url>", Description: "queue a song", MinArgs: 1, Handler: b.handlePlay},
		{Name: "skip", Usage: "skip", Description: "skip the current song", Handler: b.handleSkip},
		{Name: "stop", Usage: "stop", Description: "clear the queue and leave voice", Handler: b.handleStop},
		{Name: "queue", Aliases: []string{"q"}, Usage: "queue", Description: "show the queue", Handler: b.handleQueue},
		{Name: "np", Usage: "np", Description: "show the current song", Handler: b.handleNowPlaying},
	}
	moderator := []*commands.Command{
		{Name: "kick", Usage: "kick @user [reason]", MinArgs: 1, Handler: b.handleKick},
		{Name: "ban", Usage: "ban @user [reason]", MinArgs: 1, Handler: b.handleBan},
		{Name: "unban", Usage: "unban <user id>", MinArgs: 1, Handler: b.handleUnban},
		{Name: "warn", Usage: "warn @user [reason]", MinArgs: 1, Handler: b.handleWarn},
		{Name: "warnings", Usage: "warnings [@user]", Handler: b.handleWarnings},
		{Name: "clearwarnings", Usage: "clearwarnings @user", MinArgs: 1, Handler: b.handleClearWarnings},
		{Name: "mute", Usage: "mute @user <minutes> [reason]", MinArgs: 2, Handler: b.handleMute},
		{Name: "unmute", Usage: "unmute @user", MinArgs: 1, Handler: b.handleUnmute},
		{Name: "clear", Usage: "clear <1-100>", MinArgs: 1, Handler: b.handleClear},
	}

	for _, cmd := range everyone {
		b.registry.Register(cmd)
	}
	for _, cmd := range moderator {
		cmd.Tier = commands.TierModerator
		b.registry.Register(cmd)
	}
}
