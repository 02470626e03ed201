package moderation

import "github.com/bwmarrin/discordgo"

const modPermissions = discordgo.PermissionAdministrator | discordgo.PermissionKickMembers

// HasModPermission reports whether a principal may use the moderation commands.
func HasModPermission(perms int64) bool {
	return perms&modPermissions != 0
}

// MemberPermissions folds the @everyone role and the member's roles into one bitset.
func MemberPermissions(guild *discordgo.Guild, member *discordgo.Member) int64 {
	if guild == nil || member == nil {
		return 0
	}
	held := make(map[string]struct{}, len(member.Roles))
	for _, id := range member.Roles {
		held[id] = struct{}{}
	}
	var perms int64
	for _, role := range guild.Roles {
		if role.ID == guild.ID {
			perms |= role.Permissions
			continue
		}
		if _, ok := held[role.ID]; ok {
			perms |= role.Permissions
		}
	}
	return perms
}

// HighestPosition is the position of the member's top role, 0 for @everyone only.
func HighestPosition(guild *discordgo.Guild, member *discordgo.Member) int {
	if guild == nil || member == nil {
		return 0
	}
	held := make(map[string]struct{}, len(member.Roles))
	for _, id := range member.Roles {
		held[id] = struct{}{}
	}
	highest := 0
	for _, role := range guild.Roles {
		if _, ok := held[role.ID]; ok && role.Position > highest {
			highest = role.Position
		}
	}
	return highest
}

// Actionable reports whether the bot member can apply an action needing the
// required permission bit to target.
func Actionable(guild *discordgo.Guild, bot, target *discordgo.Member, required int64) bool {
	if guild == nil || bot == nil || target == nil || bot.User == nil || target.User == nil {
		return false
	}
	if target.User.ID == guild.OwnerID || target.User.ID == bot.User.ID {
		return false
	}
	targetPerms := MemberPermissions(guild, target)
	if required == discordgo.PermissionModerateMembers && targetPerms&discordgo.PermissionAdministrator != 0 {
		return false
	}
	if bot.User.ID == guild.OwnerID {
		return true
	}
	botPerms := MemberPermissions(guild, bot)
	if botPerms&discordgo.PermissionAdministrator == 0 && botPerms&required == 0 {
		return false
	}
	return HighestPosition(guild, bot) > HighestPosition(guild, target)
}
