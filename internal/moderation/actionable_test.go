package moderation

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func testGuild() *discordgo.Guild {
	return &discordgo.Guild{
		ID:      "g1",
		OwnerID: "owner",
		Roles: []*discordgo.Role{
			{ID: "g1", Position: 0},
			{ID: "mods", Position: 5, Permissions: discordgo.PermissionKickMembers | discordgo.PermissionBanMembers | discordgo.PermissionModerateMembers},
			{ID: "bot", Position: 8, Permissions: discordgo.PermissionKickMembers | discordgo.PermissionBanMembers | discordgo.PermissionModerateMembers},
			{ID: "admins", Position: 10, Permissions: discordgo.PermissionAdministrator},
			{ID: "member", Position: 1},
		},
	}
}

func member(id string, roles ...string) *discordgo.Member {
	return &discordgo.Member{User: &discordgo.User{ID: id, Username: id}, Roles: roles}
}

func TestActionable(t *testing.T) {
	guild := testGuild()
	botMember := member("botuser", "bot")

	cases := []struct {
		name     string
		bot      *discordgo.Member
		target   *discordgo.Member
		required int64
		want     bool
	}{
		{"regular member", botMember, member("u1", "member"), discordgo.PermissionKickMembers, true},
		{"lower moderator", botMember, member("u2", "mods"), discordgo.PermissionBanMembers, true},
		{"higher role", botMember, member("u3", "admins"), discordgo.PermissionKickMembers, false},
		{"owner", botMember, member("owner"), discordgo.PermissionKickMembers, false},
		{"self", botMember, member("botuser", "bot"), discordgo.PermissionKickMembers, false},
		{"missing permission", member("botuser", "member"), member("u4"), discordgo.PermissionKickMembers, false},
		{"equal position", member("botuser", "mods"), member("u5", "mods"), discordgo.PermissionKickMembers, false},
		{"timeout admin", member("owner"), member("u6", "admins"), discordgo.PermissionModerateMembers, false},
		{"owner bot", member("owner"), member("u7", "admins"), discordgo.PermissionKickMembers, true},
		{"nil target", botMember, nil, discordgo.PermissionKickMembers, false},
	}
	for _, tc := range cases {
		if got := Actionable(guild, tc.bot, tc.target, tc.required); got != tc.want {
			t.Fatalf("%s: expected %t, got %t", tc.name, tc.want, got)
		}
	}
}

func TestHasModPermission(t *testing.T) {
	if !HasModPermission(discordgo.PermissionKickMembers) {
		t.Fatalf("kick members should be a moderator")
	}
	if !HasModPermission(discordgo.PermissionAdministrator) {
		t.Fatalf("administrator should be a moderator")
	}
	if HasModPermission(discordgo.PermissionSendMessages) {
		t.Fatalf("send messages alone is not a moderator")
	}
}
