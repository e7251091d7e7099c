// Package commands implements Discord slash command handlers for Voxlate.
package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/voxlate/internal/app"
	"github.com/MrWong99/voxlate/internal/discord"
)

// SessionCommands holds the dependencies for the /join, /leave and /status
// slash commands.
type SessionCommands struct {
	sessionMgr *app.SessionManager
	perms      *discord.PermissionChecker
	bot        *discord.Bot
}

// NewSessionCommands creates a SessionCommands and registers its handlers
// with the bot's router.
func NewSessionCommands(bot *discord.Bot, sessionMgr *app.SessionManager, perms *discord.PermissionChecker) *SessionCommands {
	sc := &SessionCommands{
		sessionMgr: sessionMgr,
		perms:      perms,
		bot:        bot,
	}
	sc.Register(bot.Router())
	return sc
}

// Register registers the session commands with the router.
func (sc *SessionCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("join", &discordgo.ApplicationCommand{
		Name:        "join",
		Description: "Join your voice channel and start translating",
	}, sc.handleJoin)
	router.RegisterCommand("leave", &discordgo.ApplicationCommand{
		Name:        "leave",
		Description: "Leave the voice channel and end the session",
	}, sc.handleLeave)
	router.RegisterCommand("status", &discordgo.ApplicationCommand{
		Name:        "status",
		Description: "Show the active session's statistics",
	}, sc.handleStatus)
}

// handleJoin handles /join.
func (sc *SessionCommands) handleJoin(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !sc.perms.IsOperator(i) {
		discord.RespondEphemeral(s, i, "You need the operator role to start a session.")
		return
	}

	// The bot joins the caller's voice channel.
	guildID := sc.bot.GuildID()
	userID := interactionUserID(i)
	vs, err := s.State.VoiceState(guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		discord.RespondEphemeral(s, i, "You must be in a voice channel to start a session.")
		return
	}

	if sc.sessionMgr.IsActive() {
		info := sc.sessionMgr.Info()
		discord.RespondEphemeral(s, i, fmt.Sprintf("A session is already active (ID: `%s`).", info.SessionID))
		return
	}

	// Defer reply since connecting may take a moment.
	discord.DeferReply(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sc.sessionMgr.Start(ctx, vs.ChannelID, userID); err != nil {
		discord.FollowUp(s, i, fmt.Sprintf("Failed to start session: %v", err))
		return
	}

	info := sc.sessionMgr.Info()
	discord.FollowUp(s, i, fmt.Sprintf(
		"Translation session started!\n**Session ID:** `%s`\n**Channel:** <#%s>\nTranscripts go to <#%s>.",
		info.SessionID,
		info.ChannelID,
		sc.bot.TextChannelID(),
	))
}

// handleLeave handles /leave.
func (sc *SessionCommands) handleLeave(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !sc.perms.IsOperator(i) {
		discord.RespondEphemeral(s, i, "You need the operator role to end a session.")
		return
	}

	if !sc.sessionMgr.IsActive() {
		discord.RespondEphemeral(s, i, "No active session to end.")
		return
	}

	info := sc.sessionMgr.Info()
	duration := time.Since(info.StartedAt).Truncate(time.Second)
	stats, _ := sc.sessionMgr.Stats()

	if err := sc.sessionMgr.Stop(); err != nil {
		discord.RespondError(s, i, fmt.Errorf("discord: stop session: %w", err))
		return
	}

	discord.RespondEphemeral(s, i, fmt.Sprintf(
		"Session `%s` ended.\n**Duration:** %s\n**Utterances translated:** %d",
		info.SessionID,
		duration.String(),
		stats.UtterancesPublished,
	))
}

// handleStatus handles /status.
func (sc *SessionCommands) handleStatus(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !sc.sessionMgr.IsActive() {
		discord.RespondEphemeral(s, i, "No session is active. Use `/join` from a voice channel to start one.")
		return
	}

	info := sc.sessionMgr.Info()
	stats, ok := sc.sessionMgr.Stats()
	if !ok {
		discord.RespondEphemeral(s, i, "No session is active.")
		return
	}

	uptime := time.Since(info.StartedAt).Truncate(time.Second)
	discord.RespondEmbed(s, i, &discordgo.MessageEmbed{
		Title: "Translation session",
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Session ID", Value: fmt.Sprintf("`%s`", info.SessionID), Inline: false},
			{Name: "Channel", Value: fmt.Sprintf("<#%s>", info.ChannelID), Inline: true},
			{Name: "Uptime", Value: uptime.String(), Inline: true},
			{Name: "Participants", Value: fmt.Sprintf("%d", stats.Participants), Inline: true},
			{Name: "Published", Value: fmt.Sprintf("%d", stats.UtterancesPublished), Inline: true},
			{Name: "No speech", Value: fmt.Sprintf("%d", stats.UtterancesDropped), Inline: true},
			{Name: "Failed", Value: fmt.Sprintf("%d", stats.UtterancesFailed), Inline: true},
			{Name: "Playback queue", Value: fmt.Sprintf("%d clips", stats.QueueDepth), Inline: true},
		},
	})
}

// interactionUserID extracts the user ID from an interaction, handling
// both guild (Member) and DM (User) contexts.
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
