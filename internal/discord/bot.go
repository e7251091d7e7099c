// Package discord provides the Discord bot layer for Voxlate. It owns the
// discordgo.Session lifecycle, routes slash command interactions to registered
// handlers, posts transcript pairs to the text channel, and checks operator
// role permissions.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/voxlate/pkg/audio"
	discordaudio "github.com/MrWong99/voxlate/pkg/audio/discord"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token (e.g., "Bot MTIz...").
	Token string

	// GuildID is the target guild (single-guild deployment).
	GuildID string

	// TextChannelID is the channel transcript pairs are posted to.
	TextChannelID string

	// OperatorRoleID is the role allowed to run /join and /leave. Empty
	// allows everyone.
	OperatorRoleID string
}

// Bot owns the Discord gateway connection and routes interactions
// to registered command handlers.
type Bot struct {
	mu            sync.RWMutex
	session       *discordgo.Session
	platform      *discordaudio.Platform
	router        *CommandRouter
	perms         *PermissionChecker
	guildID       string
	textChannelID string
	commands      []*discordgo.ApplicationCommand
	closeOnce     sync.Once
}

// New creates a Bot, connects to Discord, and registers the interaction handler.
func New(_ context.Context, cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuilds

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}

	b := &Bot{
		session:       session,
		platform:      discordaudio.New(session, cfg.GuildID),
		router:        NewCommandRouter(),
		perms:         NewPermissionChecker(cfg.OperatorRoleID),
		guildID:       cfg.GuildID,
		textChannelID: cfg.TextChannelID,
	}

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})

	return b, nil
}

// Platform returns the audio.Platform for voice channel connections.
func (b *Bot) Platform() audio.Platform {
	return b.platform
}

// GuildID returns the target guild ID.
func (b *Bot) GuildID() string {
	return b.guildID
}

// TextChannelID returns the transcript output channel ID.
func (b *Bot) TextChannelID() string {
	return b.textChannelID
}

// Session returns the underlying discordgo session. Used by subsystems that
// need direct Discord API access (voice state lookups, member info).
func (b *Bot) Session() *discordgo.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// Permissions returns the permission checker.
func (b *Bot) Permissions() *PermissionChecker {
	return b.perms
}

// SendMessage posts content to channelID. It satisfies the transcript
// publisher's send function.
func (b *Bot) SendMessage(channelID, content string) error {
	_, err := b.Session().ChannelMessageSend(channelID, content)
	return err
}

// Run registers slash commands with the Discord API and blocks until
// ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.RLock()
	appID := b.session.State.User.ID
	b.mu.RUnlock()

	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
		if err != nil {
			return fmt.Errorf("discord: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("discord commands registered", "count", len(registered))
	}

	<-ctx.Done()
	return ctx.Err()
}

// Close disconnects from Discord and unregisters commands.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		// Unregister commands.
		if b.session != nil && len(b.commands) > 0 {
			appID := b.session.State.User.ID
			for _, cmd := range b.commands {
				if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
					slog.Warn("discord: failed to delete command", "name", cmd.Name, "err", err)
				}
			}
		}

		// Close session.
		if b.session != nil {
			if err := b.session.Close(); err != nil {
				closeErr = fmt.Errorf("discord: close session: %w", err)
			}
		}

		slog.Info("discord bot closed")
	})
	return closeErr
}
