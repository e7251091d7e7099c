package commands

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/voxlate/internal/discord"
	"github.com/MrWong99/voxlate/pkg/store"
	"github.com/MrWong99/voxlate/pkg/types"
)

// minVoiceSlot and maxVoiceSlot bound the synthesis voice table.
const (
	minVoiceSlot = 1
	maxVoiceSlot = 20
)

// VoiceCommands holds the dependencies for the /voice and /config slash
// commands.
type VoiceCommands struct {
	prefs store.Prefs

	// voices resolves the current slot-to-voice table; a getter because the
	// table is hot-reloadable.
	voices func() map[int]string
}

// NewVoiceCommands creates a VoiceCommands. voices may be nil when no voice
// table is configured; slots are then confirmed without a mapped voice name.
func NewVoiceCommands(prefs store.Prefs, voices func() map[int]string) *VoiceCommands {
	return &VoiceCommands{prefs: prefs, voices: voices}
}

// Register registers the /voice and /config commands with the router.
func (vc *VoiceCommands) Register(router *discord.CommandRouter) {
	minSlot := float64(minVoiceSlot)
	router.RegisterCommand("voice", &discordgo.ApplicationCommand{
		Name:        "voice",
		Description: "Choose the synthesis voice for your translated speech",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "slot",
				Description: fmt.Sprintf("Voice slot (%d-%d)", minVoiceSlot, maxVoiceSlot),
				Required:    true,
				MinValue:    &minSlot,
				MaxValue:    maxVoiceSlot,
			},
		},
	}, vc.handleVoice)

	router.RegisterCommand("config", &discordgo.ApplicationCommand{
		Name:        "config",
		Description: "Show your translation settings",
	}, vc.handleConfig)
}

// handleVoice handles /voice.
func (vc *VoiceCommands) handleVoice(s *discordgo.Session, i *discordgo.InteractionCreate) {
	slot := 0
	data := i.ApplicationCommandData()
	for _, opt := range data.Options {
		if opt.Name == "slot" {
			slot = int(opt.IntValue())
		}
	}
	if slot < minVoiceSlot || slot > maxVoiceSlot {
		discord.RespondEphemeral(s, i, fmt.Sprintf("Voice slot must be between %d and %d.", minVoiceSlot, maxVoiceSlot))
		return
	}

	userID := interactionUserID(i)
	if userID == "" {
		discord.RespondEphemeral(s, i, "Could not determine your user ID.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), prefsTimeout)
	defer cancel()

	cfg, err := vc.prefs.Get(ctx, userID)
	if err != nil {
		discord.RespondError(s, i, fmt.Errorf("discord: load settings: %w", err))
		return
	}
	cfg.VoiceID = slot
	if err := vc.prefs.Set(ctx, cfg); err != nil {
		discord.RespondError(s, i, fmt.Errorf("discord: save settings: %w", err))
		return
	}

	msg := fmt.Sprintf("Your synthesis voice is now slot **%d**.", slot)
	if name := vc.voiceName(slot); name != "" {
		msg = fmt.Sprintf("Your synthesis voice is now slot **%d** (`%s`).", slot, name)
	}
	discord.RespondEphemeral(s, i, msg)
}

// handleConfig handles /config.
func (vc *VoiceCommands) handleConfig(s *discordgo.Session, i *discordgo.InteractionCreate) {
	userID := interactionUserID(i)
	if userID == "" {
		discord.RespondEphemeral(s, i, "Could not determine your user ID.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), prefsTimeout)
	defer cancel()

	cfg, err := vc.prefs.Get(ctx, userID)
	if err != nil {
		discord.RespondError(s, i, fmt.Errorf("discord: load settings: %w", err))
		return
	}

	input := cfg.InputLanguage
	if input == types.AutoDetect {
		input = "auto (detected per utterance)"
	}
	voice := fmt.Sprintf("slot %d", cfg.VoiceID)
	if name := vc.voiceName(cfg.VoiceID); name != "" {
		voice = fmt.Sprintf("slot %d (`%s`)", cfg.VoiceID, name)
	}

	discord.RespondEmbed(s, i, &discordgo.MessageEmbed{
		Title: "Your translation settings",
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Spoken language", Value: input, Inline: true},
			{Name: "Target language", Value: cfg.OutputLanguage, Inline: true},
			{Name: "Voice", Value: voice, Inline: true},
		},
	})
}

// voiceName resolves a slot through the voice table, if any.
func (vc *VoiceCommands) voiceName(slot int) string {
	if vc.voices == nil {
		return ""
	}
	return vc.voices()[slot]
}
