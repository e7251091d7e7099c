package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/voxlate/internal/discord"
	"github.com/MrWong99/voxlate/pkg/store"
	"github.com/MrWong99/voxlate/pkg/types"
)

// prefsTimeout bounds the store round trip behind a command handler.
const prefsTimeout = 5 * time.Second

// LanguageCommands holds the dependencies for the /language and /languages
// slash commands. Every participant manages their own settings; no operator
// role is required.
type LanguageCommands struct {
	prefs store.Prefs
}

// NewLanguageCommands creates a LanguageCommands backed by the given
// preference store.
func NewLanguageCommands(prefs store.Prefs) *LanguageCommands {
	return &LanguageCommands{prefs: prefs}
}

// Register registers the /language command group and the /languages listing
// with the router.
func (lc *LanguageCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("language", lc.Definition(), func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(s, i, "Please use a subcommand: `/language input` or `/language output`.")
	})
	router.RegisterHandler("language/input", lc.handleInput)
	router.RegisterHandler("language/output", lc.handleOutput)
	router.RegisterAutocomplete("language/input", lc.autocompleteLanguage(true))
	router.RegisterAutocomplete("language/output", lc.autocompleteLanguage(false))

	router.RegisterCommand("languages", &discordgo.ApplicationCommand{
		Name:        "languages",
		Description: "List the supported languages",
	}, lc.handleList)
}

// Definition returns the /language ApplicationCommand definition for Discord.
func (lc *LanguageCommands) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "language",
		Description: "Configure your spoken and target languages",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "input",
				Description: "Set the language you speak",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:         discordgo.ApplicationCommandOptionString,
						Name:         "language",
						Description:  "Language name, or \"auto\" to detect per utterance",
						Required:     true,
						Autocomplete: true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "output",
				Description: "Set the language your speech is translated into",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:         discordgo.ApplicationCommandOptionString,
						Name:         "language",
						Description:  "Language name",
						Required:     true,
						Autocomplete: true,
					},
				},
			},
		},
	}
}

// handleInput handles /language input.
func (lc *LanguageCommands) handleInput(s *discordgo.Session, i *discordgo.InteractionCreate) {
	name := subcommandStringOption(i, "language")

	if strings.EqualFold(strings.TrimSpace(name), types.AutoDetect) {
		lc.updateConfig(s, i, func(cfg *types.ParticipantConfig) string {
			cfg.InputLanguage = types.AutoDetect
			return "Your spoken language is now detected automatically."
		})
		return
	}

	lang, ok := types.LanguageByName(name)
	if !ok {
		discord.RespondEphemeral(s, i, fmt.Sprintf("Unknown language %q. Use `/languages` to see what is supported.", name))
		return
	}

	lc.updateConfig(s, i, func(cfg *types.ParticipantConfig) string {
		cfg.InputLanguage = lang.Name
		return fmt.Sprintf("Your spoken language is now **%s**.", lang.Name)
	})
}

// handleOutput handles /language output.
func (lc *LanguageCommands) handleOutput(s *discordgo.Session, i *discordgo.InteractionCreate) {
	name := subcommandStringOption(i, "language")

	lang, ok := types.LanguageByName(name)
	if !ok {
		discord.RespondEphemeral(s, i, fmt.Sprintf("Unknown language %q. Use `/languages` to see what is supported.", name))
		return
	}

	lc.updateConfig(s, i, func(cfg *types.ParticipantConfig) string {
		cfg.OutputLanguage = lang.Name
		return fmt.Sprintf("Your speech is now translated into **%s**.", lang.Name)
	})
}

// handleList handles /languages.
func (lc *LanguageCommands) handleList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	var b strings.Builder
	b.WriteString("Supported languages:\n")
	for _, l := range types.Languages() {
		fmt.Fprintf(&b, "- **%s** (`%s`)\n", l.Name, l.Code)
	}
	b.WriteString("Use `auto` as input language to detect per utterance.")
	discord.RespondEphemeral(s, i, b.String())
}

// updateConfig loads the caller's configuration, applies mutate, stores it
// back, and responds with the message mutate returned. Changes apply from the
// caller's next utterance; speech already in flight is unaffected.
func (lc *LanguageCommands) updateConfig(s *discordgo.Session, i *discordgo.InteractionCreate, mutate func(*types.ParticipantConfig) string) {
	userID := interactionUserID(i)
	if userID == "" {
		discord.RespondEphemeral(s, i, "Could not determine your user ID.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), prefsTimeout)
	defer cancel()

	cfg, err := lc.prefs.Get(ctx, userID)
	if err != nil {
		discord.RespondError(s, i, fmt.Errorf("discord: load settings: %w", err))
		return
	}

	msg := mutate(&cfg)

	if err := lc.prefs.Set(ctx, cfg); err != nil {
		discord.RespondError(s, i, fmt.Errorf("discord: save settings: %w", err))
		return
	}

	discord.RespondEphemeral(s, i, msg)
}

// autocompleteLanguage returns an autocomplete handler over the supported
// language list. withAuto prepends the "auto" detection choice.
func (lc *LanguageCommands) autocompleteLanguage(withAuto bool) discord.AutocompleteFunc {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		discord.RespondChoices(s, i, languageChoices(focusedOptionValue(i), withAuto))
	}
}

// languageChoices builds the autocomplete choices matching the partial input.
func languageChoices(partial string, withAuto bool) []*discordgo.ApplicationCommandOptionChoice {
	partial = strings.ToLower(strings.TrimSpace(partial))

	var choices []*discordgo.ApplicationCommandOptionChoice
	if withAuto && (partial == "" || strings.HasPrefix(types.AutoDetect, partial)) {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  "auto (detect per utterance)",
			Value: types.AutoDetect,
		})
	}
	for _, l := range types.Languages() {
		if partial == "" || strings.HasPrefix(strings.ToLower(l.Name), partial) {
			choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
				Name:  l.Name,
				Value: l.Name,
			})
		}
	}
	return choices
}

// focusedOptionValue returns the partial value of the focused option in an
// autocomplete interaction, descending into a subcommand when present.
func focusedOptionValue(i *discordgo.InteractionCreate) string {
	data := i.ApplicationCommandData()
	opts := data.Options
	if len(opts) > 0 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		opts = opts[0].Options
	}
	for _, opt := range opts {
		if opt.Focused {
			return opt.StringValue()
		}
	}
	return ""
}

// subcommandStringOption extracts a string option value from a subcommand
// interaction.
func subcommandStringOption(i *discordgo.InteractionCreate, name string) string {
	data := i.ApplicationCommandData()
	if len(data.Options) > 0 && data.Options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		for _, opt := range data.Options[0].Options {
			if opt.Name == name {
				return opt.StringValue()
			}
		}
	}
	return ""
}
