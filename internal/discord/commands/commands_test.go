package commands

import (
	"context"
	"slices"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/voxlate/internal/app"
	"github.com/MrWong99/voxlate/internal/discord"
	"github.com/MrWong99/voxlate/internal/relay"
	"github.com/MrWong99/voxlate/pkg/audio"
	audiomock "github.com/MrWong99/voxlate/pkg/audio/mock"
	sttmock "github.com/MrWong99/voxlate/pkg/provider/stt/mock"
	translatemock "github.com/MrWong99/voxlate/pkg/provider/translate/mock"
	ttsmock "github.com/MrWong99/voxlate/pkg/provider/tts/mock"
	"github.com/MrWong99/voxlate/pkg/store/memory"
	"github.com/MrWong99/voxlate/pkg/types"
)

// newTestSessionMgr creates a SessionManager with mock dependencies.
func newTestSessionMgr() *app.SessionManager {
	out := make(chan audio.Frame, 16)
	conn := &audiomock.Connection{OutputStreamResult: out}
	platform := &audiomock.Platform{ConnectResult: conn}
	st := memory.New()

	return app.NewSessionManager(app.SessionManagerConfig{
		Platform: platform,
		Prefs:    st.Prefs(),
		Archive:  st.Archive(),
		Cache:    st.Cache(),
		Stages: relay.Stages{
			STT:       &sttmock.Provider{},
			Translate: &translatemock.Provider{},
			TTS:       &ttsmock.Provider{},
		},
		Publisher: nopPublisher{},
	})
}

// nopPublisher accepts every transcript pair.
type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, types.TranscriptPair) error { return nil }

func memberInteraction(userID string, roles ...string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Member: &discordgo.Member{
				User:  &discordgo.User{ID: userID},
				Roles: roles,
			},
		},
	}
}

func TestJoin_RequiresOperatorRole(t *testing.T) {
	t.Parallel()

	perms := discord.NewPermissionChecker("operator-role-123")
	sc := &SessionCommands{
		sessionMgr: newTestSessionMgr(),
		perms:      perms,
	}

	if sc.perms.IsOperator(memberInteraction("user-1", "other-role")) {
		t.Fatal("expected IsOperator to return false for user without the operator role")
	}
	if !sc.perms.IsOperator(memberInteraction("user-2", "operator-role-123")) {
		t.Fatal("expected IsOperator to return true for user with the operator role")
	}
}

func TestSessionCommands_RegisterDefinitions(t *testing.T) {
	t.Parallel()

	router := discord.NewCommandRouter()
	sc := &SessionCommands{
		sessionMgr: newTestSessionMgr(),
		perms:      discord.NewPermissionChecker(""),
	}
	sc.Register(router)

	var names []string
	for _, cmd := range router.ApplicationCommands() {
		names = append(names, cmd.Name)
	}
	for _, want := range []string{"join", "leave", "status"} {
		if !slices.Contains(names, want) {
			t.Errorf("registered commands %v missing %q", names, want)
		}
	}
}

func TestLanguageCommands_RegisterDefinitions(t *testing.T) {
	t.Parallel()

	st := memory.New()
	router := discord.NewCommandRouter()
	NewLanguageCommands(st.Prefs()).Register(router)

	var names []string
	for _, cmd := range router.ApplicationCommands() {
		names = append(names, cmd.Name)
	}
	for _, want := range []string{"language", "languages"} {
		if !slices.Contains(names, want) {
			t.Errorf("registered commands %v missing %q", names, want)
		}
	}
}

func TestVoiceCommands_RegisterDefinitions(t *testing.T) {
	t.Parallel()

	st := memory.New()
	router := discord.NewCommandRouter()
	NewVoiceCommands(st.Prefs(), nil).Register(router)

	var names []string
	for _, cmd := range router.ApplicationCommands() {
		names = append(names, cmd.Name)
	}
	for _, want := range []string{"voice", "config"} {
		if !slices.Contains(names, want) {
			t.Errorf("registered commands %v missing %q", names, want)
		}
	}
}

func TestLanguageChoices(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		partial  string
		withAuto bool
		first    string
		minCount int
	}{
		{name: "empty partial lists everything with auto", partial: "", withAuto: true, first: types.AutoDetect, minCount: len(types.Languages()) + 1},
		{name: "empty partial without auto", partial: "", withAuto: false, first: "English", minCount: len(types.Languages())},
		{name: "prefix filters", partial: "ge", withAuto: true, first: "German", minCount: 1},
		{name: "case insensitive", partial: "SP", withAuto: false, first: "Spanish", minCount: 1},
		{name: "auto matches its own prefix", partial: "au", withAuto: true, first: types.AutoDetect, minCount: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			choices := languageChoices(tt.partial, tt.withAuto)
			if len(choices) < tt.minCount {
				t.Fatalf("got %d choices, want at least %d", len(choices), tt.minCount)
			}
			if got := choices[0].Value.(string); got != tt.first {
				t.Errorf("first choice value = %q, want %q", got, tt.first)
			}
		})
	}
}

func TestLanguageChoices_NoMatch(t *testing.T) {
	t.Parallel()

	if got := languageChoices("klingon", true); len(got) != 0 {
		t.Errorf("got %d choices for an unknown prefix, want 0", len(got))
	}
}

func TestSubcommandStringOption(t *testing.T) {
	t.Parallel()

	i := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionApplicationCommand,
			Data: discordgo.ApplicationCommandInteractionData{
				Name: "language",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{
						Name: "input",
						Type: discordgo.ApplicationCommandOptionSubCommand,
						Options: []*discordgo.ApplicationCommandInteractionDataOption{
							{Name: "language", Type: discordgo.ApplicationCommandOptionString, Value: "German"},
						},
					},
				},
			},
		},
	}

	if got := subcommandStringOption(i, "language"); got != "German" {
		t.Errorf("subcommandStringOption = %q, want German", got)
	}
	if got := subcommandStringOption(i, "missing"); got != "" {
		t.Errorf("subcommandStringOption for missing option = %q, want empty", got)
	}
}

func TestFocusedOptionValue(t *testing.T) {
	t.Parallel()

	i := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionApplicationCommandAutocomplete,
			Data: discordgo.ApplicationCommandInteractionData{
				Name: "language",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{
						Name: "output",
						Type: discordgo.ApplicationCommandOptionSubCommand,
						Options: []*discordgo.ApplicationCommandInteractionDataOption{
							{Name: "language", Type: discordgo.ApplicationCommandOptionString, Value: "Fre", Focused: true},
						},
					},
				},
			},
		},
	}

	if got := focusedOptionValue(i); got != "Fre" {
		t.Errorf("focusedOptionValue = %q, want Fre", got)
	}
}

func TestVoiceName(t *testing.T) {
	t.Parallel()

	st := memory.New()
	vc := NewVoiceCommands(st.Prefs(), func() map[int]string {
		return map[int]string{1: "aria", 2: "atlas"}
	})

	if got := vc.voiceName(2); got != "atlas" {
		t.Errorf("voiceName(2) = %q, want atlas", got)
	}
	if got := vc.voiceName(5); got != "" {
		t.Errorf("voiceName(5) = %q, want empty", got)
	}

	nilTable := NewVoiceCommands(st.Prefs(), nil)
	if got := nilTable.voiceName(1); got != "" {
		t.Errorf("voiceName with nil table = %q, want empty", got)
	}
}

func TestInteractionUserID(t *testing.T) {
	t.Parallel()

	if got := interactionUserID(memberInteraction("user-9")); got != "user-9" {
		t.Errorf("interactionUserID = %q, want user-9", got)
	}

	dm := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{User: &discordgo.User{ID: "dm-user"}},
	}
	if got := interactionUserID(dm); got != "dm-user" {
		t.Errorf("interactionUserID = %q, want dm-user", got)
	}

	if got := interactionUserID(&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{}}); got != "" {
		t.Errorf("interactionUserID = %q, want empty", got)
	}
}
