package discord

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/voxlate/internal/discord/mock"
)

func testInteraction() *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{ID: "i-1"}}
}

func TestRespondEphemeral(t *testing.T) {
	t.Parallel()

	m := &mock.InteractionResponder{}
	RespondEphemeral(m, testInteraction(), "hello")

	resp := m.LastResponse()
	if resp == nil {
		t.Fatal("expected a recorded response")
	}
	if resp.Type != discordgo.InteractionResponseChannelMessageWithSource {
		t.Errorf("type = %v, want channel message", resp.Type)
	}
	if resp.Data.Content != "hello" {
		t.Errorf("content = %q, want hello", resp.Data.Content)
	}
	if resp.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Error("expected the ephemeral flag")
	}
}

func TestRespondEmbed(t *testing.T) {
	t.Parallel()

	m := &mock.InteractionResponder{}
	RespondEmbed(m, testInteraction(), &discordgo.MessageEmbed{Title: "Status"})

	resp := m.LastResponse()
	if resp == nil {
		t.Fatal("expected a recorded response")
	}
	if len(resp.Data.Embeds) != 1 || resp.Data.Embeds[0].Title != "Status" {
		t.Errorf("unexpected embeds %+v", resp.Data.Embeds)
	}
}

func TestRespondError(t *testing.T) {
	t.Parallel()

	m := &mock.InteractionResponder{}
	RespondError(m, testInteraction(), errors.New("boom"))

	resp := m.LastResponse()
	if resp == nil {
		t.Fatal("expected a recorded response")
	}
	if resp.Data.Content != "Error: boom" {
		t.Errorf("content = %q, want Error: boom", resp.Data.Content)
	}
}

func TestRespondChoices_TruncatesAt25(t *testing.T) {
	t.Parallel()

	choices := make([]*discordgo.ApplicationCommandOptionChoice, 30)
	for i := range choices {
		choices[i] = &discordgo.ApplicationCommandOptionChoice{Name: "c", Value: "v"}
	}

	m := &mock.InteractionResponder{}
	RespondChoices(m, testInteraction(), choices)

	resp := m.LastResponse()
	if resp == nil {
		t.Fatal("expected a recorded response")
	}
	if resp.Type != discordgo.InteractionApplicationCommandAutocompleteResult {
		t.Errorf("type = %v, want autocomplete result", resp.Type)
	}
	if len(resp.Data.Choices) != 25 {
		t.Errorf("got %d choices, want 25", len(resp.Data.Choices))
	}
}

func TestDeferAndFollowUp(t *testing.T) {
	t.Parallel()

	m := &mock.InteractionResponder{}
	i := testInteraction()

	DeferReply(m, i)
	if resp := m.LastResponse(); resp == nil || resp.Type != discordgo.InteractionResponseDeferredChannelMessageWithSource {
		t.Fatalf("expected a deferred response, got %+v", resp)
	}

	FollowUp(m, i, "done")
	fu := m.LastFollowUp()
	if fu == nil {
		t.Fatal("expected a recorded follow-up")
	}
	if fu.Content != "done" {
		t.Errorf("content = %q, want done", fu.Content)
	}
}
