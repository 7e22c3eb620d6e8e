package discord

import (
	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
)

// Responder acknowledges one command invocation.
type Responder interface {
	Reply(content string, ephemeral bool) error
	Defer(ephemeral bool) error
	Followup(content string, ephemeral bool) error
}

// interactionResponder answers a slash command interaction.
type interactionResponder struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction
}

func newInteractionResponder(s *discordgo.Session, i *discordgo.Interaction) *interactionResponder {
	return &interactionResponder{session: s, interaction: i}
}

func flags(ephemeral bool) discordgo.MessageFlags {
	if ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}

func (r *interactionResponder) Reply(content string, ephemeral bool) error {
	err := r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags(ephemeral),
		},
	})
	return errors.Wrap(err, "interaction respond")
}

func (r *interactionResponder) Defer(ephemeral bool) error {
	err := r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags(ephemeral)},
	})
	return errors.Wrap(err, "interaction defer")
}

func (r *interactionResponder) Followup(content string, ephemeral bool) error {
	_, err := r.session.FollowupMessageCreate(r.interaction, true, &discordgo.WebhookParams{
		Content: content,
		Flags:   flags(ephemeral),
	})
	return errors.Wrap(err, "interaction followup")
}
