// Package discord exposes the guild manager as Discord slash commands.
package discord

import (
	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Slash command names.
const (
	CmdJoin       = "join"
	CmdLeave      = "leave"
	CmdAdd        = "add"
	CmdQueue      = "queue"
	CmdPlay       = "play"
	CmdPause      = "pause"
	CmdResume     = "resume"
	CmdClearQueue = "clear_queue"
	CmdSkip       = "skip"
	CmdSkipTo     = "skip_to"
	CmdShuffle    = "shuffle"
)

const (
	optURL    = "url"
	optNumber = "number"
)

// commandRegistrar is the part of *discordgo.Session used to manage commands.
type commandRegistrar interface {
	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// Definitions returns the slash commands served by the handler.
func Definitions() []*discordgo.ApplicationCommand {
	dmPermission := false
	minPosition := 1.0

	cmd := func(name, description string, options ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommand {
		return &discordgo.ApplicationCommand{
			Name:         name,
			Description:  description,
			Type:         discordgo.ChatApplicationCommand,
			DMPermission: &dmPermission,
			Options:      options,
		}
	}

	return []*discordgo.ApplicationCommand{
		cmd(CmdJoin, "Make the bot join your voice channel."),
		cmd(CmdLeave, "Make the bot leave the voice channel."),
		cmd(CmdAdd, "Add a YouTube video or playlist to the queue.", &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        optURL,
			Description: "YouTube video or playlist URL",
			Required:    true,
		}),
		cmd(CmdQueue, "Show the queue."),
		cmd(CmdPlay, "Play tracks from the queue."),
		cmd(CmdPause, "Pause the current track."),
		cmd(CmdResume, "Resume the paused track."),
		cmd(CmdClearQueue, "Remove every track from the queue."),
		cmd(CmdSkip, "Skip the current track."),
		cmd(CmdSkipTo, "Skip to a position in the queue.", &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        optNumber,
			Description: "Queue position to skip to",
			Required:    true,
			MinValue:    &minPosition,
		}),
		cmd(CmdShuffle, "Shuffle the queue."),
	}
}

// Register creates or replaces the slash commands. An empty guildID
// registers them globally.
func Register(s commandRegistrar, appID, guildID string) error {
	created, err := s.ApplicationCommandBulkOverwrite(appID, guildID, Definitions())
	if err != nil {
		return errors.Wrap(err, "failed to register commands")
	}
	zlog.Info().Msgf("commands registered: count=%d guild=%s", len(created), guildID)
	return nil
}

// Unregister deletes every slash command of the application.
func Unregister(s commandRegistrar, appID, guildID string) error {
	if _, err := s.ApplicationCommandBulkOverwrite(appID, guildID, []*discordgo.ApplicationCommand{}); err != nil {
		return errors.Wrap(err, "failed to unregister commands")
	}
	zlog.Info().Msgf("commands unregistered: guild=%s", guildID)
	return nil
}
