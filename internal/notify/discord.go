package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

type Discord struct {
	session   *discordgo.Session
	channelID string
}

// NewDiscord uses the REST API only; no gateway connection is opened.
func NewDiscord(token, channelID string) (*Discord, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &Discord{session: s, channelID: channelID}, nil
}

func (d *Discord) GameFinished(ctx context.Context, summary GameSummary) error {
	_, err := d.session.ChannelMessageSend(d.channelID, FormatSummary(summary), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}
	return nil
}
