// Package alert notifies operators about swaps needing attention.
package alert

import (
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Notifier interface {
	Notify(msg string) error
}

type discordNotifier struct {
	session   *discordgo.Session
	channelID string
}

// NewDiscordNotifier sends alerts to a discord channel using a bot token.
func NewDiscordNotifier(token, channelID string) (Notifier, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	return &discordNotifier{session: session, channelID: channelID}, nil
}

func (n *discordNotifier) Notify(msg string) error {
	_, err := n.session.ChannelMessageSend(n.channelID, msg)
	return err
}

type logNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier is the fallback notifier, it only writes to the log.
func NewLogNotifier(logger *zap.Logger) Notifier {
	return &logNotifier{logger: logger.With(zap.String("service", "alert"))}
}

func (n *logNotifier) Notify(msg string) error {
	n.logger.Warn(msg)
	return nil
}
