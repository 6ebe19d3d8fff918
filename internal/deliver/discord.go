package deliver

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/zerocas99/zenload/internal/media"
	"github.com/zerocas99/zenload/internal/util"
)

// Discord delivers through a bot session. Chat IDs are Discord channel IDs
// carried as int64 snowflakes.
type Discord struct {
	session *discordgo.Session
}

func NewDiscord(session *discordgo.Session) *Discord {
	return &Discord{session: session}
}

func channelID(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func (d *Discord) DeliverFile(ctx context.Context, chatID int64, dl *media.Downloaded) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(dl.LocalPath)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	// The attachment name is what the channel sees; the local name is a
	// throwaway uuid.
	name := filepath.Base(dl.LocalPath)
	if dl.Caption != "" {
		name = util.SanitizeFilename(dl.Caption) + filepath.Ext(dl.LocalPath)
	}

	_, err = d.session.ChannelMessageSendComplex(channelID(chatID), &discordgo.MessageSend{
		Content: dl.Caption,
		Files: []*discordgo.File{
			{
				Name:   name,
				Reader: f,
			},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

func (d *Discord) DeliverDirect(ctx context.Context, chatID int64, link *media.DirectLink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	content := link.URL
	if link.Caption != "" {
		content = link.Caption + "\n" + link.URL
	}
	_, err := d.session.ChannelMessageSend(channelID(chatID), content, discordgo.WithContext(ctx))
	return err
}

func (d *Discord) DeliverAlbum(ctx context.Context, chatID int64, urls []string, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// Discord unfurls plain URLs; one message per batch of links keeps the
	// channel readable.
	content := caption
	for _, u := range urls {
		content += "\n" + u
	}
	_, err := d.session.ChannelMessageSend(channelID(chatID), content, discordgo.WithContext(ctx))
	return err
}

func (d *Discord) SendStatus(ctx context.Context, chatID int64, text string) (StatusRef, error) {
	if err := ctx.Err(); err != nil {
		return StatusRef{}, err
	}
	msg, err := d.session.ChannelMessageSend(channelID(chatID), text, discordgo.WithContext(ctx))
	if err != nil {
		return StatusRef{}, err
	}
	id, err := strconv.ParseInt(msg.ID, 10, 64)
	if err != nil {
		return StatusRef{}, err
	}
	return StatusRef{ChatID: chatID, MessageID: id}, nil
}

func (d *Discord) EditStatus(ctx context.Context, ref StatusRef, text string) error {
	if ref.MessageID == 0 {
		return nil
	}
	_, err := d.session.ChannelMessageEdit(channelID(ref.ChatID),
		strconv.FormatInt(ref.MessageID, 10), text, discordgo.WithContext(ctx))
	if err != nil {
		log.Printf("[Discord] Status edit failed: %v", err)
	}
	return nil
}

func (d *Discord) DeleteStatus(ctx context.Context, ref StatusRef) error {
	if ref.MessageID == 0 {
		return nil
	}
	err := d.session.ChannelMessageDelete(channelID(ref.ChatID),
		strconv.FormatInt(ref.MessageID, 10), discordgo.WithContext(ctx))
	if err != nil {
		log.Printf("[Discord] Status delete failed: %v", err)
	}
	return nil
}

func (d *Discord) SendError(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.session.ChannelMessageSend(channelID(chatID), text, discordgo.WithContext(ctx))
	return err
}
