package notification

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"scanhub/internal/models"
)

type Message struct {
	Title       string
	Description string
	Severity    string
	Fields      map[string]string
	Timestamp   time.Time
}

type NotificationClient struct {
	sg        *discordgo.Session
	channelID string
}

func NewNotificationClient(token, channelID string) (*NotificationClient, error) {
	if token == "" {
		return nil, fmt.Errorf("discord token not set")
	}
	if channelID == "" {
		return nil, fmt.Errorf("discord channel ID not set")
	}

	sg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	if err := sg.Open(); err != nil {
		return nil, err
	}

	return &NotificationClient{sg: sg, channelID: channelID}, nil
}

func (c *NotificationClient) getSeverityColor(severity string) int {
	switch severity {
	case "critical":
		return 0x8B0000
	case "high":
		return 0xFF0000
	case "medium":
		return 0xFF8C00
	case "low":
		return 0xFFD700
	case "info":
		return 0x00BFFF
	default:
		return 0x808080
	}
}

// NotifyScanFinished posts an embed for a scan that reached a terminal status.
func (c *NotificationClient) NotifyScanFinished(scan *models.Scan) error {
	if scan.Status == models.StatusFailed {
		return c.Send(Message{
			Title:       "Scan failed",
			Description: scan.Repository,
			Severity:    "critical",
			Fields: map[string]string{
				"Scan ID": scan.ID,
				"Error":   scan.ErrorMessage,
			},
		})
	}

	severity := "info"
	fields := map[string]string{
		"Scan ID": scan.ID,
	}
	if scan.Results != nil {
		switch {
		case scan.Results.Critical > 0:
			severity = "critical"
		case scan.Results.High > 0:
			severity = "high"
		case scan.Results.Medium > 0:
			severity = "medium"
		case scan.Results.Low > 0:
			severity = "low"
		}
		fields["Vulnerabilities"] = fmt.Sprintf("%d", scan.Results.Total())
		fields["Critical"] = fmt.Sprintf("%d", scan.Results.Critical)
		fields["High"] = fmt.Sprintf("%d", scan.Results.High)
	}
	if scan.FilesScanned > 0 {
		fields["Files scanned"] = fmt.Sprintf("%d", scan.FilesScanned)
	}

	return c.Send(Message{
		Title:       "Scan completed",
		Description: scan.Repository,
		Severity:    severity,
		Fields:      fields,
	})
}

func (c *NotificationClient) Send(msg Message) error {
	if c.sg == nil {
		return fmt.Errorf("Discord client not initialized")
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	embed := &discordgo.MessageEmbed{
		Title:       msg.Title,
		Description: msg.Description,
		Color:       c.getSeverityColor(msg.Severity),
		Timestamp:   msg.Timestamp.Format(time.RFC3339),
	}

	if len(msg.Fields) > 0 {
		fields := make([]*discordgo.MessageEmbedField, 0, len(msg.Fields))
		for key, value := range msg.Fields {
			fields = append(fields, &discordgo.MessageEmbedField{
				Name:   key,
				Value:  value,
				Inline: true,
			})
		}
		embed.Fields = fields
	}

	_, err := c.sg.ChannelMessageSendEmbed(c.channelID, embed)
	return err
}

func (c *NotificationClient) Close() error {
	if c.sg != nil {
		return c.sg.Close()
	}
	return nil
}
