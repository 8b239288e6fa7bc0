package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"docchat/models"

	"github.com/bwmarrin/discordgo"
)

// DiscordService lets users ask questions about the indexed documents from
// Discord. Messages starting with the command prefix run through the same
// conversational retrieval pipeline as the chat endpoint; recent channel
// messages become the chat history.
type DiscordService struct {
	session       *discordgo.Session
	rag           *RAGService
	commandPrefix string
	enabled       bool
	startTime     time.Time
}

// NewDiscordService creates a Discord front end. It stays disabled when
// DISCORD_BOT_TOKEN is not set.
func NewDiscordService(rag *RAGService) *DiscordService {
	token := os.Getenv("DISCORD_BOT_TOKEN")
	commandPrefix := os.Getenv("DISCORD_COMMAND_PREFIX")
	if commandPrefix == "" {
		commandPrefix = "!ask "
	}

	service := &DiscordService{
		rag:           rag,
		commandPrefix: commandPrefix,
		startTime:     time.Now(),
	}

	if token == "" {
		log.Printf("Discord bot disabled: DISCORD_BOT_TOKEN environment variable not set")
		return service
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		log.Printf("Error creating Discord session: %v", err)
		return service
	}

	service.session = session
	session.AddHandler(service.messageCreate)
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	service.enabled = true
	log.Printf("Discord service initialized with prefix: %s", commandPrefix)
	return service
}

// Start opens the Discord websocket connection.
func (d *DiscordService) Start() error {
	if !d.enabled {
		return fmt.Errorf("Discord service not enabled (missing bot token)")
	}
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("error opening Discord connection: %w", err)
	}
	log.Printf("Discord bot started. Use '%s<question>' in Discord", d.commandPrefix)
	return nil
}

// Stop closes the Discord connection.
func (d *DiscordService) Stop() error {
	if d.session != nil {
		return d.session.Close()
	}
	return nil
}

// messageCreate handles incoming Discord messages.
func (d *DiscordService) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.Bot {
		return
	}
	if !strings.HasPrefix(m.Content, d.commandPrefix) {
		return
	}

	question := strings.TrimSpace(m.Content[len(d.commandPrefix):])
	if question == "" {
		d.sendMessage(s, m.ChannelID, fmt.Sprintf("Please provide a question after `%s`", strings.TrimSpace(d.commandPrefix)))
		return
	}

	s.ChannelTyping(m.ChannelID)

	// Recent channel messages act as the conversation history so follow-up
	// questions can be rewritten into standalone queries.
	history := d.channelHistory(s, m.ChannelID, 10)
	messages := append(history, models.ChatMessage{Role: models.RoleUser, Content: question})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	answer, err := d.rag.AnswerText(ctx, messages)
	if err != nil {
		log.Printf("Discord question failed: %v", err)
		d.sendMessage(s, m.ChannelID, "Sorry, I couldn't answer that right now.")
		return
	}

	d.sendMessage(s, m.ChannelID, answer)
	log.Printf("Discord chat: %s (%s) in %s: %s", m.Author.Username, m.Author.ID, m.ChannelID, question)
}

// channelHistory fetches recent channel messages and converts them to chat
// history, oldest first. Bot replies become assistant turns.
func (d *DiscordService) channelHistory(s *discordgo.Session, channelID string, limit int) []models.ChatMessage {
	recent, err := s.ChannelMessages(channelID, limit, "", "", "")
	if err != nil {
		log.Printf("Failed to fetch channel messages: %v", err)
		return nil
	}

	var history []models.ChatMessage
	// ChannelMessages returns newest first.
	for i := len(recent) - 1; i >= 0; i-- {
		msg := recent[i]
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}

		role := models.RoleUser
		if msg.Author.Bot {
			role = models.RoleAssistant
		} else {
			content = strings.TrimSpace(strings.TrimPrefix(content, d.commandPrefix))
		}

		history = append(history, models.ChatMessage{Role: role, Content: content})
	}
	return history
}

// sendMessage sends a message to Discord, splitting at the 2000 character
// limit.
func (d *DiscordService) sendMessage(s *discordgo.Session, channelID, message string) {
	if len(message) <= 2000 {
		if _, err := s.ChannelMessageSend(channelID, message); err != nil {
			log.Printf("Error sending Discord message: %v", err)
		}
		return
	}

	chunks := d.splitMessage(message, 1900)
	for i, chunk := range chunks {
		if i > 0 {
			chunk = "...continued:\n" + chunk
		}
		if _, err := s.ChannelMessageSend(channelID, chunk); err != nil {
			log.Printf("Error sending Discord message chunk: %v", err)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// splitMessage splits a message into chunks respecting word boundaries.
func (d *DiscordService) splitMessage(message string, maxLength int) []string {
	if len(message) <= maxLength {
		return []string{message}
	}

	var chunks []string
	for len(message) > maxLength {
		splitIndex := maxLength
		if spaceIndex := strings.LastIndex(message[:maxLength], " "); spaceIndex > maxLength/2 {
			splitIndex = spaceIndex
		}
		chunks = append(chunks, message[:splitIndex])
		message = strings.TrimPrefix(message[splitIndex:], " ")
	}
	if len(message) > 0 {
		chunks = append(chunks, message)
	}
	return chunks
}

// IsEnabled returns whether the Discord service is enabled.
func (d *DiscordService) IsEnabled() bool {
	return d.enabled
}

// GetStatus returns the current status of the Discord service.
func (d *DiscordService) GetStatus() map[string]interface{} {
	status := map[string]interface{}{
		"enabled":        d.enabled,
		"command_prefix": d.commandPrefix,
		"uptime":         time.Since(d.startTime).String(),
	}

	if d.enabled && d.session != nil && d.session.State.User != nil {
		status["status"] = "connected"
		status["user"] = map[string]interface{}{
			"id":       d.session.State.User.ID,
			"username": d.session.State.User.Username,
		}
	} else if d.enabled {
		status["status"] = "initialized_not_started"
	} else {
		status["status"] = "disabled"
		status["note"] = "Set DISCORD_BOT_TOKEN environment variable to enable"
	}
	return status
}
