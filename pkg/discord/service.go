package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	ttsTimeout        = 15 * time.Second
	elevenLabsAPIBase = "https://api.elevenlabs.io/v1"
	defaultVoiceID    = "21m00Tcm4TlvDq8ikWAM"

	// Discord caps messages at 2000 characters.
	maxMessageLen = 1900
)

// Service is the discordgo-backed Coordinator.
type Service struct {
	session    *discordgo.Session
	ttsAPIKey  string
	httpClient *http.Client

	mu          sync.Mutex
	voiceConns  map[string]*discordgo.VoiceConnection // guildID → connection
	agentVoices map[string]agentVoice                 // agentID → profile
}

type agentVoice struct {
	voiceID     string
	displayName string
}

// NewService opens a Discord session with the given bot token.
func NewService(botToken, ttsAPIKey string) (*Service, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsGuildVoiceStates
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("failed to open discord session: %w", err)
	}

	return &Service{
		session:     session,
		ttsAPIKey:   ttsAPIKey,
		httpClient:  &http.Client{Timeout: ttsTimeout},
		voiceConns:  make(map[string]*discordgo.VoiceConnection),
		agentVoices: make(map[string]agentVoice),
	}, nil
}

// Close leaves all voice channels and closes the session.
func (s *Service) Close() error {
	s.mu.Lock()
	for guildID, vc := range s.voiceConns {
		if err := vc.Disconnect(); err != nil {
			slog.Warn("Failed to disconnect voice", "guild_id", guildID, "error", err)
		}
		delete(s.voiceConns, guildID)
	}
	s.mu.Unlock()
	return s.session.Close()
}

func (s *Service) EnsureTestSessionChannels(_ context.Context, guildID, testID string) (*SessionChannels, error) {
	textName := "test-" + shortID(testID)
	voiceName := "test-" + shortID(testID) + "-voice"

	channels, err := s.session.GuildChannels(guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list guild channels: %w", err)
	}

	result := &SessionChannels{}
	for _, ch := range channels {
		switch {
		case ch.Type == discordgo.ChannelTypeGuildText && ch.Name == textName:
			result.TextChannelID = ch.ID
		case ch.Type == discordgo.ChannelTypeGuildVoice && ch.Name == voiceName:
			result.VoiceChannelID = ch.ID
		}
	}

	if result.TextChannelID == "" {
		ch, err := s.session.GuildChannelCreate(guildID, textName, discordgo.ChannelTypeGuildText)
		if err != nil {
			return nil, fmt.Errorf("failed to create text channel: %w", err)
		}
		result.TextChannelID = ch.ID
	}
	if result.VoiceChannelID == "" {
		ch, err := s.session.GuildChannelCreate(guildID, voiceName, discordgo.ChannelTypeGuildVoice)
		if err != nil {
			return nil, fmt.Errorf("failed to create voice channel: %w", err)
		}
		result.VoiceChannelID = ch.ID
	}

	return result, nil
}

func (s *Service) JoinVoice(_ context.Context, guildID, channelID string) error {
	vc, err := s.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return fmt.Errorf("failed to join voice channel: %w", err)
	}
	s.mu.Lock()
	s.voiceConns[guildID] = vc
	s.mu.Unlock()
	return nil
}

func (s *Service) LeaveVoice(_ context.Context, guildID string) error {
	s.mu.Lock()
	vc, ok := s.voiceConns[guildID]
	delete(s.voiceConns, guildID)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if err := vc.Disconnect(); err != nil {
		return fmt.Errorf("failed to leave voice channel: %w", err)
	}
	return nil
}

func (s *Service) RegisterAgentVoice(agentID, voiceID, displayName string) {
	if voiceID == "" {
		voiceID = defaultVoiceID
	}
	s.mu.Lock()
	s.agentVoices[agentID] = agentVoice{voiceID: voiceID, displayName: displayName}
	s.mu.Unlock()
}

func (s *Service) UnregisterAgentVoice(agentID string) {
	s.mu.Lock()
	delete(s.agentVoices, agentID)
	s.mu.Unlock()
}

func (s *Service) SpeakAsAgent(ctx context.Context, guildID, agentID, text string) error {
	s.mu.Lock()
	voice, ok := s.agentVoices[agentID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no voice registered for agent %s", agentID)
	}
	if s.ttsAPIKey == "" {
		return fmt.Errorf("TTS not configured")
	}

	audio, err := s.synthesize(ctx, voice.voiceID, text)
	if err != nil {
		return err
	}

	// The playback sidecar consumes uploads from the voice channel's text
	// chat; the engine's responsibility ends at handing over the audio.
	channelID := s.voiceTextChannel(guildID)
	if channelID == "" {
		return fmt.Errorf("no voice channel joined for guild %s", guildID)
	}
	name := voice.displayName
	if name == "" {
		name = agentID
	}
	_, err = s.session.ChannelFileSendWithMessage(channelID,
		fmt.Sprintf("🔊 %s", name), "speech.mp3", bytes.NewReader(audio))
	if err != nil {
		return fmt.Errorf("failed to upload speech: %w", err)
	}
	return nil
}

func (s *Service) voiceTextChannel(guildID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if vc, ok := s.voiceConns[guildID]; ok {
		return vc.ChannelID
	}
	return ""
}

func (s *Service) synthesize(ctx context.Context, voiceID, text string) ([]byte, error) {
	body, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": "eleven_turbo_v2",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode TTS request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, ttsTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		elevenLabsAPIBase+"/text-to-speech/"+voiceID, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.ttsAPIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("TTS request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("TTS request failed: status=%d body=%s", resp.StatusCode, msg)
	}
	return io.ReadAll(resp.Body)
}

func (s *Service) SendText(_ context.Context, channelID, content string) error {
	if content == "" {
		return nil
	}
	for _, chunk := range splitMessage(content, maxMessageLen) {
		if _, err := s.session.ChannelMessageSend(channelID, chunk); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}
	return nil
}

// splitMessage chunks long content at newline boundaries where possible.
func splitMessage(content string, limit int) []string {
	var chunks []string
	for len(content) > limit {
		cut := strings.LastIndexByte(content[:limit], '\n')
		if cut <= 0 {
			cut = limit
		}
		chunks = append(chunks, content[:cut])
		content = strings.TrimLeft(content[cut:], "\n")
	}
	if content != "" {
		chunks = append(chunks, content)
	}
	return chunks
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
