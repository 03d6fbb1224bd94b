package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"course-scout/config"
	"course-scout/providers"
)

// httpClient wird für alle Anfragen an den Ollama-Server verwendet.
var httpClient = &http.Client{Timeout: 120 * time.Second}

const keywordPrompt = `Extract %d to %d keywords from the following student message.
Write only separated by commas. Do not form sentences.

Text: "%s"`

// Client ist eine Struktur, die die Interaktion mit dem Ollama-Chat-API kapselt.
type Client struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewClient erstellt eine neue Instanz des Ollama-Clients.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{Config: cfg, Logger: logger}
}

// Name gibt den Namen des Extractors zurück.
func (c *Client) Name() string {
	return "ollama"
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

// ExtractKeywords extrahiert Schlüsselwörter aus einem Freitext über das Modell.
// Service-Fehler und leere Antworten werden als ExtractionError gemeldet.
func (c *Client) ExtractKeywords(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, providers.NewExtractionError("keywords", fmt.Errorf("empty input text"))
	}

	prompt := fmt.Sprintf(keywordPrompt, c.Config.MinKeywords, c.Config.MaxKeywords, text)
	raw, err := c.chat(ctx, prompt)
	if err != nil {
		return nil, providers.NewExtractionError("keywords", err)
	}

	keywords := splitKeywordReply(raw)
	if len(keywords) == 0 {
		return nil, providers.NewExtractionError("keywords", fmt.Errorf("model returned no keywords"))
	}

	if len(keywords) < c.Config.MinKeywords {
		c.Logger.Warn("Modell hat weniger Keywords geliefert als erwartet",
			zap.Int("count", len(keywords)), zap.Int("min", c.Config.MinKeywords))
	}
	if len(keywords) > c.Config.MaxKeywords {
		keywords = keywords[:c.Config.MaxKeywords]
	}

	c.Logger.Debug("Keywords vom Modell erhalten", zap.Strings("keywords", keywords))
	return keywords, nil
}

// TestConnection prüft, ob der Ollama-Server erreichbar ist und antwortet.
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.chat(ctx, "Hello, this is a test message.")
	return err
}

// chat sendet einen einzelnen User-Prompt an /api/chat und gibt die Antwort zurück.
func (c *Client) chat(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.Config.OllamaModel,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	url := strings.TrimRight(c.Config.OllamaHost, "/") + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("ollama error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if strings.TrimSpace(parsed.Message.Content) == "" {
		return "", fmt.Errorf("empty model response")
	}

	return parsed.Message.Content, nil
}

// splitKeywordReply zerlegt die kommaseparierte Modellantwort in einzelne Keywords.
func splitKeywordReply(reply string) []string {
	var keywords []string
	for _, part := range strings.Split(reply, ",") {
		if kw := strings.TrimSpace(part); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return keywords
}
