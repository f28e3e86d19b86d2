package narrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/arena"
)

const (
	defaultClaudeModel   = "claude-3-5-haiku-latest"
	defaultMaxTokens     = 200
	defaultStyleTimeout  = 4 * time.Second
	announcerSystemBlock = "You are the ringside announcer for a gritty back-alley skirmish. " +
		"Rewrite the combat event you are given as one short, punchy sentence of play-by-play. " +
		"Keep every name and number intact. Reply with the sentence only."
)

// ClaudeConfig configures the Claude-backed narrator.
type ClaudeConfig struct {
	APIKey    string
	Model     string
	MaxTokens int64
	Timeout   time.Duration
}

// ClaudeNarrator rewrites mechanical narration lines through the Anthropic
// Messages API before handing them to its delegate. Styling is best-effort:
// on any API failure the plain line goes through unchanged.
type ClaudeNarrator struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
	timeout   time.Duration
	delegate  arena.Narrator
	logger    *zap.Logger
}

var _ arena.Narrator = (*ClaudeNarrator)(nil)

// NewClaudeNarrator creates a ClaudeNarrator in front of delegate. A nil
// delegate styles into the void, which is only useful in tests.
//
// Precondition: logger must be non-nil.
func NewClaudeNarrator(cfg ClaudeConfig, delegate arena.Narrator, logger *zap.Logger) *ClaudeNarrator {
	if logger == nil {
		panic("narrator: NewClaudeNarrator precondition violated: logger must be non-nil")
	}
	if cfg.Model == "" {
		cfg.Model = defaultClaudeModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultStyleTimeout
	}

	var clientOpts []option.RequestOption
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &ClaudeNarrator{
		client:    &client,
		model:     anthropic.Model(cfg.Model),
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		delegate:  delegate,
		logger:    logger,
	}
}

// Narrate styles the line and forwards the event. A styling failure logs
// and forwards the original line; only the delegate's error propagates.
func (c *ClaudeNarrator) Narrate(ctx context.Context, ev arena.Narration) error {
	styled, err := c.style(ctx, ev)
	if err != nil {
		c.logger.Warn("narration styling failed, forwarding the plain line",
			zap.String("session", ev.SessionID),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err),
		)
	} else {
		ev.Line = styled
	}
	if c.delegate == nil {
		return nil
	}
	return c.delegate.Narrate(ctx, ev)
}

func (c *ClaudeNarrator) style(ctx context.Context, ev arena.Narration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(0.9),
		System:      []anthropic.TextBlockParam{{Text: announcerSystemBlock}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(stylePrompt(ev))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude narration: %w", err)
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			if text := strings.TrimSpace(block.AsText().Text); text != "" {
				return text, nil
			}
		}
	}
	return "", fmt.Errorf("claude narration: empty response")
}

// stylePrompt renders the event for the model: the kind and round give it
// the beat, the line carries the mechanics to preserve.
func stylePrompt(ev arena.Narration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event: %s\nRound: %d\n", ev.Kind, ev.Round)
	if ev.Actor != "" {
		fmt.Fprintf(&b, "Actor: %s\n", ev.Actor)
	}
	if ev.Target != "" {
		fmt.Fprintf(&b, "Target: %s\n", ev.Target)
	}
	fmt.Fprintf(&b, "Play-by-play: %s", ev.Line)
	return b.String()
}
