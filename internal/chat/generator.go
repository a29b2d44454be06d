package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"studyhub/internal/metrics"
	"studyhub/internal/openai"
)

// Provider is the slice of the provider client the generator needs.
type Provider interface {
	CreateChatCompletion(ctx context.Context, model string, messages []openai.ChatMessage) (openai.Completion, error)
	AddThreadMessage(ctx context.Context, threadID, role, content string) (openai.ThreadMessage, error)
	CreateRun(ctx context.Context, threadID, assistantID string) (openai.Run, error)
	WaitRun(ctx context.Context, threadID, runID string, timeout time.Duration) (openai.Run, error)
	ListRunSteps(ctx context.Context, threadID, runID string) ([]openai.RunStep, error)
	GetThreadMessage(ctx context.Context, threadID, messageID string) (openai.ThreadMessage, error)
	ListThreadMessages(ctx context.Context, threadID string) ([]openai.ThreadMessage, error)
}

// Turn is one prior exchange projected down to what the provider needs.
type Turn struct {
	Role    string
	Content string
}

type GeneratorConfig struct {
	Provider      Provider
	ChatModel     string
	FallbackModel string
	RunTimeout    time.Duration
	Logger        zerolog.Logger
}

// Generator produces assistant replies, either through a stateless
// completion or through an assistant thread run.
type Generator struct {
	cfg GeneratorConfig
}

func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = time.Minute
	}
	return &Generator{cfg: cfg}
}

type Reply struct {
	Text   string
	Tokens int
}

func (g *Generator) modelFor(mode Mode) string {
	if mode == ModePerplexity {
		return g.cfg.FallbackModel
	}
	return g.cfg.ChatModel
}

// GenerateStateless runs one completion over the system prompt, the prior
// history, and the new user message.
func (g *Generator) GenerateStateless(ctx context.Context, mode Mode, systemPrompt string, history []Turn, userMessage string) (Reply, error) {
	messages := make([]openai.ChatMessage, 0, len(history)+2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, openai.ChatMessage{Role: "system", Content: systemPrompt})
	}
	for _, t := range history {
		messages = append(messages, openai.ChatMessage{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, openai.ChatMessage{Role: "user", Content: userMessage})

	c, err := g.cfg.Provider.CreateChatCompletion(ctx, g.modelFor(mode), messages)
	if err != nil {
		return Reply{}, fmt.Errorf("stateless generation: %w", err)
	}
	return Reply{Text: c.Text, Tokens: c.TotalTokens}, nil
}

// GenerateStateful replays history into fresh threads, appends the user
// message, runs the assistant, and extracts the produced reply.
func (g *Generator) GenerateStateful(ctx context.Context, assistantID, threadID string, newThread bool, history []Turn, userMessage string) (Reply, error) {
	if newThread {
		for _, t := range history {
			if t.Role != "user" && t.Role != "assistant" {
				continue
			}
			if _, err := g.cfg.Provider.AddThreadMessage(ctx, threadID, t.Role, t.Content); err != nil {
				return Reply{}, fmt.Errorf("replay history: %w", err)
			}
		}
	}

	if _, err := g.cfg.Provider.AddThreadMessage(ctx, threadID, "user", userMessage); err != nil {
		return Reply{}, fmt.Errorf("append user message: %w", err)
	}

	run, err := g.cfg.Provider.CreateRun(ctx, threadID, assistantID)
	if err != nil {
		return Reply{}, fmt.Errorf("create run: %w", err)
	}

	run, err = g.cfg.Provider.WaitRun(ctx, threadID, run.ID, g.cfg.RunTimeout)
	if err != nil {
		if errors.Is(err, openai.ErrRunTimeout) {
			metrics.Global().RunTimeouts.Inc()
		}
		return Reply{}, err
	}
	if !run.Status.Succeeded() {
		if !run.Status.Known() {
			g.cfg.Logger.Warn().Str("run", run.ID).Str("status", string(run.Status)).Msg("unknown run status, treating as failure")
		}
		return Reply{}, errors.New(openai.RunFailureDetail(run))
	}

	text, err := g.extractReply(ctx, threadID, run.ID)
	if err != nil {
		return Reply{}, err
	}

	tokens := 0
	if run.Usage != nil {
		tokens = run.Usage.TotalTokens
	}
	return Reply{Text: text, Tokens: tokens}, nil
}

// extractReply finds the message the run produced via its steps, falling
// back to the newest assistant message on the thread.
func (g *Generator) extractReply(ctx context.Context, threadID, runID string) (string, error) {
	steps, err := g.cfg.Provider.ListRunSteps(ctx, threadID, runID)
	if err == nil {
		for _, step := range steps {
			id := step.StepDetails.MessageCreation.MessageID
			if step.Type != "message_creation" || id == "" {
				continue
			}
			msg, err := g.cfg.Provider.GetThreadMessage(ctx, threadID, id)
			if err == nil && strings.TrimSpace(msg.Text()) != "" {
				return msg.Text(), nil
			}
		}
	} else {
		g.cfg.Logger.Warn().Err(err).Str("run", runID).Msg("run steps unavailable, scanning thread messages")
	}

	msgs, err := g.cfg.Provider.ListThreadMessages(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("list thread messages: %w", err)
	}
	for _, m := range msgs {
		if m.Role == "assistant" && strings.TrimSpace(m.Text()) != "" {
			return m.Text(), nil
		}
	}
	return "", errors.New("run completed without an assistant message")
}
