package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/chungachanga/crhoy-pipeline/internal/filestore"
)

// AgentConfig is the fixed, per-agent configuration: a system prompt, a
// declared output schema, generation parameters, the model to call
// through, and an optional supplementary model for engines that can't
// produce native structured output.
type AgentConfig struct {
	Name                  string
	SystemPrompt          string
	Schema                string
	Temperature           float64
	MaxTokens             int
	Model                 string
	RequestLimit          int
	RequestLimitPeriod    int
	RequiresSupplementary bool
	SupplementaryModel    string
}

// RawDumper writes an agent's raw, pre-decode engine responses to
// {raw_dir}/{session_id}/{agent_id}_{utc_timestamp}.txt when the operator
// has KeepRawEngineResponses enabled. A nil *RawDumper, or one built with
// an empty rawDir, is a no-op.
type RawDumper struct {
	files     *filestore.Store
	rawDir    string
	sessionID string
}

// NewRawDumper creates a RawDumper scoped to one article's processing
// session (sessionID is the article ID). Pass an empty rawDir to disable
// dumping without having to thread a nil around.
func NewRawDumper(files *filestore.Store, rawDir, sessionID string) *RawDumper {
	return &RawDumper{files: files, rawDir: rawDir, sessionID: sessionID}
}

func (d *RawDumper) dump(agentID, text string) {
	if d == nil || d.files == nil || d.rawDir == "" {
		return
	}
	path := d.files.RawDumpPath(d.rawDir, d.sessionID, agentID, time.Now())
	if err := d.files.WriteAtomic(path, []byte(text)); err != nil {
		slog.Warn("llm: raw response dump failed", "agent", agentID, "err", err)
	}
}

// Agent wraps an Engine with a fixed configuration, a shared rate limiter,
// and its own linear chat history, owned by this instance alone.
type Agent struct {
	cfg      AgentConfig
	engine   Engine
	limiters *LimiterRegistry
	history  []Message
	rawDump  *RawDumper
}

// NewAgent creates an Agent. A fresh Agent should be created per article so
// histories never leak across articles. dumper may be nil to skip raw
// response dumping entirely.
func NewAgent(cfg AgentConfig, engine Engine, limiters *LimiterRegistry, dumper *RawDumper) *Agent {
	a := &Agent{cfg: cfg, engine: engine, limiters: limiters, rawDump: dumper}
	if cfg.SystemPrompt != "" {
		a.history = append(a.history, Message{Role: "system", Content: cfg.SystemPrompt})
	}
	return a
}

// Generate sends prompt through the agent's history and decodes the
// response into out (a pointer to a schema-shaped struct). On a
// deserialization or generation failure, the last user prompt is removed
// from history before returning so retries do not compound. If the
// primary model's output doesn't parse and the
// agent requires a supplementary model, a single reparse attempt is made
// at temperature 0 before giving up.
func (a *Agent) Generate(ctx context.Context, prompt string, out any) error {
	if err := a.limiters.Wait(ctx, a.cfg.Model, a.cfg.RequestLimit, a.cfg.RequestLimitPeriod); err != nil {
		return fmt.Errorf("agent %s: rate limiter: %w", a.cfg.Name, err)
	}

	a.history = append(a.history, Message{Role: "user", Content: prompt})

	resp, err := a.engine.Generate(ctx, Request{
		Model:       a.cfg.Model,
		History:     a.history[:len(a.history)-1],
		Prompt:      prompt,
		Schema:      a.cfg.Schema,
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	})
	if err != nil {
		a.dropLastPrompt()
		return fmt.Errorf("agent %s: generate: %w", a.cfg.Name, err)
	}
	a.rawDump.dump(a.cfg.Name, resp.Text)

	if decodeErr := json.Unmarshal([]byte(resp.Text), out); decodeErr != nil {
		if a.cfg.RequiresSupplementary && a.cfg.SupplementaryModel != "" {
			reparsed, reparseErr := a.reparse(ctx, resp.Text)
			if reparseErr == nil {
				a.rawDump.dump(a.cfg.Name+"_reparse", reparsed.Text)
				if decodeErr := json.Unmarshal([]byte(reparsed.Text), out); decodeErr == nil {
					a.history = append(a.history, Message{Role: "assistant", Content: resp.Text})
					return nil
				}
			}
		}
		a.dropLastPrompt()
		return fmt.Errorf("agent %s: decode response: %w", a.cfg.Name, decodeErr)
	}

	a.history = append(a.history, Message{Role: "assistant", Content: resp.Text})
	return nil
}

// reparse asks the supplementary model to coerce a prior free-text
// response into the declared schema, at temperature 0 for determinism.
func (a *Agent) reparse(ctx context.Context, freeText string) (Response, error) {
	if err := a.limiters.Wait(ctx, a.cfg.SupplementaryModel, a.cfg.RequestLimit, a.cfg.RequestLimitPeriod); err != nil {
		return Response{}, fmt.Errorf("agent %s: supplementary rate limiter: %w", a.cfg.Name, err)
	}
	return a.engine.Generate(ctx, Request{
		Model:       a.cfg.SupplementaryModel,
		History:     nil,
		Prompt:      "Reformat the following response as strict JSON matching the required schema:\n\n" + freeText,
		Schema:      a.cfg.Schema,
		Temperature: 0,
		MaxTokens:   a.cfg.MaxTokens,
	})
}

// dropLastPrompt removes the most recently appended user message so a
// retried call doesn't compound a failed turn into history.
func (a *Agent) dropLastPrompt() {
	for i := len(a.history) - 1; i >= 0; i-- {
		if a.history[i].Role == "user" {
			a.history = append(a.history[:i], a.history[i+1:]...)
			return
		}
	}
}
