package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// ToolRunner exposes external tools (an MCP server) to the assistant.
type ToolRunner interface {
	Tools(ctx context.Context) ([]Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// Retriever finds passages relevant to query in a topic's document index.
type Retriever interface {
	Search(ctx context.Context, indexID, query string) (string, error)
}

const documentsPrefix = "Фрагменты из документов темы:\n"

// Assistant answers prompts on behalf of a user.
type Assistant struct {
	client       Client
	systemPrompt string
	tools        ToolRunner
	retriever    Retriever
	logger       *zap.Logger
}

func NewAssistant(client Client, systemPrompt string, tools ToolRunner, logger *zap.Logger) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{
		client:       client,
		systemPrompt: systemPrompt,
		tools:        tools,
		logger:       logger.Named("assistant"),
	}
}

// SetRetriever enables document search for Complete calls that name an
// index. A nil retriever disables it.
func (a *Assistant) SetRetriever(r Retriever) {
	a.retriever = r
}

// Ask sends a single prompt without dialog history.
func (a *Assistant) Ask(ctx context.Context, userID int64, prompt string) (string, error) {
	return a.Complete(ctx, userID, []Message{{Role: RoleUser, Content: prompt}}, "")
}

// Complete answers the last message of history. When indexID is set, the
// passages found there for that message are added as system context. When
// the model asks for tools, they are run once and the model is asked again
// with the results.
func (a *Assistant) Complete(ctx context.Context, userID int64, history []Message, indexID string) (string, error) {
	msgs := make([]Message, 0, len(history)+2)
	if a.systemPrompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: a.systemPrompt})
	}
	if docs := a.retrieve(ctx, userID, indexID, history); docs != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: documentsPrefix + docs})
	}
	msgs = append(msgs, history...)

	tc, tools := a.toolSetup(ctx)
	var (
		resp Response
		err  error
	)
	if len(tools) > 0 {
		resp, err = tc.GenerateWithTools(ctx, msgs, tools)
	} else {
		resp, err = a.client.Generate(ctx, msgs)
	}
	if err != nil {
		return "", err
	}
	a.logResponse(userID, resp)

	if len(resp.ToolCalls) == 0 || len(tools) == 0 {
		return resp.Content, nil
	}

	msgs = append(msgs, Message{Role: RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
	for _, call := range resp.ToolCalls {
		msgs = append(msgs, Message{Role: RoleTool, ToolCallID: call.ID, Content: a.runTool(ctx, userID, call)})
	}
	final, err := a.client.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("follow-up after tool calls: %w", err)
	}
	a.logResponse(userID, final)
	return final.Content, nil
}

// retrieve searches indexID with the last user message. Failures are
// logged and answered without documents.
func (a *Assistant) retrieve(ctx context.Context, userID int64, indexID string, history []Message) string {
	if a.retriever == nil || indexID == "" {
		return ""
	}
	query := ""
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			query = history[i].Content
			break
		}
	}
	if query == "" {
		return ""
	}
	docs, err := a.retriever.Search(ctx, indexID, query)
	if err != nil {
		a.logger.Warn("document search failed", zap.Int64("user_id", userID), zap.String("index_id", indexID), zap.Error(err))
		return ""
	}
	return docs
}

func (a *Assistant) toolSetup(ctx context.Context) (ToolClient, []Tool) {
	if a.tools == nil {
		return nil, nil
	}
	tc, ok := a.client.(ToolClient)
	if !ok {
		return nil, nil
	}
	tools, err := a.tools.Tools(ctx)
	if err != nil {
		a.logger.Warn("tool discovery failed", zap.Error(err))
		return nil, nil
	}
	return tc, tools
}

// runTool returns the tool output, or a JSON error object the model can read.
func (a *Assistant) runTool(ctx context.Context, userID int64, call ToolCall) string {
	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			a.logger.Warn("bad tool arguments", zap.String("tool", call.Name), zap.Error(err))
			return errorJSON(fmt.Errorf("invalid arguments: %w", err))
		}
	}
	a.logger.Info("calling tool", zap.Int64("user_id", userID), zap.String("tool", call.Name))
	out, err := a.tools.CallTool(ctx, call.Name, args)
	if err != nil {
		a.logger.Error("tool call failed", zap.String("tool", call.Name), zap.Error(err))
		return errorJSON(err)
	}
	return out
}

func errorJSON(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(b)
}

func (a *Assistant) logResponse(userID int64, resp Response) {
	a.logger.Debug("llm response",
		zap.Int64("user_id", userID),
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.PromptTokens),
		zap.Int("completion_tokens", resp.CompletionTokens),
		zap.Int("total_tokens", resp.TotalTokens),
		zap.Int("tool_calls", len(resp.ToolCalls)))
}
