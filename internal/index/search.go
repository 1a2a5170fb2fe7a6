package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	searchTimeout      = 90 * time.Second
	searchInstructions = "Найди в прикреплённых документах фрагменты, относящиеся к вопросу, " +
		"и процитируй их дословно. Если ничего не найдено, ответь пустой строкой."
)

// Search runs a file_search pass over the vector store indexID and returns
// the passages the model quoted for query. An empty result means nothing
// relevant was found.
func (ix *Indexer) Search(ctx context.Context, indexID, query string) (string, error) {
	if indexID == "" || strings.TrimSpace(query) == "" {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	assistantID, err := ix.searchAssistant(ctx)
	if err != nil {
		return "", err
	}
	run, err := ix.client.CreateThreadAndRun(ctx, openai.CreateThreadAndRunRequest{
		RunRequest: openai.RunRequest{AssistantID: assistantID},
		Thread: openai.ThreadRequest{
			Messages: []openai.ThreadMessage{{Role: openai.ThreadMessageRoleUser, Content: query}},
			ToolResources: &openai.ToolResourcesRequest{
				FileSearch: &openai.FileSearchToolResourcesRequest{VectorStoreIDs: []string{indexID}},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("start file search: %w", err)
	}
	if run, err = ix.waitRun(ctx, run); err != nil {
		return "", err
	}

	limit, order := 1, "desc"
	msgs, err := ix.client.ListMessage(ctx, run.ThreadID, &limit, &order, nil, nil, &run.ID)
	if err != nil {
		return "", fmt.Errorf("read file search result: %w", err)
	}
	var parts []string
	for _, m := range msgs.Messages {
		if m.Role != string(openai.ThreadMessageRoleAssistant) {
			continue
		}
		for _, c := range m.Content {
			if c.Text != nil && strings.TrimSpace(c.Text.Value) != "" {
				parts = append(parts, strings.TrimSpace(c.Text.Value))
			}
		}
	}
	ix.logger.Debug("file search finished", zap.String("index_id", indexID), zap.Int("parts", len(parts)))
	return strings.Join(parts, "\n"), nil
}

func (ix *Indexer) searchAssistant(ctx context.Context) (string, error) {
	ix.assistantMu.Lock()
	defer ix.assistantMu.Unlock()
	if ix.assistantID != "" {
		return ix.assistantID, nil
	}
	name, instructions := "topic-chatter-search", searchInstructions
	a, err := ix.client.CreateAssistant(ctx, openai.AssistantRequest{
		Model:        ix.model,
		Name:         &name,
		Instructions: &instructions,
		Tools:        []openai.AssistantTool{{Type: openai.AssistantToolTypeFileSearch}},
	})
	if err != nil {
		return "", fmt.Errorf("create search assistant: %w", err)
	}
	ix.assistantID = a.ID
	ix.logger.Info("created search assistant", zap.String("assistant_id", a.ID), zap.String("model", ix.model))
	return a.ID, nil
}

func (ix *Indexer) waitRun(ctx context.Context, run openai.Run) (openai.Run, error) {
	for {
		switch run.Status {
		case openai.RunStatusCompleted:
			return run, nil
		case openai.RunStatusQueued, openai.RunStatusInProgress, openai.RunStatusCancelling:
		default:
			if run.LastError != nil {
				return run, fmt.Errorf("file search %s: %s", run.Status, run.LastError.Message)
			}
			return run, fmt.Errorf("file search ended with status %q", run.Status)
		}

		timer := time.NewTimer(ix.pollEvery)
		select {
		case <-ctx.Done():
			timer.Stop()
			return run, errors.Join(errors.New("file search timed out"), ctx.Err())
		case <-timer.C:
		}
		next, err := ix.client.RetrieveRun(ctx, run.ThreadID, run.ID)
		if err != nil {
			return run, fmt.Errorf("poll file search: %w", err)
		}
		run = next
	}
}
