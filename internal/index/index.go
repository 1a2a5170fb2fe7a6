// Package index uploads documents into per-topic OpenAI vector stores.
package index

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const defaultSearchModel = "gpt-4o-mini"

type Indexer struct {
	client *openai.Client
	model  string
	logger *zap.Logger

	// assistantMu guards the lazily created file_search assistant.
	assistantMu sync.Mutex
	assistantID string

	pollEvery time.Duration
}

// New returns an indexer. model runs the file_search assistant used by
// Search; an empty model selects gpt-4o-mini.
func New(cfg openai.ClientConfig, model string, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if model == "" {
		model = defaultSearchModel
	}
	return &Indexer{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		logger:    logger.Named("index"),
		pollEvery: 500 * time.Millisecond,
	}
}

// StoreName is the vector store name used for a user's topic.
func StoreName(userID int64, topic string) string {
	return fmt.Sprintf("topic-chatter-%d-%s", userID, topic)
}

// AddDocument uploads data and attaches it to the store indexID, creating
// the store when indexID is empty. It returns the store id.
func (ix *Indexer) AddDocument(ctx context.Context, indexID, storeName, filename string, data []byte) (string, error) {
	if indexID == "" {
		vs, err := ix.client.CreateVectorStore(ctx, openai.VectorStoreRequest{Name: storeName})
		if err != nil {
			return "", fmt.Errorf("create vector store: %w", err)
		}
		indexID = vs.ID
		ix.logger.Info("created vector store", zap.String("store", storeName), zap.String("index_id", indexID))
	}

	file, err := ix.client.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    filename,
		Bytes:   data,
		Purpose: openai.PurposeAssistants,
	})
	if err != nil {
		return indexID, fmt.Errorf("upload file: %w", err)
	}
	if _, err := ix.client.CreateVectorStoreFile(ctx, indexID, openai.VectorStoreFileRequest{FileID: file.ID}); err != nil {
		return indexID, fmt.Errorf("attach file to vector store: %w", err)
	}
	ix.logger.Debug("indexed document", zap.String("index_id", indexID), zap.String("file", filename))
	return indexID, nil
}
