package document

import (
	"github.com/spanmark/spanmark/pkg/types/common"
)

type ImportedEvent struct {
	common.BaseEvent
	Name       string `json:"name"`
	TokenCount int    `json:"token_count"`
}

func NewImportedEvent(d *Document) *ImportedEvent {
	return &ImportedEvent{
		BaseEvent:  common.NewBaseEvent(string(d.ID)),
		Name:       d.Name,
		TokenCount: len(d.Tokens),
	}
}

type ChunkedEvent struct {
	common.BaseEvent
	Name       string `json:"name"`
	ChunkCount int    `json:"chunk_count"`
	MaxTokens  int    `json:"max_tokens"`
}

func NewChunkedEvent(d *Document, chunkCount, maxTokens int) *ChunkedEvent {
	return &ChunkedEvent{
		BaseEvent:  common.NewBaseEvent(string(d.ID)),
		Name:       d.Name,
		ChunkCount: chunkCount,
		MaxTokens:  maxTokens,
	}
}

type DeletedEvent struct {
	common.BaseEvent
	Name string `json:"name"`
}

func NewDeletedEvent(d *Document) *DeletedEvent {
	return &DeletedEvent{
		BaseEvent: common.NewBaseEvent(string(d.ID)),
		Name:      d.Name,
	}
}
