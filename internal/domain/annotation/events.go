package annotation

import (
	"github.com/spanmark/spanmark/pkg/types/common"
)

type MergedEvent struct {
	common.BaseEvent
	Strict            bool `json:"strict"`
	AcceptedEntities  int  `json:"accepted_entities"`
	AcceptedRelations int  `json:"accepted_relations"`
	DroppedEntities   int  `json:"dropped_entities"`
	DroppedRelations  int  `json:"dropped_relations"`
}

func NewMergedEvent(docID common.ID, report MergeReport) *MergedEvent {
	return &MergedEvent{
		BaseEvent:         common.NewBaseEvent(string(docID)),
		Strict:            report.Strict,
		AcceptedEntities:  report.AcceptedEntities,
		AcceptedRelations: report.AcceptedRelations,
		DroppedEntities:   len(report.DroppedEntities),
		DroppedRelations:  len(report.DroppedRelations),
	}
}

type EntityDeletedEvent struct {
	common.BaseEvent
	EntityID          common.ID `json:"entity_id"`
	CascadedRelations int       `json:"cascaded_relations"`
}

func NewEntityDeletedEvent(docID, entityID common.ID, cascaded int) *EntityDeletedEvent {
	return &EntityDeletedEvent{
		BaseEvent:         common.NewBaseEvent(string(docID)),
		EntityID:          entityID,
		CascadedRelations: cascaded,
	}
}
