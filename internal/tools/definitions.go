package tools

import (
	"github.com/wolfman30/physio-voice-agent/internal/stages"
	"github.com/wolfman30/physio-voice-agent/internal/voice"
)

// Durable tools hosted by the platform, referenced by id.
const (
	DefaultSlotToolID    = "b12be5dc-46c7-41bc-be10-ef2eee906df8"
	DefaultBookingToolID = "9b4aac67-37d0-4f1d-888f-ead39702d206"
)

// DurableTools holds the ids of the slot lookup and booking tools.
type DurableTools struct {
	SlotToolID    string
	BookingToolID string
}

func stringSchema() map[string]any {
	return map[string]any{"type": "string"}
}

func symptomSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"symptom":        stringSchema(),
			"severity":       stringSchema(),
			"duration":       stringSchema(),
			"pattern":        stringSchema(),
			"location":       stringSchema(),
			"movementImpact": stringSchema(),
		},
	}
}

func consultationSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"symptoms": map[string]any{
				"type":  "array",
				"items": symptomSchema(),
			},
			"appointment": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"type":         stringSchema(),
					"location":     stringSchema(),
					"date":         stringSchema(),
					"time":         stringSchema(),
					"mobileNumber": stringSchema(),
				},
			},
			"assessmentStatus": stringSchema(),
		},
	}
}

// Definitions returns the selected tools for a new call: the two client tools
// followed by the durable tools. Blank ids fall back to the defaults.
func Definitions(durable DurableTools) []voice.SelectedTool {
	if durable.SlotToolID == "" {
		durable.SlotToolID = DefaultSlotToolID
	}
	if durable.BookingToolID == "" {
		durable.BookingToolID = DefaultBookingToolID
	}
	return []voice.SelectedTool{
		{TemporaryTool: &voice.TemporaryTool{
			ModelToolName: ChangeStageName,
			Description:   "Change the conversation stage to a new context",
			DynamicParameters: []voice.DynamicParameter{{
				Name:     "newStage",
				Location: voice.ParameterLocationBody,
				Schema: map[string]any{
					"type":        "string",
					"enum":        stages.Names(),
					"description": "The name of the new stage to transition to",
				},
				Required: true,
			}},
			Client: &voice.ClientTool{},
		}},
		{TemporaryTool: &voice.TemporaryTool{
			ModelToolName: UpdateConsultationName,
			Description:   "Update consultation details including symptoms and appointment information",
			DynamicParameters: []voice.DynamicParameter{{
				Name:     "consultationData",
				Location: voice.ParameterLocationBody,
				Schema:   consultationSchema(),
				Required: true,
			}},
			Client: &voice.ClientTool{},
		}},
		{ToolID: durable.SlotToolID},
		{ToolID: durable.BookingToolID},
	}
}
