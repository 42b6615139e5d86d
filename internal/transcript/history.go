package transcript

import "github.com/sheetwise/sheetwise/internal/llm"

// ToMessages converts persisted turns into model-facing history so a
// restored conversation replays into a fresh engine. Each assistant turn
// contributes its content message followed by the results of its terminal
// tool calls, mirroring the order the model originally saw.
func ToMessages(turns []Turn) []llm.Message {
	var out []llm.Message
	for _, turn := range turns {
		switch turn.Role {
		case RoleUser:
			if text := turnText(turn); text != "" {
				out = append(out, llm.UserText(text))
			}
		case RoleAssistant:
			msg := llm.Message{Role: llm.RoleAssistant}
			var results []llm.Message
			for _, part := range turn.Parts {
				switch part.Type {
				case PartText:
					msg.Parts = append(msg.Parts, llm.Part{Type: llm.PartText, Text: part.Text})
				case PartThinking:
					msg.Parts = append(msg.Parts, llm.Part{Type: llm.PartThinking, Thinking: part.Thinking})
				case PartToolCall:
					call := part.ToolCall
					if call == nil || !call.Status.Terminal() {
						continue
					}
					msg.Parts = append(msg.Parts, llm.Part{Type: llm.PartToolCall, ToolCall: &llm.ToolCall{
						ID:        call.ID,
						Name:      call.Name,
						Arguments: call.Args,
					}})
					results = append(results, llm.ToolResultMessage(llm.ToolResult{
						ID:      call.ID,
						Name:    call.Name,
						Content: call.Result,
						IsError: call.IsError,
					}))
				}
			}
			if len(msg.Parts) > 0 {
				out = append(out, msg)
			}
			out = append(out, results...)
		}
	}
	return out
}

func turnText(turn Turn) string {
	var text string
	for _, part := range turn.Parts {
		if part.Type == PartText {
			text += part.Text
		}
	}
	return text
}
