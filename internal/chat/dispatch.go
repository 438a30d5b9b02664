package chat

import (
	"fmt"
	"strings"

	"assistant-backend/internal/llm"
)

type DispatchKind int

const (
	DispatchDefault DispatchKind = iota
	DispatchForcedTool
	DispatchWebSearch
)

func (k DispatchKind) String() string {
	switch k {
	case DispatchForcedTool:
		return "forced_tool"
	case DispatchWebSearch:
		return "web_search"
	default:
		return "default"
	}
}

// ToolHintWebSearch is the client hint selecting search-grounded answers.
const ToolHintWebSearch = "web_search"

const webSearchAddendum = "\n\nYou must use web search at least once before answering. Base the answer on what you find and cite the sources you used."

var forcedToolAddenda = map[string]string{
	ToolGenerateImage: "\n\nThe user wants an image. Call the generateImage tool with a detailed, vivid prompt, then briefly describe what was generated.",
	ToolWriteCode:     "\n\nYou are an expert software engineer. Use the writeCode tool to frame the task, then write clean, complete and well-documented code.",
	ToolDeepResearch:  "\n\nYou are a meticulous research analyst. Use the deepResearch tool to structure the answer, then give a thorough, well-organized response.",
}

// Dispatch decides which tools a completion may use. Tool is only set for
// DispatchForcedTool.
type Dispatch struct {
	Kind DispatchKind
	Tool string
}

// ResolveDispatch maps the client's tool hint onto a dispatch. Hints naming
// neither web search nor a registered forcible tool are rejected.
func ResolveDispatch(hint string, registry *ToolRegistry) (Dispatch, error) {
	switch hint {
	case "":
		return Dispatch{Kind: DispatchDefault}, nil
	case ToolHintWebSearch, ToolWebSearch:
		return Dispatch{Kind: DispatchWebSearch}, nil
	}

	if _, forcible := forcedToolAddenda[hint]; !forcible {
		return Dispatch{}, fmt.Errorf("%w: unknown tool %q", ErrValidation, hint)
	}
	if _, ok := registry.Get(hint); !ok {
		return Dispatch{}, fmt.Errorf("%w: tool %q is not available, registered tools: %s", ErrValidation, hint, strings.Join(registry.Names(), ", "))
	}
	return Dispatch{Kind: DispatchForcedTool, Tool: hint}, nil
}

func (d Dispatch) Addendum() string {
	switch d.Kind {
	case DispatchWebSearch:
		return webSearchAddendum
	case DispatchForcedTool:
		return forcedToolAddenda[d.Tool]
	default:
		return ""
	}
}

// shape sets the model, tools and tool choice of the request for the given
// round of the tool loop. Forcing only applies to the first round so the
// model can answer once the tool has run.
func (d Dispatch) shape(req *llm.CompletionRequest, registry *ToolRegistry, round int, searchModel string) {
	switch d.Kind {
	case DispatchWebSearch:
		req.Model = searchModel
		req.WebSearch = true
		req.Tools = nil
		req.ToolChoice = llm.ToolChoice{}
	case DispatchForcedTool:
		req.Tools = registry.Definitions()
		if round == 0 {
			req.ToolChoice = llm.ToolChoice{Mode: llm.ToolChoiceNamed, Name: d.Tool}
		} else {
			req.ToolChoice = llm.ToolChoice{Mode: llm.ToolChoiceAuto}
		}
	default:
		req.Tools = registry.Definitions()
		req.ToolChoice = llm.ToolChoice{Mode: llm.ToolChoiceAuto}
	}
}
