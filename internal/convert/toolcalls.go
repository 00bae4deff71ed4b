package convert

import (
	"encoding/json"
	"sort"

	"github.com/hllvc/llmproxy/internal/wireformat"
)

// RecordedTool is the subset of a request's tool declaration retained for
// the streaming name-inference heuristic.
type RecordedTool struct {
	Name string
	Keys []string // top-level keys of the JSON schema's "properties" object
}

// recordedToolsFromAnthropic extracts the key set of every declared tool's
// input schema so a later arguments-only delta can be matched back to a name.
func recordedToolsFromAnthropic(tools []wireformat.ToolDef) []RecordedTool {
	out := make([]RecordedTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, RecordedTool{Name: t.Name, Keys: schemaKeys(t.InputSchema)})
	}
	return out
}

func recordedToolsFromChat(tools []wireformat.ChatTool) []RecordedTool {
	out := make([]RecordedTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, RecordedTool{Name: t.Function.Name, Keys: schemaKeys(t.Function.Parameters)})
	}
	return out
}

func recordedToolsFromResponses(tools []wireformat.ResponsesTool) []RecordedTool {
	out := make([]RecordedTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, RecordedTool{Name: t.Name, Keys: schemaKeys(t.Parameters)})
	}
	return out
}

func schemaKeys(schema json.RawMessage) []string {
	if len(schema) == 0 {
		return nil
	}
	var s struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(schema, &s); err != nil {
		return nil
	}
	keys := make([]string, 0, len(s.Properties))
	for k := range s.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// inferToolName guesses the tool that produced a partial-arguments JSON
// object by comparing the object's top-level keys against each recorded
// tool's schema key set: an exact key-set match wins outright; otherwise a
// tool whose key set is a superset of the observed keys is accepted only if
// it is the unique such candidate.
func inferToolName(partialArgs string, tools []RecordedTool) string {
	observed := objectKeys(partialArgs)
	if len(observed) == 0 || len(tools) == 0 {
		return ""
	}
	for _, t := range tools {
		if sameKeySet(observed, t.Keys) {
			return t.Name
		}
	}
	var candidate string
	matches := 0
	for _, t := range tools {
		if isSubset(observed, t.Keys) {
			candidate = t.Name
			matches++
		}
	}
	if matches == 1 {
		return candidate
	}
	return ""
}

func objectKeys(partial string) []string {
	// partial_json is frequently incomplete; only a buffer that already
	// parses as a complete JSON object yields keys, anything else yields none.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(partial), &raw); err == nil {
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	}
	return nil
}

func sameKeySet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	return isSubset(a, b)
}

func isSubset(a, b []string) bool {
	set := make(map[string]struct{}, len(b))
	for _, k := range b {
		set[k] = struct{}{}
	}
	for _, k := range a {
		if _, ok := set[k]; !ok {
			return false
		}
	}
	return true
}

// toolCallAccumulator buffers one streaming tool call's argument text until
// the block closes, tracking whether its name has been emitted yet.
type toolCallAccumulator struct {
	ID          string
	Name        string
	NameEmitted bool
	Args        string
}
