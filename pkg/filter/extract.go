package filter

import "strings"

// textKeys is the key priority used when pulling text out of a map
// payload. Covers the common LLM response shapes seen across providers.
var textKeys = []string{"content", "message", "text", "response", "completion"}

// ExtractText pulls the filterable text out of an arbitrary response
// payload. Supported shapes:
//
//	"plain string"
//	{"content": "..."} and the other textKeys, first hit wins
//	{"choices": [{"message": {"content": "..."}}]}  (OpenAI style)
//	["part", "part", ...]  joined with single spaces
//
// The second return is false when no text could be located, which the
// pipeline reports as NO_TEXT_CONTENT rather than treating as an error.
func ExtractText(payload any) (string, bool) {
	switch v := payload.(type) {
	case string:
		return v, true
	case map[string]any:
		for _, key := range textKeys {
			if raw, ok := v[key]; ok {
				if s, ok := raw.(string); ok {
					return s, true
				}
			}
		}
		if s, ok := extractChoices(v); ok {
			return s, true
		}
		return "", false
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := ExtractText(item); ok {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return "", false
		}
		return strings.Join(parts, " "), true
	default:
		return "", false
	}
}

func extractChoices(m map[string]any) (string, bool) {
	raw, ok := m["choices"]
	if !ok {
		return "", false
	}
	choices, ok := raw.([]any)
	if !ok || len(choices) == 0 {
		return "", false
	}
	choice, ok := choices[0].(map[string]any)
	if !ok {
		return "", false
	}
	message, ok := choice["message"].(map[string]any)
	if !ok {
		return "", false
	}
	content, ok := message["content"].(string)
	return content, ok
}

// InjectText writes neutralized text back into the payload in the same
// slot ExtractText read it from, returning a rewritten copy. Payloads we
// could not extract from are returned untouched.
func InjectText(payload any, text string) any {
	switch v := payload.(type) {
	case string:
		return text
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = val
		}
		for _, key := range textKeys {
			if raw, ok := out[key]; ok {
				if _, isStr := raw.(string); isStr {
					out[key] = text
					return out
				}
			}
		}
		if injectChoices(out, text) {
			return out
		}
		return v
	case []any:
		// Joined lists lose their boundaries during analysis; the
		// neutralized text replaces the list as a single element.
		return []any{text}
	default:
		return payload
	}
}

func injectChoices(m map[string]any, text string) bool {
	choices, ok := m["choices"].([]any)
	if !ok || len(choices) == 0 {
		return false
	}
	choice, ok := choices[0].(map[string]any)
	if !ok {
		return false
	}
	message, ok := choice["message"].(map[string]any)
	if !ok {
		return false
	}
	if _, ok := message["content"].(string); !ok {
		return false
	}

	newMessage := make(map[string]any, len(message))
	for k, val := range message {
		newMessage[k] = val
	}
	newMessage["content"] = text

	newChoice := make(map[string]any, len(choice))
	for k, val := range choice {
		newChoice[k] = val
	}
	newChoice["message"] = newMessage

	newChoices := make([]any, len(choices))
	copy(newChoices, choices)
	newChoices[0] = newChoice
	m["choices"] = newChoices
	return true
}
