package llm

import (
	"encoding/json"
	"strings"
)

// extractJSON pulls a JSON document out of a response that may carry extra
// prose or markdown fences around it. Both the widest object span and the
// widest array span are considered; when both parse, the one starting
// earlier in the text wins. If neither candidate is valid JSON the input is
// returned unchanged so the caller's unmarshal reports the real error.
func extractJSON(text string) string {
	objStart, obj := widestSpan(text, '{', '}')
	arrStart, arr := widestSpan(text, '[', ']')

	objValid := obj != "" && json.Valid([]byte(obj))
	arrValid := arr != "" && json.Valid([]byte(arr))

	switch {
	case objValid && arrValid:
		if arrStart < objStart {
			return arr
		}

		return obj
	case objValid:
		return obj
	case arrValid:
		return arr
	default:
		return text
	}
}

// widestSpan returns the start index and substring from the first opening
// delimiter to the last closing delimiter, or -1 and "" when absent.
func widestSpan(text string, opening, closing byte) (int, string) {
	start := strings.IndexByte(text, opening)
	end := strings.LastIndexByte(text, closing)

	if start == -1 || end == -1 || end <= start {
		return -1, ""
	}

	return start, text[start : end+1]
}
