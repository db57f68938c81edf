// Package extract parses structured content out of free-text model output.
//
// Two grammars are supported: a bare JSON object (optionally wrapped in
// markdown code fences), and the ReAct reply format of labelled sections:
//
//	Thought: <reasoning>
//	Action: <tool name or "finish">
//	Action Input: <JSON object, single line or nested>
//
// A reply may instead close with "Final Answer: <text>", which is treated
// as the finish action. Parsing never fails hard: malformed input yields
// an explicit parse-error variant the caller can branch on.
package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ReActReply is the parsed form of one reasoning turn.
// When ParseError is set, ActionInput carries {"raw": <text>} so the loop
// can still advance instead of aborting.
type ReActReply struct {
	Thought     string
	Action      string
	ActionInput map[string]any
	ParseError  bool
}

// FinishAction is the terminal signal, compared after lowercase-trimming.
const FinishAction = "finish"

var (
	finalAnswerRe = regexp.MustCompile(`(?is)Final\s*Answer:\s*(.*)`)
	thoughtRe     = regexp.MustCompile(`(?i)Thought:\s*([^\n]+)`)
	actionRe      = regexp.MustCompile(`(?i)Action:\s*([A-Za-z][A-Za-z0-9_]*)`)
	actionInputRe = regexp.MustCompile(`(?i)Action\s*Input:\s*`)
)

// JSONObject parses a JSON object from model output, stripping markdown
// code fences and repairing near-JSON before giving up.
func JSONObject(text string) (map[string]any, error) {
	text = StripFences(text)

	var result map[string]any
	if err := json.Unmarshal([]byte(text), &result); err == nil {
		return result, nil
	}

	repaired, err := jsonrepair.JSONRepair(text)
	if err != nil {
		return nil, fmt.Errorf("parse json response: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &result); err != nil {
		return nil, fmt.Errorf("parse repaired json response: %w", err)
	}
	return result, nil
}

// StripFences removes a surrounding markdown code fence, if present.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[1 : len(lines)-1]
	} else {
		lines = lines[1:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// ReAct parses one reasoning reply. A "Final Answer:" section wins over
// everything else and maps to the finish action.
func ReAct(response string) ReActReply {
	if m := finalAnswerRe.FindStringSubmatch(response); len(m) > 1 {
		reply := ReActReply{
			Action:      FinishAction,
			ActionInput: map[string]any{"answer": strings.TrimSpace(m[1])},
		}
		if tm := thoughtRe.FindStringSubmatch(response); len(tm) > 1 {
			reply.Thought = strings.TrimSpace(tm[1])
		}
		return reply
	}

	reply := ReActReply{}
	if m := thoughtRe.FindStringSubmatch(response); len(m) > 1 {
		reply.Thought = strings.TrimSpace(m[1])
	}
	if m := actionRe.FindStringSubmatch(response); len(m) > 1 {
		reply.Action = strings.ToLower(strings.TrimSpace(m[1]))
	}

	input, degraded, found := extractActionInput(response)
	if found {
		reply.ActionInput = input
		reply.ParseError = degraded
		return reply
	}

	// No parseable structure at all: degrade rather than abort. The raw
	// text is preserved so the observation can show the model what it said.
	if reply.Action == "" {
		reply.ParseError = true
		reply.ActionInput = map[string]any{"raw": strings.TrimSpace(response)}
	}
	return reply
}

// extractActionInput pulls the JSON object after "Action Input:" using
// brace-depth counting so nested objects survive. degraded reports that
// the section was present but its JSON could not be parsed.
func extractActionInput(response string) (args map[string]any, degraded, found bool) {
	loc := actionInputRe.FindStringIndex(response)
	if loc == nil {
		return nil, false, false
	}

	rest := response[loc[1]:]
	start := strings.Index(rest, "{")
	if start < 0 {
		return nil, false, false
	}

	depth := 0
	inStr := false
	escaped := false
	for i := start; i < len(rest); i++ {
		ch := rest[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inStr {
			escaped = true
			continue
		}
		if ch == '"' {
			inStr = !inStr
			continue
		}
		if inStr {
			continue
		}
		switch ch {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				jsonStr := rest[start : i+1]
				var parsed map[string]any
				if err := json.Unmarshal([]byte(jsonStr), &parsed); err == nil {
					return parsed, false, true
				}
				if repaired, err := jsonrepair.JSONRepair(jsonStr); err == nil {
					if err := json.Unmarshal([]byte(repaired), &parsed); err == nil {
						return parsed, false, true
					}
				}
				return map[string]any{"raw": jsonStr}, true, true
			}
		}
	}
	// Truncated object (stream cut mid-JSON): hand back what we saw.
	return map[string]any{"raw": strings.TrimSpace(rest[start:])}, true, true
}
