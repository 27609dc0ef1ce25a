package openai

import (
	"strings"

	llmstream "github.com/haowjy/meridian-stream-go"
)

const (
	thinkOpenTag  = "<think>"
	thinkCloseTag = "</think>"
)

type thinkTagKey struct{}

// thinkTagState survives between chunks of one turn: whether a <think> run
// is open and any trailing text that may be the start of a split tag.
type thinkTagState struct {
	inside bool
	carry  string
}

func thinkTags(state *llmstream.TurnState) *thinkTagState {
	if ts, ok := state.Value(thinkTagKey{}).(*thinkTagState); ok {
		return ts
	}
	ts := &thinkTagState{}
	state.SetValue(thinkTagKey{}, ts)
	return ts
}

func insideThinkTag(state *llmstream.TurnState) bool {
	ts, ok := state.Value(thinkTagKey{}).(*thinkTagState)
	return ok && ts.inside
}

// appendWithThinkTags routes content to the thinking channel while inside
// <think>…</think> and to the text channel otherwise. Tags split across
// chunks are held back until they can be recognized.
func appendWithThinkTags(text string, state *llmstream.TurnState, emit llmstream.Emit) error {
	ts := thinkTags(state)
	buf := ts.carry + text
	ts.carry = ""

	for buf != "" {
		tag := thinkOpenTag
		if ts.inside {
			tag = thinkCloseTag
		}

		if i := strings.Index(buf, tag); i >= 0 {
			if err := ts.append(buf[:i], state, emit); err != nil {
				return err
			}
			buf = buf[i+len(tag):]
			ts.inside = !ts.inside
			if !ts.inside {
				if err := state.CloseThinking(emit); err != nil {
					return err
				}
				buf = strings.TrimLeft(buf, "\n")
			}
			continue
		}

		keep := partialTagSuffix(buf, tag)
		if err := ts.append(buf[:len(buf)-keep], state, emit); err != nil {
			return err
		}
		ts.carry = buf[len(buf)-keep:]
		break
	}
	return nil
}

func (ts *thinkTagState) append(text string, state *llmstream.TurnState, emit llmstream.Emit) error {
	if ts.inside {
		return state.AppendThinking(text, emit)
	}
	return state.AppendText(text, emit)
}

// flushThinkTags releases held-back text at the end of the turn.
func flushThinkTags(state *llmstream.TurnState, emit llmstream.Emit) error {
	ts, ok := state.Value(thinkTagKey{}).(*thinkTagState)
	if !ok || ts.carry == "" {
		return nil
	}
	carry := ts.carry
	ts.carry = ""
	return ts.append(carry, state, emit)
}

// partialTagSuffix returns the length of the longest suffix of s that is a
// proper prefix of tag.
func partialTagSuffix(s, tag string) int {
	max := len(tag) - 1
	if len(s) < max {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return n
		}
	}
	return 0
}
