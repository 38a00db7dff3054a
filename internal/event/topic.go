package event

import "strings"

// Topic is a dot-separated event name or subscription pattern.
type Topic string

// Topics published by nubridge components.
const (
	TopicFileSaved          Topic = "file.saved"
	TopicFileChanged        Topic = "file.changed"
	TopicCompileCompleted   Topic = "compile.completed"
	TopicBreakpointsChanged Topic = "breakpoints.changed"
	TopicSessionStarted     Topic = "debug.session.started"
	TopicSessionEnded       Topic = "debug.session.ended"
	TopicPositionChanged    Topic = "debug.position.changed"
	TopicCursorMoved        Topic = "debug.cursor.moved"
)

func (t Topic) String() string { return string(t) }

// Valid reports whether t is non-empty and has no empty segments.
func (t Topic) Valid() bool {
	if t == "" {
		return false
	}
	for _, seg := range strings.Split(string(t), ".") {
		if seg == "" {
			return false
		}
	}
	return true
}

// Matches reports whether topic matches the pattern t.
func (t Topic) Matches(topic Topic) bool {
	if t == topic {
		return true
	}
	return match(strings.Split(string(t), "."), strings.Split(string(topic), "."))
}

func match(pat, segs []string) bool {
	for len(pat) > 0 {
		switch pat[0] {
		case "**":
			if len(pat) == 1 {
				return true
			}
			for i := 0; i <= len(segs); i++ {
				if match(pat[1:], segs[i:]) {
					return true
				}
			}
			return false
		case "*":
			if len(segs) == 0 {
				return false
			}
		default:
			if len(segs) == 0 || segs[0] != pat[0] {
				return false
			}
		}
		pat, segs = pat[1:], segs[1:]
	}
	return len(segs) == 0
}
