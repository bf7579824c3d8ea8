package protocol

import (
	"strings"
	"unicode/utf8"
)

// Fragment markers prefixed to every chunk of a message that does not fit in
// a single DataChannel frame. Both are exactly MarkerSize bytes long.
const (
	FragPart = "#@FrgS@#"
	FragEnd  = "#@FrgE@#"

	MarkerSize = 8
)

// DefaultFragmentSize is the largest payload carried by a single frame.
const DefaultFragmentSize = 16200

// Fragment splits payload into frames of at most maxSize payload bytes each.
// A payload that fits is returned unframed as the only element. Otherwise
// every chunk but the last is prefixed with FragPart and the last with
// FragEnd. Chunks never split a UTF-8 sequence.
func Fragment(payload string, maxSize int) []string {
	if maxSize <= 0 || len(payload) <= maxSize {
		return []string{payload}
	}

	frames := make([]string, 0, len(payload)/maxSize+1)
	for len(payload) > maxSize {
		end := maxSize
		for end > 0 && !utf8.RuneStart(payload[end]) {
			end--
		}
		if end == 0 {
			// A single rune wider than maxSize; ship it whole.
			_, end = utf8.DecodeRuneInString(payload)
		}
		frames = append(frames, FragPart+payload[:end])
		payload = payload[end:]
	}
	return append(frames, FragEnd+payload)
}

// Reassembler rebuilds messages from the frames produced by Fragment.
// It is owned by a single goroutine and needs no locking.
type Reassembler struct {
	buf strings.Builder
}

// Feed processes one inbound frame. It returns the complete message and true
// when frame is unframed or terminates a fragment sequence. An unframed
// frame arriving mid-sequence abandons the partial message.
func (r *Reassembler) Feed(frame string) (string, bool) {
	var marker string
	if len(frame) >= MarkerSize {
		marker = frame[:MarkerSize]
	}

	switch marker {
	case FragPart:
		r.buf.WriteString(frame[MarkerSize:])
		return "", false
	case FragEnd:
		r.buf.WriteString(frame[MarkerSize:])
		msg := r.buf.String()
		r.buf.Reset()
		return msg, true
	default:
		r.buf.Reset()
		return frame, true
	}
}

// Pending reports whether a fragment sequence is in progress.
func (r *Reassembler) Pending() bool {
	return r.buf.Len() > 0
}

// Reset discards any partial message.
func (r *Reassembler) Reset() {
	r.buf.Reset()
}
