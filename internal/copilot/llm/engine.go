// Package llm is the copilot's view of a text-completion engine.
//
// An Engine accepts a list of chat messages and returns a Stream of text
// fragments. Callers in this module always drain the stream completely
// (Complete) before interpreting it; nothing parses partial output.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrRateLimit is returned when the upstream API reports HTTP 429. The
// request was understood but cannot be served right now, so callers tell the
// user instead of retrying silently.
var ErrRateLimit = errors.New("llm: upstream rate limit exceeded")

// ErrEmptyResponse is returned by Complete when the stream ends without any
// text.
var ErrEmptyResponse = errors.New("llm: empty completion")

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a prompt.
type Message struct {
	Role    Role
	Content string
}

// System, User and Assistant are shorthands for building prompts.
func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Stream yields completion fragments. Recv returns io.EOF once the completion
// is finished. Close releases the underlying connection and may be called
// at any time, including after EOF.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Engine submits prompts. Implementations must honour ctx cancellation both
// while connecting and while the stream is being read.
type Engine interface {
	Submit(ctx context.Context, messages []Message) (Stream, error)
}

// Complete submits messages and drains the stream into a single string.
func Complete(ctx context.Context, engine Engine, messages []Message) (string, error) {
	stream, err := engine.Submit(ctx, messages)
	if err != nil {
		return "", err
	}
	text, err := Drain(ctx, stream)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Drain reads stream to the end and closes it. A cancelled ctx aborts the
// read with ctx.Err().
func Drain(ctx context.Context, stream Stream) (string, error) {
	defer stream.Close()

	var sb strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		frag, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", fmt.Errorf("llm: read stream: %w", err)
		}
		sb.WriteString(frag)
	}
}

// sliceStream replays a fixed list of fragments.
type sliceStream struct {
	frags []string
	pos   int
}

// NewSliceStream returns a Stream over the given fragments. The HTTP engine
// uses it when a server answers a streaming request with a single JSON body.
func NewSliceStream(frags ...string) Stream {
	return &sliceStream{frags: frags}
}

func (s *sliceStream) Recv() (string, error) {
	if s.pos >= len(s.frags) {
		return "", io.EOF
	}
	f := s.frags[s.pos]
	s.pos++
	return f, nil
}

func (s *sliceStream) Close() error { return nil }
