package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
)

// DefaultAnswerField receives plain text replies.
const DefaultAnswerField = "answer"

// TextHandler implements the standard text-based interface.
type TextHandler struct {
	Reader      *bufio.Reader
	Writer      io.Writer
	AnswerField string
	Prompt      string
	// Policy cleans plain text replies.
	Policy InputPolicy

	inputChan chan inputResult
	startOnce sync.Once
}

type inputResult struct {
	text string
	err  error
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithAnswerField sets the state field receiving plain text replies.
// An empty field only appends the reply to the conversation.
func WithAnswerField(field string) TextHandlerOption {
	return func(h *TextHandler) {
		h.AnswerField = field
	}
}

// WithPrompt sets the input prompt.
func WithPrompt(prompt string) TextHandlerOption {
	return func(h *TextHandler) {
		h.Prompt = prompt
	}
}

// WithInputPolicy replaces DefaultInputPolicy for plain text replies.
func WithInputPolicy(p InputPolicy) TextHandlerOption {
	return func(h *TextHandler) {
		h.Policy = p
	}
}

// NewTextHandler creates a handler for standard text IO.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{
		Reader:      bufio.NewReader(r),
		Writer:      w,
		AnswerField: DefaultAnswerField,
		Prompt:      "> ",
		Policy:      DefaultInputPolicy(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Output implements IOHandler.
func (h *TextHandler) Output(ctx context.Context, res *domain.Result) error {
	switch res.Status {
	case domain.StatusSuspended:
		fmt.Fprintf(h.Writer, ">>> Run %s suspended after %d steps.\n", res.RunID, res.Steps)
		if res.Checkpoint == nil {
			return nil
		}
		ids := make([]string, 0, len(res.Checkpoint.Payloads))
		for id := range res.Checkpoint.Payloads {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(h.Writer, "[%s] %s\n", id, renderPayload(res.Checkpoint.Payloads[id]))
		}
	case domain.StatusFailed:
		reason := "unknown error"
		if res.Checkpoint != nil && res.Checkpoint.Error != "" {
			reason = res.Checkpoint.Error
		}
		fmt.Fprintf(h.Writer, ">>> Run %s failed: %s\n", res.RunID, reason)
	default:
		if last, ok := res.State.LastMessage(); ok && last.Role == domain.RoleAssistant && last.Content != "" {
			fmt.Fprintln(h.Writer, last.Content)
		}
		fmt.Fprintf(h.Writer, ">>> Run %s %s after %d steps.\n", res.RunID, res.Status, res.Steps)
	}
	return nil
}

// Input implements IOHandler.
func (h *TextHandler) Input(ctx context.Context) (domain.Update, error) {
	h.startOnce.Do(func() {
		h.inputChan = make(chan inputResult)
		go h.pump()
	})
	fmt.Fprint(h.Writer, h.Prompt)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case in := <-h.inputChan:
		if in.err != nil {
			return nil, in.err
		}
		return parseReply(in.text, h.AnswerField, h.Policy)
	}
}

// pump reads lines in the background so Input can honour cancellation.
func (h *TextHandler) pump() {
	for {
		text, err := h.Reader.ReadString('\n')
		if text != "" {
			h.inputChan <- inputResult{text: text}
		}
		if err != nil {
			h.inputChan <- inputResult{err: err}
			return
		}
	}
}

func parseReply(raw, answerField string, policy InputPolicy) (domain.Update, error) {
	text := strings.TrimSpace(raw)
	switch strings.ToLower(text) {
	case "exit", "quit":
		return nil, ErrQuit
	}
	if strings.HasPrefix(text, "{") {
		var update domain.Update
		if err := json.Unmarshal([]byte(text), &update); err != nil {
			return nil, fmt.Errorf("invalid JSON input: %w", err)
		}
		return update, nil
	}
	clean, err := policy.Clean(text)
	if err != nil {
		return nil, err
	}
	return textUpdate(answerField, clean), nil
}

func renderPayload(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
