package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
)

// Event is one NDJSON output line.
type Event struct {
	RunID    string           `json:"run_id"`
	Status   domain.RunStatus `json:"status"`
	Steps    int              `json:"steps"`
	Payloads map[string]any   `json:"payloads,omitempty"`
	State    domain.State     `json:"state,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// JSONHandler implements the IOHandler interface for structured JSON-Lines communication.
type JSONHandler struct {
	Reader      *bufio.Reader
	Encoder     *json.Encoder
	AnswerField string
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:      bufio.NewReader(r),
		Encoder:     json.NewEncoder(w),
		AnswerField: DefaultAnswerField,
	}
}

// Output implements IOHandler.
func (h *JSONHandler) Output(ctx context.Context, res *domain.Result) error {
	ev := Event{
		RunID:  res.RunID,
		Status: res.Status,
		Steps:  res.Steps,
		State:  res.State,
	}
	if res.Checkpoint != nil {
		ev.Payloads = res.Checkpoint.Payloads
		ev.Error = res.Checkpoint.Error
	}
	return h.Encoder.Encode(ev)
}

// Input implements IOHandler. Blank lines are skipped.
func (h *JSONHandler) Input(ctx context.Context) (domain.Update, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := h.Reader.ReadString('\n')
		text := strings.TrimSpace(line)
		if text == "" {
			if err != nil {
				return nil, err
			}
			continue
		}

		var update domain.Update
		if jsonErr := json.Unmarshal([]byte(text), &update); jsonErr == nil {
			return update, nil
		}
		var reply string
		if jsonErr := json.Unmarshal([]byte(text), &reply); jsonErr == nil {
			return parseReply(reply, h.AnswerField, DefaultInputPolicy())
		}
		return nil, fmt.Errorf("input line is neither a JSON object nor a JSON string: %q", text)
	}
}
