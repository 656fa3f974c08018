package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// PullEmitter delivers one raw progress object to the caller.
type PullEmitter func(json.RawMessage) error

// PullModel asks the local model server to download model and relays each
// progress object verbatim. It returns when the server closes the stream, the
// caller goes away, or ctx is cancelled.
func (rl *Relay) PullModel(ctx context.Context, baseURL, model string, emit PullEmitter) error {
	ctx, span := tracer.Start(ctx, "relay.pull")
	defer span.End()

	model = strings.TrimSpace(model)
	if model == "" {
		return errors.New("model is required")
	}

	body, _ := json.Marshal(map[string]any{"name": model, "stream": true})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := rl.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: pull request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ollama: pull status %d: %s", resp.StatusCode, snippet)
	}

	lines := NewLineReader(resp.Body)
	for {
		raw, err := lines.Next()
		if errors.Is(err, io.EOF) {
			log.Info().Str("model", model).Msg("Model pull stream finished")
			return nil
		}
		if err != nil {
			return fmt.Errorf("ollama: read pull stream: %w", err)
		}
		if err := emit(raw); err != nil {
			return err
		}
	}
}
