package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/domain"
)

// RecordingClient talks to the external recording service. Start and stop
// are requests, not commands: the authoritative recording state arrives
// back through the relay as a recording_update broadcast.
type RecordingClient struct {
	base   string
	client *http.Client
}

func NewRecordingClient(baseURL string) *RecordingClient {
	return &RecordingClient{
		base:   baseURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type recordingRequest struct {
	RoomID string `json:"room_id"`
}

func (r *RecordingClient) Start(ctx context.Context, room domain.RoomID) error {
	return r.post(ctx, "/start-recording", room)
}

func (r *RecordingClient) Stop(ctx context.Context, room domain.RoomID) error {
	return r.post(ctx, "/stop-recording", room)
}

func (r *RecordingClient) post(ctx context.Context, path string, room domain.RoomID) error {
	body, _ := json.Marshal(recordingRequest{RoomID: string(room)})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("recording request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("recording request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("recording service: unexpected status %d", resp.StatusCode)
	}
	log.Info().Str("module", "adapters.http").Str("path", path).Str("room", string(room)).Msg("recording request accepted")
	return nil
}
