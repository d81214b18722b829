package audit

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
)

type SlackWebhookBody struct {
	Text string `json:"text"`
}

// Sends records as simple slack messages to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
type SlackSink struct {
	WebhookURL string
	Client     *http.Client
}

func (s *SlackSink) Emit(ctx context.Context, rec Record) error {
	body, err := json.Marshal(SlackWebhookBody{Text: fmt.Sprintf("⚠️ community `%s`: %s", rec.CommunityID, rec.Summary())})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	if resp.StatusCode != 200 || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}
