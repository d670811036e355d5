package llm

import "strings"

// CollectStream drains a stream channel into a GenerateResponse.
// It blocks until the channel is closed and returns the first error event.
func CollectStream(ch <-chan StreamEvent) (GenerateResponse, error) {
	var resp GenerateResponse
	var text strings.Builder
	var streamErr error
	for ev := range ch {
		switch ev.Type {
		case StreamEventDelta:
			text.WriteString(ev.Text)
		case StreamEventComplete:
			if ev.Response != nil {
				resp = *ev.Response
			}
		case StreamEventError:
			if streamErr == nil {
				streamErr = ev.Err
			}
		}
	}
	if streamErr != nil {
		return GenerateResponse{}, streamErr
	}
	// A provider may only report deltas; build the response from them.
	if resp.Text == "" {
		resp.Text = text.String()
	}
	if resp.StopReason == "" && resp.Text != "" {
		resp.StopReason = StopReasonEndTurn
	}
	return resp, nil
}
