package observability

// EventEnvelope wraps websocket lifecycle events published to the broker.
type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Headers   Headers     `json:"headers,omitempty"`
	Payload   interface{} `json:"payload"`
}

// Headers are correlation ids carried next to a published event.
type Headers map[string]string

func BuildHeaders(requestID, traceID string) Headers {
	headers := Headers{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
