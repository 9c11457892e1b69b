package websocket

// ackPayload is the reply sent to a client that emitted with an
// acknowledgement callback.
func ackPayload(err error) map[string]any {
	if err != nil {
		return map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	return map[string]any{"status": "ok"}
}
