package sessionservice

import (
	"encoding/json"
	"log"
)

// mustJSON marshals v, returning an empty object on the (unreachable in
// practice) marshal failure rather than panicking a live connection
// handler over a malformed event payload.
func mustJSON(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return raw
}

func logSessionError(what string, err error) {
	log.Printf("[sessionservice] %s: %v", what, err)
}
