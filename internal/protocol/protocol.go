package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello       = "HELLO"
	TypeWelcome     = "WELCOME"
	TypeEdit        = "EDIT"
	TypeEditResult  = "EDIT_RESULT"
	TypeQuery       = "QUERY"
	TypeQueryResult = "QUERY_RESULT"
	TypeTick        = "TICK"
	TypeError       = "ERROR"
)

// Edit operations.
const (
	OpPlace       = "PLACE"
	OpRemove      = "REMOVE"
	OpLoadChunk   = "LOAD_CHUNK"
	OpUnloadChunk = "UNLOAD_CHUNK"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
