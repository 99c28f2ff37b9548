package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
	// MaxQueue bounds the server-side outbound buffer for this client.
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientID        string `json:"client_id"`
	WorldID         string `json:"world_id"`
	Tick            uint64 `json:"tick"`
	TickRateHz      int    `json:"tick_rate_hz"`
	ChunkSize       int    `json:"chunk_size"`
}

// EDIT (client -> server)
type EditMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Ops             []EditOp `json:"ops"`
}

// EditOp is one world mutation. Pos addresses PLACE and REMOVE; Chunk addresses
// LOAD_CHUNK and UNLOAD_CHUNK.
type EditOp struct {
	ID  string  `json:"id,omitempty"`
	Op  string  `json:"op"`
	Pos *[2]int `json:"pos,omitempty"`

	// PLACE only.
	Kind   string `json:"kind,omitempty"`
	Fields []int  `json:"fields,omitempty"`
	// From turns a gate's input side toward the acting cell when Fields omit the facing.
	From *[2]int `json:"from,omitempty"`
	// Pristine strips runtime power from the placed block.
	Pristine bool `json:"pristine,omitempty"`

	Chunk *[2]int `json:"chunk,omitempty"`
}

// EDIT_RESULT (server -> client), one per op, sent after the tick that applied it.
type EditResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	ID              string `json:"id,omitempty"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

// QUERY (client -> server)
type QueryMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id,omitempty"`
	Pos             [2]int `json:"pos"`
}

// QUERY_RESULT (server -> client)
type QueryResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id,omitempty"`
	Tick            uint64 `json:"tick"`
	Found           bool   `json:"found"`
	// Block is the block text line ("wire 3 0 126").
	Block string `json:"block,omitempty"`
}

// TICK (server -> client): cells whose state changed during the tick.
type TickMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Tick            uint64   `json:"tick"`
	Changed         []string `json:"changed,omitempty"`
	Removed         [][2]int `json:"removed,omitempty"`
}

// ERROR (server -> client) for messages that cannot be routed to an op.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

func NewError(code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: msg}
}
