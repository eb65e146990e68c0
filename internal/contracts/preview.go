package contracts

const (
	// MessageTypeHello opens the handshake from the editor to a rendering frame.
	MessageTypeHello = "hello"
	// MessageTypeReady is the frame's answer to hello. It is sent once per session.
	MessageTypeReady = "ready"
	// MessageTypeHeight reports the rendered height of the frame content.
	MessageTypeHeight = "height"
	// MessageTypeUpdateData carries serialized build data to the frame.
	MessageTypeUpdateData = "updateData"
	// MessageTypeRender updates viewers with the rendered preview HTML.
	MessageTypeRender = "render"
)

// IncomingMessage is the minimal envelope used to route frame messages.
type IncomingMessage struct {
	Type string `json:"type"`
}

// Message is a {type, payload} pair sent from the editor to a frame.
// Payload holds the JSON-serialized build data as a string.
type Message struct {
	Type    string `json:"type"`
	Payload string `json:"payload,omitempty"`
}

// HelloMessage starts a session. New tells the renderer that the document
// has not been populated yet.
type HelloMessage struct {
	Type      string `json:"type"`
	Session   string `json:"session"`
	Container string `json:"container"`
	New       bool   `json:"new"`
}

// ReadyMessage acknowledges a hello for the given session.
type ReadyMessage struct {
	Type    string `json:"type"`
	Session string `json:"session"`
}

// HeightMessage carries the frame's content height in pixels.
type HeightMessage struct {
	Type   string `json:"type"`
	Height int    `json:"height"`
}

// RenderMessage carries rendered HTML and revision metadata to viewers.
type RenderMessage struct {
	Type  string `json:"type"`
	HTML  string `json:"html"`
	Title string `json:"title"`
	Theme string `json:"theme"`
	Rev   uint64 `json:"rev"`
}
