package domain

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Chat reply modes.
const (
	ChatModeUpstream = "upstream"
	ChatModeMock     = "mock"
	ChatModeError    = "error"
)

// ChatMessage is the provider-agnostic chat message shape used by the use
// cases and LLM integrations. Images are only set on vision requests.
type ChatMessage struct {
	Role    string  `json:"role"`
	Content string  `json:"content"`
	Images  []Image `json:"-"`
}

// ChatTurn is a prior exchange supplied by the client.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UpstreamRole maps a client-supplied role onto the two roles the upstream
// models accept in history. Anything that is not an assistant turn is
// treated as the user.
func (t ChatTurn) UpstreamRole() string {
	if t.Role == RoleAssistant {
		return RoleAssistant
	}
	return RoleUser
}

// Image is a decoded inline image attached to a vision request.
type Image struct {
	MIMEType string
	Data     []byte
}
