package inference

// Role defines message roles in a conversation.
type Role string

const (
	// RoleSystem is for instructions such as the persona preamble.
	RoleSystem Role = "system"

	// RoleUser is for user messages.
	RoleUser Role = "user"

	// RoleModel is for model replies.
	RoleModel Role = "model"
)

// Message represents a chat message in a conversation.
type Message struct {
	// Role identifies the message sender.
	Role Role

	// Content is the text content of the message.
	Content string
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewModelMessage creates a model message.
func NewModelMessage(content string) Message {
	return Message{Role: RoleModel, Content: content}
}
