package types

// Role identifies who produced a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// PartKind discriminates message and artifact content segments.
type PartKind string

const (
	PartKindText PartKind = "text"
	PartKindData PartKind = "data"
	PartKindFile PartKind = "file"
)

// FileContent is a file reference or inline payload carried by a file part.
type FileContent struct {
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Bytes    string `json:"bytes,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// Part is one ordered content segment of a message or artifact.
type Part struct {
	Kind     PartKind     `json:"kind"`
	Text     string       `json:"text,omitempty"`
	Data     Metadata     `json:"data,omitempty"`
	File     *FileContent `json:"file,omitempty"`
	Metadata Metadata     `json:"metadata,omitempty"`
}

// TextPart builds a text segment.
func TextPart(text string) Part {
	return Part{Kind: PartKindText, Text: text}
}

// DataPart builds a structured data segment.
func DataPart(data Metadata) Part {
	return Part{Kind: PartKindData, Data: data}
}

// Clone returns a deep copy of p.
func (p Part) Clone() Part {
	out := p
	out.Data = p.Data.Clone()
	out.Metadata = p.Metadata.Clone()
	if p.File != nil {
		f := *p.File
		out.File = &f
	}
	return out
}

// CloneParts deep-copies a part list. A nil list stays nil.
func CloneParts(parts []Part) []Part {
	if parts == nil {
		return nil
	}
	out := make([]Part, len(parts))
	for i, p := range parts {
		out[i] = p.Clone()
	}
	return out
}

// Message is a single conversational turn. ContextID is required when the
// message is persisted.
type Message struct {
	MessageID string   `json:"messageId"`
	Role      Role     `json:"role"`
	Parts     []Part   `json:"parts"`
	ContextID string   `json:"contextId,omitempty"`
	TaskID    string   `json:"taskId,omitempty"`
	Metadata  Metadata `json:"metadata,omitempty"`
}

// NewTextMessage builds a single-part text message.
func NewTextMessage(id string, role Role, contextID, text string) *Message {
	return &Message{
		MessageID: id,
		Role:      role,
		Parts:     []Part{TextPart(text)},
		ContextID: contextID,
	}
}

// Clone returns a deep copy of m. Nil stays nil.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	out.Parts = CloneParts(m.Parts)
	out.Metadata = m.Metadata.Clone()
	return &out
}

// EventKind implements Event.
func (*Message) EventKind() string { return "message" }
