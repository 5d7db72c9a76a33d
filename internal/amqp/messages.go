package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// Change kinds carried by ProjectChangedMessage.
const (
	ChangeInserted = "inserted"
	ChangeUpdated  = "updated"
	ChangeDeleted  = "deleted"
)

// ProjectChangedMessage notifies that a commitment or actual of a project was
// written. It carries only identifiers; the consumer re-reads the project.
type ProjectChangedMessage struct {
	ProjectID string    `json:"project_id"`
	Change    string    `json:"change,omitempty"`
	EventID   string    `json:"event_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewProjectChangedMessage(projectID, change, eventID string) *ProjectChangedMessage {
	return &ProjectChangedMessage{
		ProjectID: projectID,
		Change:    change,
		EventID:   eventID,
		Timestamp: time.Now(),
	}
}

func (m *ProjectChangedMessage) Validate() error {
	if m.ProjectID == "" {
		return errors.New("project_id is required")
	}
	switch m.Change {
	case "", ChangeInserted, ChangeUpdated, ChangeDeleted:
		return nil
	default:
		return errors.New("unknown change kind: " + m.Change)
	}
}

// ToJSON converts the message to JSON bytes
func (m *ProjectChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ProjectChangedMessageFromJSON decodes and validates a message.
func ProjectChangedMessageFromJSON(data []byte) (*ProjectChangedMessage, error) {
	var msg ProjectChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
