// Package export serialises conversation sessions together with their
// per-turn analysis.
package export

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"
	"github.com/shreyachakravarty07/AgentTrace/pkg/analysis"
	"github.com/shreyachakravarty07/AgentTrace/pkg/models"
)

// TimeLayout formats Session.ExportedAt.
const TimeLayout = "2006-01-02 15:04:05"

// Conversation is the part of a conversation an export needs.
type Conversation interface {
	Model() string
	MaxLength() int
	History() []models.Turn
}

type Turn struct {
	Prompt   string           `json:"prompt"`
	Response string           `json:"response"`
	Analysis analysis.Metrics `json:"analysis"`
}

type Session struct {
	ExportedAt string `json:"exported_at"`
	ModelName  string `json:"model_name"`
	MaxLength  int    `json:"max_length"`
	Turns      []Turn `json:"turns"`
}

// NewSession snapshots conv, analysing every turn.
func NewSession(conv Conversation, now time.Time) Session {
	history := conv.History()
	s := Session{
		ExportedAt: now.Format(TimeLayout),
		ModelName:  conv.Model(),
		MaxLength:  conv.MaxLength(),
		Turns:      make([]Turn, 0, len(history)),
	}
	for _, t := range history {
		s.Turns = append(s.Turns, Turn{
			Prompt:   t.Prompt,
			Response: t.Response,
			Analysis: analysis.Analyze(t.Prompt, t.Response),
		})
	}
	return s
}

// Marshal renders the session as JSON indented by four spaces.
func (s Session) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal session")
	}
	return data, nil
}

// WriteJSON writes the session to path atomically.
func WriteJSON(path string, s Session) error {
	data, err := s.Marshal()
	if err != nil {
		return err
	}
	return WriteFile(path, data)
}

// WriteFile replaces path with data atomically, so readers never observe a
// partially written file.
func WriteFile(path string, data []byte) error {
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// ReadJSON loads a session previously written by WriteJSON.
func ReadJSON(path string) (Session, error) {
	var s Session
	data, err := os.ReadFile(path)
	if err != nil {
		return s, errors.Wrapf(err, "failed to read %s", path)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, errors.Wrapf(err, "failed to parse session %s", path)
	}
	return s, nil
}
