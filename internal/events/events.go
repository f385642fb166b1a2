package events

import (
	"encoding/json"
	"fmt"

	"github.com/schilling3003/Perplexica/internal/models"
)

type Type string

const (
	TypeStatus     Type = "status"
	TypeResponse   Type = "response"
	TypeSources    Type = "sources"
	TypeError      Type = "error"
	TypeMessageEnd Type = "messageEnd"
)

// Event is one element of a search stream. Only the field matching Type is
// populated: Text for status, response and error, Sources for sources.
type Event struct {
	Type    Type
	Text    string
	Sources []models.Document
	Code    models.ErrorKind
}

type wireEvent struct {
	Type Type             `json:"type"`
	Data any              `json:"data,omitempty"`
	Key  models.ErrorKind `json:"key,omitempty"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{Type: e.Type}
	switch e.Type {
	case TypeSources:
		docs := e.Sources
		if docs == nil {
			docs = []models.Document{}
		}
		w.Data = docs
	case TypeError:
		w.Data = e.Text
		w.Key = e.Code
	case TypeMessageEnd:
	default:
		w.Data = e.Text
	}
	return json.Marshal(w)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type Type             `json:"type"`
		Data json.RawMessage  `json:"data"`
		Key  models.ErrorKind `json:"key"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = Event{Type: raw.Type, Code: raw.Key}
	if len(raw.Data) == 0 {
		return nil
	}
	if raw.Type == TypeSources {
		return json.Unmarshal(raw.Data, &e.Sources)
	}
	return json.Unmarshal(raw.Data, &e.Text)
}

func (e Event) IsTerminal() bool {
	return e.Type == TypeError || e.Type == TypeMessageEnd
}

// Err rebuilds the typed error carried by an error event.
func (e Event) Err() error {
	if e.Type != TypeError {
		return nil
	}
	return models.NewError(e.Code, e.Text, nil)
}

// FormatSSE renders the event as a Server-Sent Events frame.
func FormatSSE(e Event) (string, error) {
	jsonData, err := json.Marshal(e)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("event: %s\ndata: %s\n\n", e.Type, string(jsonData)), nil
}
