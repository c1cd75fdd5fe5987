package types

import "encoding/json"

// ServiceDescriptor identifies a selectable chat backend.
type ServiceDescriptor struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// ServiceIndex is the discovery endpoint response.
type ServiceIndex struct {
	Services []ServiceDescriptor `json:"services"`
}

// TurnRequest is sent to a chat backend on every user turn.
type TurnRequest struct {
	Input string          `json:"input"`
	State json.RawMessage `json:"state,omitempty"`
}

// SelectionEvent tells the chat surface which backend to bind.
// CalendarEvent, when set, is used as the first turn's input.
type SelectionEvent struct {
	Name          string `json:"name"`
	URL           string `json:"url"`
	CalendarEvent string `json:"calendarEvent,omitempty"`
}

// SideChannel holds the response fields other than output and state.
type SideChannel map[string]json.RawMessage

type ErrorResponse struct {
	Error string `json:"error"`
}

// CalendarEvent is the reduced event shape exchanged between the calendar
// actions and the seed provider.
type CalendarEvent struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Organizer string `json:"organizer"`
	Summary   string `json:"summary"`
}
