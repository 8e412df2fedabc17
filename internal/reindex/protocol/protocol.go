// Package protocol defines the reindex action endpoint: the actions, their
// form-encoded requests, typed JSON responses and the errors a caller can
// observe.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/errors"
)

type Action string

const (
	ActionGetContentTypes  Action = "getcontenttypes"
	ActionRemoveOldContent Action = "removeoldcontent"
	ActionGetContentList   Action = "getcontentlist"
	ActionIndex            Action = "index"
	ActionContentComplete  Action = "contentcomplete"
	ActionComplete         Action = "complete"
)

// Actions lists every action in pipeline order.
var Actions = []Action{
	ActionGetContentTypes,
	ActionRemoveOldContent,
	ActionGetContentList,
	ActionIndex,
	ActionContentComplete,
	ActionComplete,
}

func ParseAction(s string) (Action, bool) {
	for _, a := range Actions {
		if string(a) == s {
			return a, true
		}
	}
	return "", false
}

// NeedsType reports whether the action operates on one content type.
func (a Action) NeedsType() bool {
	switch a {
	case ActionRemoveOldContent, ActionGetContentList, ActionIndex, ActionContentComplete:
		return true
	}
	return false
}

// Form field names.
const (
	FieldAction = "action"
	FieldType   = "type"
	FieldID     = "id"
)

// RunIDHeader carries the reindex run identifier on every action request.
const RunIDHeader = "X-Reindex-Run"

type Request struct {
	Action Action `validate:"required"`
	Type   string `validate:"max=20"`
	ID     string `validate:"max=128"`
}

// Form encodes the request as POST form values.
func (r Request) Form() url.Values {
	v := url.Values{FieldAction: {string(r.Action)}}
	if r.Type != "" {
		v.Set(FieldType, r.Type)
	}
	if r.ID != "" {
		v.Set(FieldID, r.ID)
	}
	return v
}

// ParseForm decodes a request from form values. Besides the action field,
// the older "<action>=x" presence form is accepted.
func ParseForm(v url.Values) (Request, error) {
	req := Request{Type: v.Get(FieldType), ID: v.Get(FieldID)}
	if name := v.Get(FieldAction); name != "" {
		a, ok := ParseAction(name)
		if !ok {
			return req, fmt.Errorf("%w: unknown action %q", apperrors.ErrInvalidInput, name)
		}
		req.Action = a
	} else {
		for _, a := range Actions {
			if v.Has(string(a)) {
				req.Action = a
				break
			}
		}
		if req.Action == "" {
			return req, fmt.Errorf("%w: no action given", apperrors.ErrInvalidInput)
		}
	}
	if req.Action.NeedsType() && req.Type == "" {
		return req, fmt.Errorf("%w: %s requires a type", apperrors.ErrInvalidInput, req.Action)
	}
	if req.Action == ActionIndex && req.ID == "" {
		return req, fmt.Errorf("%w: index requires an id", apperrors.ErrInvalidInput)
	}
	return req, nil
}

// Status is the common part of every response. ErrorCode zero is success.
type Status struct {
	ErrorCode int    `json:"errorCode"`
	Message   string `json:"message,omitempty"`
}

// Err returns the application error the status describes, if any.
func (s Status) Err(action Action) error {
	if s.ErrorCode == 0 {
		return nil
	}
	return &ApplicationError{Action: action, Code: s.ErrorCode, Message: s.Message}
}

type TypesResponse struct {
	Status
	ContentTypes []string `json:"contenttypes"`
}

type ListResponse struct {
	Status
	ContentList []ListItem `json:"contentlist"`
}

// ListItem accepts both string and numeric ids.
type ListItem struct {
	ID string `json:"id"`
}

func (li *ListItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	raw.ID = bytes.TrimSpace(raw.ID)
	if len(raw.ID) == 0 || string(raw.ID) == "null" {
		li.ID = ""
		return nil
	}
	if raw.ID[0] == '"' {
		return json.Unmarshal(raw.ID, &li.ID)
	}
	var n json.Number
	if err := json.Unmarshal(raw.ID, &n); err != nil {
		return fmt.Errorf("content list id: %w", err)
	}
	li.ID = n.String()
	return nil
}

// IndexResponse reports the outcome of one index action.
type IndexResponse struct {
	ErrorCode     int    `json:"errorCode"`
	StatusMessage string `json:"statusMessage,omitempty"`
}

func (r IndexResponse) Err() error {
	return Status{ErrorCode: r.ErrorCode, Message: r.StatusMessage}.Err(ActionIndex)
}

// ApplicationError is a well-formed response carrying a non-zero code.
type ApplicationError struct {
	Action  Action
	Code    int
	Message string
}

func (e *ApplicationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: error code %d", e.Action, e.Code)
	}
	return fmt.Sprintf("%s: error code %d: %s", e.Action, e.Code, e.Message)
}

// TransportError means no usable response arrived: the request failed,
// timed out, or the reply could not be decoded.
type TransportError struct {
	Action  Action
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: timed out: %v", e.Action, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Action, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is matches ErrTimeout for timed-out requests.
func (e *TransportError) Is(target error) bool {
	return e.Timeout && target == apperrors.ErrTimeout
}

// Reason returns the human-readable message an error contributes to a run's
// error log.
func Reason(err error) string {
	var appErr *ApplicationError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}

// IsTimeout reports whether err is a timed-out transport error.
func IsTimeout(err error) bool {
	return errors.Is(err, apperrors.ErrTimeout)
}

// IsApplication reports whether err came from a non-zero error code.
func IsApplication(err error) bool {
	var appErr *ApplicationError
	return errors.As(err, &appErr)
}

// TypeIndexedEvent is published when a content type finished reindexing.
type TypeIndexedEvent struct {
	RunID   string    `json:"run_id,omitempty"`
	Type    string    `json:"type"`
	Indexed int       `json:"indexed"`
	Failed  int       `json:"failed"`
	At      time.Time `json:"at"`
}

// RunCompletedEvent is published when a reindex run reports completion.
type RunCompletedEvent struct {
	RunID string    `json:"run_id,omitempty"`
	Types []string  `json:"types"`
	At    time.Time `json:"at"`
}
