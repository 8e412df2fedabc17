package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestParseForm(t *testing.T) {
	cases := []struct {
		name    string
		form    url.Values
		want    Request
		invalid bool
	}{
		{"ActionField", url.Values{"action": {"index"}, "type": {"article"}, "id": {"42"}},
			Request{Action: ActionIndex, Type: "article", ID: "42"}, false},
		{"PresenceForm", url.Values{"getcontenttypes": {"x"}},
			Request{Action: ActionGetContentTypes}, false},
		{"PresenceWithType", url.Values{"removeoldcontent": {"x"}, "type": {"poll"}},
			Request{Action: ActionRemoveOldContent, Type: "poll"}, false},
		{"Complete", url.Values{"action": {"complete"}}, Request{Action: ActionComplete}, false},
		{"UnknownAction", url.Values{"action": {"explode"}}, Request{}, true},
		{"NoAction", url.Values{"type": {"article"}}, Request{}, true},
		{"MissingType", url.Values{"action": {"getcontentlist"}}, Request{}, true},
		{"MissingID", url.Values{"action": {"index"}, "type": {"article"}}, Request{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseForm(tc.form)
			if tc.invalid {
				require.ErrorIs(t, err, apperrors.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestFormRoundTrip(t *testing.T) {
	req := Request{Action: ActionIndex, Type: "article", ID: "a b&c"}
	form, err := url.ParseQuery(req.Form().Encode())
	require.NoError(t, err)
	got, err := ParseForm(form)
	require.NoError(t, err)
	require.Equal(t, req, got)
	require.False(t, Request{Action: ActionComplete}.Form().Has(FieldType))
}

func TestListItemAcceptsNumbers(t *testing.T) {
	var resp ListResponse
	require.NoError(t, json.Unmarshal([]byte(`{"errorCode":0,"contentlist":[{"id":"s1"},{"id":42},{"id":null}]}`), &resp))
	require.Equal(t, []ListItem{{ID: "s1"}, {ID: "42"}, {ID: ""}}, resp.ContentList)

	require.Error(t, json.Unmarshal([]byte(`{"contentlist":[{"id":true}]}`), &resp))
}

func TestErrors(t *testing.T) {
	assert := require.New(t)

	assert.NoError(Status{}.Err(ActionRemoveOldContent))
	err := IndexResponse{ErrorCode: 5, StatusMessage: "disk full"}.Err()
	assert.True(IsApplication(err))
	assert.False(IsTimeout(err))
	assert.Equal("disk full", Reason(err))
	assert.Equal("index: error code 5: disk full", err.Error())

	timeout := fmt.Errorf("wrapped: %w", &TransportError{Action: ActionGetContentList, Timeout: true, Err: context.DeadlineExceeded})
	assert.True(IsTimeout(timeout))
	assert.True(errors.Is(timeout, context.DeadlineExceeded))
	assert.False(IsApplication(timeout))

	refused := &TransportError{Action: ActionIndex, Err: errors.New("connection refused")}
	assert.False(IsTimeout(refused))
	assert.Equal("index: connection refused", Reason(refused))
}
