package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/reindex/protocol"
	apperrors "github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/logger"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, fn http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(fn)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestClientActions(t *testing.T) {
	assert := require.New(t)
	var seen []protocol.Request
	var runIDs []string
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		req, err := protocol.ParseForm(r.PostForm)
		require.NoError(t, err)
		seen = append(seen, req)
		runIDs = append(runIDs, r.Header.Get(protocol.RunIDHeader))

		w.Header().Set("Content-Type", "application/json")
		switch req.Action {
		case protocol.ActionGetContentTypes:
			w.Write([]byte(`{"errorCode":0,"contenttypes":["article","poll"]}`))
		case protocol.ActionGetContentList:
			w.Write([]byte(`{"errorCode":3,"message":"partial","contentlist":[{"id":"1"},{"id":2}]}`))
		case protocol.ActionIndex:
			w.Write([]byte(`{"errorCode":5,"statusMessage":"disk full"}`))
		default:
			w.Write([]byte(`{"errorCode":0}`))
		}
	})
	ctx := logger.WithRunID(context.Background(), "run-1")

	types, err := c.ContentTypes(ctx)
	assert.NoError(err)
	assert.Equal([]string{"article", "poll"}, types)

	assert.NoError(c.RemoveOldContent(ctx, "article"))

	ids, err := c.ContentList(ctx, "article")
	assert.True(protocol.IsApplication(err))
	assert.Equal([]string{"1", "2"}, ids, "ids survive an application error")

	err = c.Index(ctx, "article", "42")
	assert.True(protocol.IsApplication(err))
	assert.Equal("disk full", protocol.Reason(err))

	assert.NoError(c.ContentComplete(ctx, "article"))
	assert.NoError(c.Complete(ctx))

	assert.Len(seen, 6)
	assert.Equal(protocol.Request{Action: protocol.ActionIndex, Type: "article", ID: "42"}, seen[3])
	assert.Equal("run-1", runIDs[5])
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.ContentList(ctx, "article")
	require.ErrorIs(t, err, apperrors.ErrTimeout)
	require.True(t, protocol.IsTimeout(err))
}

func TestClientTransportFailures(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("bad") != "" {
			w.Write([]byte(`<html>`))
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	err := c.Complete(context.Background())
	var te *protocol.TransportError
	require.ErrorAs(t, err, &te)
	require.False(t, te.Timeout)
	require.Contains(t, err.Error(), "unexpected status 500")

	bad := New(c.endpoint + "?bad=1")
	err = bad.RemoveOldContent(context.Background(), "article")
	require.ErrorAs(t, err, &te)
	require.Contains(t, err.Error(), "decoding response")

	down := New("http://127.0.0.1:1")
	_, err = down.ContentTypes(context.Background())
	require.ErrorAs(t, err, &te)
	require.False(t, protocol.IsTimeout(err))
}
