package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	assert := require.New(t)
	ctx, root := Start(context.Background(), "reindex", "run-1")
	assert.Same(root, FromContext(ctx))

	_, article := StartChild(ctx, "article")
	article.SetAttr("items", 3)
	article.End()
	poll := root.Child("poll")
	poll.End()
	root.End()
	d := root.Duration
	root.End()
	assert.Equal(d, root.Duration, "End is idempotent")

	children := root.Children()
	assert.Len(children, 2)
	assert.Equal("run-1", children[0].TraceID)
	v, ok := children[0].Attr("items")
	assert.True(ok)
	assert.Equal(3, v)

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewTextHandler(&buf, nil)))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(lines, 3)
	assert.Contains(lines[1], "span=article")
	assert.Contains(lines[1], "items=3")
	assert.Contains(lines[2], "depth=1")
}

func TestStartChildWithoutParent(t *testing.T) {
	ctx, s := StartChild(context.Background(), "orphan")
	require.Same(t, s, FromContext(ctx))
	require.Empty(t, s.TraceID)
	var nilSpan *Span
	require.NotPanics(t, func() {
		nilSpan.End()
		nilSpan.SetAttr("k", 1)
	})
}
