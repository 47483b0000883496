package suppress

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"github.com/nerdneilsfield/translens/internal/client"
	"github.com/nerdneilsfield/translens/internal/dom"
	"github.com/nerdneilsfield/translens/internal/marker"
)

type fakeNotifier struct {
	mu    sync.Mutex
	words []string
	err   error
}

func (f *fakeNotifier) MarkEasy(ctx context.Context, word string) (*client.MarkEasyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.words = append(f.words, word)
	if f.err != nil {
		return nil, f.err
	}
	return &client.MarkEasyResult{Status: "success", Word: word, NewLevel: 1, SuppressDays: 1}, nil
}

func (f *fakeNotifier) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.words...)
}

func annotatedDoc(t *testing.T) *dom.Document {
	t.Helper()
	body := `<p id="t">你好世界` +
		marker.Unit{ID: "u1", Word: "世界", Translation: "world"}.HTML() +
		`，天气` +
		marker.Unit{ID: "u2", Word: "天气", Translation: "weather"}.HTML() +
		`很好</p>`
	doc, err := dom.ParseString("<html><body>" + body + "</body></html>")
	require.NoError(t, err)
	return doc
}

func TestConfirmRemovesUnitAndNotifies(t *testing.T) {
	doc := annotatedDoc(t)
	n := &fakeNotifier{}
	i := New(doc, n, 0, zaptest.NewLogger(t))

	word, err := i.Confirm(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "世界", word)

	// 本地移除不等待通知
	var units []marker.Unit
	doc.View(func(root *html.Node) { units = Units(root) })
	require.Len(t, units, 1)
	assert.Equal(t, "u2", units[0].ID)
	assert.Equal(t, "天气", units[0].Word)
	assert.Equal(t, "weather", units[0].Translation)
	assert.NotContains(t, doc.String(), "[world]")

	i.Wait()
	assert.Equal(t, []string{"世界"}, n.calls())
}

func TestConfirmNotificationFailureKeepsRemoval(t *testing.T) {
	doc := annotatedDoc(t)
	n := &fakeNotifier{err: &client.StatusError{Endpoint: "/mark_easy", Code: 500}}
	i := New(doc, n, 0, zaptest.NewLogger(t))

	word, err := i.Confirm(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, "天气", word)
	i.Wait()

	assert.Equal(t, []string{"天气"}, n.calls())
	assert.Equal(t, 1, strings.Count(doc.String(), marker.OpenMarker))
	assert.NotContains(t, doc.String(), "[weather]")
}

func TestConfirmUnknownUnit(t *testing.T) {
	doc := annotatedDoc(t)
	n := &fakeNotifier{}
	i := New(doc, n, 0, zaptest.NewLogger(t))

	_, err := i.Confirm(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrUnitNotFound))
	i.Wait()
	assert.Empty(t, n.calls())
	assert.Equal(t, 2, strings.Count(doc.String(), marker.OpenMarker))
}

func TestConfirmAfterTeardown(t *testing.T) {
	doc := annotatedDoc(t)
	n := &fakeNotifier{}
	i := New(doc, n, 0, zaptest.NewLogger(t))

	doc.Teardown()
	_, err := i.Confirm(context.Background(), "u1")
	assert.ErrorIs(t, err, dom.ErrTornDown)
	i.Wait()
	assert.Empty(t, n.calls())
}

func TestConfirmSurvivesCallerCancel(t *testing.T) {
	doc := annotatedDoc(t)
	n := &fakeNotifier{}
	i := New(doc, n, 0, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	_, err := i.Confirm(ctx, "u1")
	require.NoError(t, err)
	cancel()

	i.Wait()
	assert.Equal(t, []string{"世界"}, n.calls())
}
