package firehose_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"vacunagates/firehose"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wireEvent = `{"did":"did:plc:alice","time_us":1700000000000000,"kind":"commit","commit":{"rev":"3k","operation":"create","collection":"app.bsky.feed.post","rkey":"3kabc","record":{"$type":"app.bsky.feed.post","text":"#vacunagate","createdAt":"2021-02-15T12:00:00Z"},"cid":"bafyabc"}}`

func jetstreamServer(t *testing.T, queries chan<- url.Values, messages ...string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.Query()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestJetstreamStream(t *testing.T) {
	queries := make(chan url.Values, 1)
	srv := jetstreamServer(t, queries, wireEvent, "not json")
	defer srv.Close()

	js, err := firehose.NewJetstream(firehose.JetstreamConfig{
		Hosts:             []string{wsURL(srv)},
		WantedCollections: []string{firehose.PostCollection},
		UserAgent:         "vacunagates-test",
	})
	require.NoError(t, err)

	stream, err := js.Connect(context.Background(), 42)
	require.NoError(t, err)
	defer stream.Close()

	q := <-queries
	assert.Equal(t, []string{firehose.PostCollection}, q["wantedCollections"])
	assert.Equal(t, "42", q.Get("cursor"))

	event, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice", event.Did)
	assert.Equal(t, int64(1700000000000000), event.TimeUS)
	require.NotNil(t, event.Commit)
	assert.Equal(t, "3kabc", event.Commit.RKey)
	assert.Equal(t, "bafyabc", event.Commit.CID)

	_, err = stream.Next(context.Background())
	var decodeErr *firehose.DecodeError
	assert.True(t, errors.As(err, &decodeErr), "malformed messages are decode errors")

	_, err = stream.Next(context.Background())
	require.Error(t, err)
	assert.False(t, errors.As(err, &decodeErr), "a closed connection is a transport error")
}

func TestJetstreamFailsOverToNextHost(t *testing.T) {
	queries := make(chan url.Values, 1)
	srv := jetstreamServer(t, queries)
	defer srv.Close()

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := wsURL(dead)
	dead.Close()

	js, err := firehose.NewJetstream(firehose.JetstreamConfig{Hosts: []string{deadURL, wsURL(srv)}})
	require.NoError(t, err)

	stream, err := js.Connect(context.Background(), 0)
	require.NoError(t, err)
	defer stream.Close()

	q := <-queries
	assert.Empty(t, q.Get("cursor"), "a zero cursor tails live")
}

func TestJetstreamAllHostsDown(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := wsURL(dead)
	dead.Close()

	js, err := firehose.NewJetstream(firehose.JetstreamConfig{Hosts: []string{deadURL}})
	require.NoError(t, err)

	_, err = js.Connect(context.Background(), 0)
	assert.Error(t, err)
}

func TestNewJetstreamRequiresHosts(t *testing.T) {
	_, err := firehose.NewJetstream(firehose.JetstreamConfig{})
	assert.Error(t, err)
}
