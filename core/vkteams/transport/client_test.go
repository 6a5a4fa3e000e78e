package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "001.0123456789.secret:1000"

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(Options{BaseURL: srv.URL, BasePath: "/bot/v1/", Token: testToken, Timeout: 2 * time.Second})
	t.Cleanup(c.Close)
	return c
}

func TestDoBuildsURLAndDropsAbsentParams(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		_, _ = io.WriteString(w, `{"ok":true,"msgId":"57"}`)
	})

	var noReply *string
	resp, err := c.Do(context.Background(), Request{
		Endpoint: "messages/sendText",
		Params: Params{
			"chatId":     "alice@corp.example",
			"text":       "hi",
			"replyMsgId": noReply,
			"parseMode":  nil,
			"format":     Absent,
			"msgId":      []int64{1, 2},
			"showAlert":  false,
		},
	})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "57", resp.String("msgId"))

	require.NotNil(t, got)
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/bot/v1/messages/sendText", got.URL.Path)
	q := got.URL.Query()
	assert.Equal(t, testToken, q.Get("token"))
	assert.Equal(t, "alice@corp.example", q.Get("chatId"))
	assert.Equal(t, []string{"1", "2"}, q["msgId"])
	assert.Equal(t, "false", q.Get("showAlert"))
	for _, k := range []string{"replyMsgId", "parseMode", "format"} {
		_, present := q[k]
		assert.Falsef(t, present, "%s must not be sent", k)
	}
}

func TestDoUploadsMultipartFile(t *testing.T) {
	var (
		method, filename, content string
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		f, hdr, err := r.FormFile("file")
		if err == nil {
			filename = hdr.Filename
			data, _ := io.ReadAll(f)
			content = string(data)
		}
		_, _ = io.WriteString(w, `{"ok":true,"fileId":"F1"}`)
	})

	resp, err := c.Do(context.Background(), Request{
		Endpoint: "messages/sendFile",
		Params:   Params{"chatId": "c1"},
		File:     &FilePart{Filename: "report.txt", Data: []byte("hello")},
	})
	require.NoError(t, err)
	assert.Equal(t, "F1", resp.String("fileId"))
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "report.txt", filename)
	assert.Equal(t, "hello", content)
}

func TestDoClassifiesStatusCodes(t *testing.T) {
	status := http.StatusBadGateway
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"ok":false}`)
	})

	_, err := c.Do(context.Background(), Request{Endpoint: "events/get"})
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Status)
	assert.True(t, IsServerError(err))
	assert.Equal(t, http.StatusBadGateway, StatusCode(err))

	status = http.StatusNotFound
	_, err = c.Do(context.Background(), Request{Endpoint: "events/get"})
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.False(t, IsServerError(err))
}

func TestDoDecodeFailureIsTransportError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `not json`)
	})
	_, err := c.Do(context.Background(), Request{Endpoint: "self/get"})
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, KindDecode, te.Kind)
}

func TestDoTimeoutRedactsToken(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	_, err := c.Do(context.Background(), Request{Endpoint: "events/get", Timeout: 50 * time.Millisecond})
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, KindTimeout, te.Kind)
	assert.False(t, IsServerError(err))
	assert.NotContains(t, err.Error(), "secret")
}

func TestDownload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing") {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "payload")
	})

	data, err := c.Download(context.Background(), c.baseURL+"/files/ok")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	_, err = c.Download(context.Background(), c.baseURL+"/files/missing")
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
}

func TestResponseHelpers(t *testing.T) {
	r := Response{"ok": []byte("false"), "description": []byte(`"bad chat"`), "events": []byte(" [] ")}
	assert.False(t, r.OK())
	assert.True(t, r.Has("events"))
	assert.True(t, isEmptyPoll(r))

	var missing []int
	err := r.Decode("nope", &missing)
	assert.True(t, errors.Is(err, ErrProtocol))
	assert.True(t, Response{}.OK())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindTimeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, KindCanceled, Classify(context.Canceled))
	assert.Equal(t, KindUnknown, Classify(errors.New("boom")))
	assert.Equal(t, ErrorKind(""), Classify(nil))
}
