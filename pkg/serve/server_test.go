package serve

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/praetorian-inc/scanrt/pkg/backend/portable"
	"github.com/praetorian-inc/scanrt/pkg/scan"
	"github.com/praetorian-inc/scanrt/pkg/scanner"
	"github.com/praetorian-inc/scanrt/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCore(t *testing.T) *scanner.Core {
	t.Helper()
	patterns := []*types.Pattern{
		{ID: 1, Name: "secret_word", Expression: "secret[0-9]{2}", Flags: types.SomLeftMost},
	}
	core, err := scanner.NewCore(patterns, nil, scan.WithBackend(portable.New()))
	require.NoError(t, err)
	t.Cleanup(func() { core.Close() })
	return core
}

// serve runs a server over input until EOF and returns its responses.
func serve(t *testing.T, input string) []Response {
	t.Helper()
	out := &bytes.Buffer{}
	srv := NewServer(newCore(t), strings.NewReader(input), out)
	require.NoError(t, srv.Run(context.Background()))
	return decodeResponses(t, out.String())
}

func decodeResponses(t *testing.T, out string) []Response {
	t.Helper()
	var resps []Response
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var resp Response
		require.NoError(t, json.Unmarshal([]byte(line), &resp), line)
		resps = append(resps, resp)
	}
	return resps
}

func TestServer_SendsReadyOnStart(t *testing.T) {
	out := &bytes.Buffer{}
	srv := NewServer(newCore(t), strings.NewReader(""), out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately to exit after ready
	_ = srv.Run(ctx)

	resps := decodeResponses(t, out.String())
	require.NotEmpty(t, resps)
	assert.True(t, resps[0].Success)
	assert.Equal(t, "ready", resps[0].Type)

	var ready ReadyData
	require.NoError(t, json.Unmarshal(resps[0].Data, &ready))
	assert.Equal(t, ReadyData{Version: Version, Backend: "portable", Patterns: 1}, ready)
}

func TestServer_Scan(t *testing.T) {
	resps := serve(t, `{"type":"scan","payload":{"content":"a secret42","source":"test"}}`+"\n")
	require.Len(t, resps, 2) // ready + scan response

	assert.True(t, resps[1].Success)
	assert.Equal(t, "scan", resps[1].Type)

	var result scanner.ScanResult
	require.NoError(t, json.Unmarshal(resps[1].Data, &result))
	assert.Equal(t, "test", result.Source)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "secret42", result.Matches[0].Snippet)
}

func TestServer_ScanBinaryData(t *testing.T) {
	// "secret99" in base64
	resps := serve(t, `{"type":"scan","payload":{"data":"c2VjcmV0OTk="}}`+"\n")
	require.Len(t, resps, 2)

	var result scanner.ScanResult
	require.NoError(t, json.Unmarshal(resps[1].Data, &result))
	require.Len(t, result.Matches, 1)
	assert.Equal(t, uint64(8), result.Matches[0].To)
}

func TestServer_ScanBatch(t *testing.T) {
	// Run several times: the response must be sent even when EOF arrives
	// before the main loop picks up the request.
	for i := range 10 {
		resps := serve(t, `{"type":"scan_batch","payload":{"items":[{"source":"s1","content":"test1"},{"source":"s2","content":"secret12"}]}}`+"\n")
		require.Len(t, resps, 2, "iteration %d", i)
		assert.True(t, resps[1].Success)
		assert.Equal(t, "scan_batch", resps[1].Type)

		var result scanner.BatchScanResult
		require.NoError(t, json.Unmarshal(resps[1].Data, &result))
		assert.Equal(t, 1, result.Total)
	}
}

func TestServer_Streams(t *testing.T) {
	core := newCore(t)
	pr, pw := io.Pipe()
	out := &safeBuffer{}
	srv := NewServer(core, pr, out)

	done := make(chan error, 1)
	go func() { done <- srv.Run(context.Background()) }()

	send := func(line string) Response {
		t.Helper()
		n := out.lines()
		_, err := pw.Write([]byte(line + "\n"))
		require.NoError(t, err)
		require.Eventually(t, func() bool { return out.lines() > n }, 2*time.Second, 5*time.Millisecond)
		resps := decodeResponses(t, out.String())
		return resps[len(resps)-1]
	}

	resp := send(`{"type":"stream_open","payload":{"source":"upload"}}`)
	require.True(t, resp.Success, resp.Error)
	var opened StreamOpened
	require.NoError(t, json.Unmarshal(resp.Data, &opened))
	require.NotEmpty(t, opened.ID)

	resp = send(`{"type":"stream_write","payload":{"id":"` + opened.ID + `","content":"xx secr"}}`)
	require.True(t, resp.Success, resp.Error)

	resp = send(`{"type":"stream_write","payload":{"id":"` + opened.ID + `","content":"et34 yy"}}`)
	require.True(t, resp.Success, resp.Error)
	var result scanner.ScanResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	require.Len(t, result.Matches, 1)
	assert.Equal(t, uint64(3), result.Matches[0].From)
	assert.Equal(t, "upload", result.Source)

	resp = send(`{"type":"streams"}`)
	require.True(t, resp.Success, resp.Error)
	var streams []scanner.StreamInfo
	require.NoError(t, json.Unmarshal(resp.Data, &streams))
	require.Len(t, streams, 1)
	assert.Equal(t, uint64(14), streams[0].Offset)

	resp = send(`{"type":"stream_close","payload":{"id":"` + opened.ID + `"}}`)
	require.True(t, resp.Success, resp.Error)

	resp = send(`{"type":"stream_close","payload":{"id":"` + opened.ID + `"}}`)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "unknown stream")

	_, err := pw.Write([]byte(`{"type":"close"}` + "\n"))
	require.NoError(t, err)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit")
	}
	pw.Close()
}

func TestServer_GracefulShutdownOnContext(t *testing.T) {
	pr, pw := io.Pipe()
	srv := NewServer(newCore(t), pr, &safeBuffer{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- srv.Run(ctx)
	}()

	cancel()
	pw.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestServer_CloseCommand(t *testing.T) {
	resps := serve(t, `{"type":"close","payload":{}}`+"\n"+`{"type":"scan","payload":{"content":"secret11"}}`+"\n")
	require.Len(t, resps, 1) // Only ready signal
}

func TestServer_Errors(t *testing.T) {
	resps := serve(t, `{"type":"invalid","payload":{}}`+"\n")
	require.Len(t, resps, 2)
	assert.False(t, resps[1].Success)
	assert.Contains(t, resps[1].Error, "unknown request type")

	resps = serve(t, `{"type":"scan","payload":{"content":42}}`+"\n")
	require.Len(t, resps, 2)
	assert.False(t, resps[1].Success)
	assert.Equal(t, "scan", resps[1].Type)

	resps = serve(t, `{invalid json}`+"\n")
	require.GreaterOrEqual(t, len(resps), 2)
	assert.False(t, resps[1].Success)
	assert.Equal(t, "decode", resps[1].Type)
}

func TestServer_ScanErrorKind(t *testing.T) {
	core := newCore(t)
	require.NoError(t, core.Close())

	out := &bytes.Buffer{}
	srv := NewServer(core, strings.NewReader(`{"type":"stream_open"}`+"\n"), out)
	require.NoError(t, srv.Run(context.Background()))

	resps := decodeResponses(t, out.String())
	require.Len(t, resps, 2)
	assert.False(t, resps[1].Success)
	assert.Equal(t, "invalid state", resps[1].Kind)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("pipe closed") }

func loggedCore(t *testing.T, w io.Writer) *scanner.Core {
	t.Helper()
	patterns := []*types.Pattern{{ID: 1, Expression: "a", Flags: types.SomLeftMost}}
	core, err := scanner.NewCore(patterns, slog.New(slog.NewTextHandler(w, nil)), scan.WithBackend(portable.New()))
	require.NoError(t, err)
	t.Cleanup(func() { core.Close() })
	return core
}

func TestServer_LogsWriteFailures(t *testing.T) {
	logs := &safeBuffer{}
	srv := NewServer(loggedCore(t, logs), strings.NewReader(`{"type":"streams"}`+"\n"), failingWriter{})
	require.NoError(t, srv.Run(context.Background()))

	assert.Contains(t, logs.String(), "failed to write response")
	assert.Contains(t, logs.String(), "pipe closed")
	assert.Contains(t, logs.String(), "type=streams")
}

func TestServer_UnencodableResultIsReported(t *testing.T) {
	logs := &safeBuffer{}
	out := &bytes.Buffer{}
	srv := NewServer(loggedCore(t, logs), strings.NewReader(""), out)

	srv.handle(Request{Type: "scan"}, nil, func() (any, error) {
		return make(chan int), nil
	})

	resps := decodeResponses(t, out.String())
	require.Len(t, resps, 1)
	assert.False(t, resps[0].Success)
	assert.Equal(t, "scan", resps[0].Type)
	assert.Contains(t, resps[0].Error, "marshaling scan response")
	assert.Contains(t, logs.String(), "failed to marshal response")
}
