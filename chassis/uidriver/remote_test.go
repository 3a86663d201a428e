package uidriver

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/freundallein/packer/chassis/protocol"
)

type sidecar struct {
	mu       sync.Mutex
	calls    []protocol.Request
	failWith map[string]string
	block    chan struct{}
}

func (s *sidecar) methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c.Method)
	}
	return out
}

func (s *sidecar) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	req := protocol.Request{}
	if err := req.FromJSON(string(raw)); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.calls = append(s.calls, req)
	code := s.failWith[req.Method]
	s.mu.Unlock()

	if req.Method == "ui.pack_all" && s.block != nil {
		select {
		case <-s.block:
		case <-r.Context().Done():
			return
		}
	}
	resp := &protocol.Response{ID: req.ID}
	switch {
	case code != "":
		resp.Error = map[string]string{"code": code, "message": "sidecar says no"}
	case req.Method == "session.open":
		resp.Result = map[string]string{"session": "s-1"}
	case req.Method == "ui.download_proof":
		resp.Result = map[string]string{"document": base64.StdEncoding.EncodeToString([]byte("PK"))}
	default:
		resp.Result = map[string]string{"ok": "true"}
	}
	body, _ := resp.JSON()
	_, _ = w.Write([]byte(body))
}

func openSession(t *testing.T, sc *sidecar) *RemoteSession {
	t.Helper()
	srv := httptest.NewServer(sc)
	t.Cleanup(srv.Close)
	f := NewRemoteFactory(RemoteConfig{URL: srv.URL, Username: "rpa", Password: "secret"})
	s, err := f.Open(context.Background())
	require.NoError(t, err)
	return s.(*RemoteSession)
}

func TestRemoteSession_Workflow(t *testing.T) {
	ctx := context.Background()
	sc := &sidecar{}
	s := openSession(t, sc)

	require.NoError(t, s.Login(ctx))
	require.NoError(t, s.LocateOrder(ctx, "SO001"))
	require.NoError(t, s.EnterLine(ctx, "Widget", 2))
	require.NoError(t, s.CloseBox(ctx))
	doc, err := s.DownloadProof(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("PK"), doc)
	s.TerminateSession()
	s.TerminateSession()

	require.Equal(t, []string{
		"session.open", "ui.login", "ui.locate_order", "ui.enter_line",
		"ui.close_box", "ui.download_proof", "session.close",
	}, sc.methods())

	sc.mu.Lock()
	enter := sc.calls[3]
	login := sc.calls[1]
	sc.mu.Unlock()
	require.Equal(t, "s-1", enter.Params["session"])
	require.Equal(t, "Widget", enter.Params["product"])
	require.Equal(t, "2", enter.Params["quantity"])
	require.Equal(t, "rpa", login.Params["username"])
}

func TestRemoteSession_ErrorCodes(t *testing.T) {
	ctx := context.Background()
	sc := &sidecar{failWith: map[string]string{
		"ui.login":         codeAuthentication,
		"ui.locate_order":  codeMultipleOrders,
		"ui.ship_separate": codeShipDisabled,
	}}
	s := openSession(t, sc)

	err := s.Login(ctx)
	require.ErrorIs(t, err, ErrAuthentication)
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	require.Equal(t, "ui.login", remote.Method)

	require.ErrorIs(t, s.LocateOrder(ctx, "SO001"), ErrMultipleOrders)
	require.ErrorIs(t, s.ShipInSeparateBoxes(ctx), ErrShipDisabled)
}

func TestRemoteSession_TerminateAbortsInFlightCall(t *testing.T) {
	sc := &sidecar{block: make(chan struct{})}
	defer close(sc.block)
	s := openSession(t, sc)

	done := make(chan error, 1)
	go func() {
		done <- s.PackAll(context.Background(), Dimensions{Weight: 1.5})
	}()
	time.Sleep(50 * time.Millisecond)
	s.TerminateSession()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pack call was not aborted")
	}
	require.ErrorIs(t, s.CloseBox(context.Background()), ErrSessionClosed)
}
