package oms

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type write struct {
	Model string
	ID    int64
	Vals  map[string]interface{}
}

type fakeOMS struct {
	mu       sync.Mutex
	logins   int
	writes   []write
	logIDs   []int64
	failOn   string
	hookCode int
	hooks    []WebhookPayload
	hookKey  string
}

func (f *fakeOMS) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/jsonrpc", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     string `json:"id"`
			Params struct {
				Service string            `json:"service"`
				Method  string            `json:"method"`
				Args    []json.RawMessage `json:"args"`
			} `json:"params"`
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		reply := func(result interface{}) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": result})
		}
		if req.Params.Service == "common" {
			f.logins++
			reply(7)
			return
		}
		var model, method string
		_ = json.Unmarshal(req.Params.Args[3], &model)
		_ = json.Unmarshal(req.Params.Args[4], &method)
		if model+"."+method == f.failOn {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]interface{}{"code": 200, "message": "Odoo Server Error", "data": map[string]string{"message": "access denied"}},
			})
			return
		}
		var args []json.RawMessage
		_ = json.Unmarshal(req.Params.Args[5], &args)
		switch method {
		case "search":
			reply(f.logIDs)
		case "write":
			var ids []int64
			var vals map[string]interface{}
			_ = json.Unmarshal(args[0], &ids)
			_ = json.Unmarshal(args[1], &vals)
			f.writes = append(f.writes, write{Model: model, ID: ids[0], Vals: vals})
			reply(true)
		}
	})
	mux.HandleFunc("/hook", func(w http.ResponseWriter, r *http.Request) {
		var p WebhookPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		f.mu.Lock()
		f.hooks = append(f.hooks, p)
		f.hookKey = r.Header.Get("API-KEY")
		code := f.hookCode
		f.mu.Unlock()
		if code != 0 {
			w.WriteHeader(code)
		}
		_, _ = w.Write([]byte(`{"result": "accepted"}`))
	})
	return mux
}

func newClient(t *testing.T, f *fakeOMS) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return NewHTTPClient(Config{
		URL:        srv.URL,
		Database:   "prod",
		Username:   "rpa",
		Password:   "secret",
		WebhookURL: srv.URL + "/hook",
		AuthKey:    "key-1",
	})
}

func TestHTTPClient_UploadDocument(t *testing.T) {
	f := &fakeOMS{logIDs: []int64{55}}
	c := newClient(t, f)

	err := c.UploadDocument(context.Background(), Order{Ref: 3, PickingID: 42}, []byte("PK"), "<p>done</p>")
	require.NoError(t, err)

	require.Len(t, f.writes, 2)
	require.Equal(t, pickingModel, f.writes[0].Model)
	require.EqualValues(t, 42, f.writes[0].ID)
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("PK")), f.writes[0].Vals["goflow_document"])
	require.Equal(t, StatusDocGenerated, f.writes[0].Vals["goflow_routing_status"])
	require.Equal(t, false, f.writes[0].Vals["rpa_status"])
	require.Equal(t, logModel, f.writes[1].Model)
	require.EqualValues(t, 55, f.writes[1].ID)
	require.Equal(t, "completed", f.writes[1].Vals["request_status"])
	require.Equal(t, "<p>done</p>", f.writes[1].Vals["log"])
}

func TestHTTPClient_LoginIsCached(t *testing.T) {
	f := &fakeOMS{logIDs: []int64{1}}
	c := newClient(t, f)
	ctx := context.Background()

	require.NoError(t, c.MarkManualShipment(ctx, Order{Ref: 1, PickingID: 2}, ""))
	require.NoError(t, c.MarkManualShipment(ctx, Order{Ref: 1, PickingID: 2}, ""))
	require.Equal(t, 1, f.logins)
}

func TestHTTPClient_UploadFailure(t *testing.T) {
	f := &fakeOMS{logIDs: []int64{55}, failOn: "stock.picking.write"}
	c := newClient(t, f)

	err := c.UploadDocument(context.Background(), Order{Ref: 3, PickingID: 42}, []byte("PK"), "")
	var uploadErr *UploadError
	require.True(t, errors.As(err, &uploadErr))
	require.Contains(t, err.Error(), "access denied")
	require.Empty(t, f.writes)
}

func TestHTTPClient_MarkManualShipment(t *testing.T) {
	f := &fakeOMS{logIDs: []int64{9}}
	c := newClient(t, f)

	require.NoError(t, c.MarkManualShipment(context.Background(), Order{Ref: 3, PickingID: 42}, "<p>x</p>"))
	require.Len(t, f.writes, 2)
	require.Equal(t, StatusRequireManualShipment, f.writes[0].Vals["goflow_routing_status"])
	require.Equal(t, "update_failed", f.writes[1].Vals["request_status"])
}

func TestHTTPClient_MarkManualShipmentWithoutLogRecord(t *testing.T) {
	f := &fakeOMS{}
	c := newClient(t, f)

	err := c.MarkManualShipment(context.Background(), Order{Ref: 3, PickingID: 42}, "")
	var syncErr *SyncError
	require.True(t, errors.As(err, &syncErr))
	require.ErrorIs(t, err, ErrNoLogRecord)
}

func TestHTTPClient_NotifyWebhook(t *testing.T) {
	f := &fakeOMS{}
	c := newClient(t, f)

	ok, text := c.NotifyWebhook(context.Background(), WebhookPayload{OrderRef: 3, Status: StatusDocGenerated, Log: "<p>x</p>"})
	require.True(t, ok)
	require.Contains(t, text, "accepted")
	require.Equal(t, "key-1", f.hookKey)
	require.Len(t, f.hooks, 1)
	require.EqualValues(t, 3, f.hooks[0].OrderRef)
	require.False(t, f.hooks[0].RPAStatus)
}

func TestHTTPClient_NotifyWebhookFailures(t *testing.T) {
	f := &fakeOMS{hookCode: http.StatusInternalServerError}
	c := newClient(t, f)

	ok, text := c.NotifyWebhook(context.Background(), WebhookPayload{OrderRef: 3})
	require.False(t, ok)
	require.Contains(t, text, "Status update failed to OMS. ERROR:")
	require.Contains(t, text, "500")

	down := NewHTTPClient(Config{WebhookURL: "http://127.0.0.1:1/hook"})
	ok, text = down.NotifyWebhook(context.Background(), WebhookPayload{OrderRef: 3})
	require.False(t, ok)
	require.Contains(t, text, "Status update failed to OMS. ERROR:")
}
