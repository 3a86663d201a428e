package oms

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

const (
	pickingModel = "stock.picking"
	logModel     = "go.flow.packaging.update.log"
)

// ErrNoLogRecord - the OMS has no packaging log for the order
var ErrNoLogRecord = errors.New("packaging log record not found")

// Config - ...
type Config struct {
	URL        string
	Database   string
	Username   string
	Password   string
	WebhookURL string
	AuthKey    string
	Client     *http.Client
}

// HTTPClient - JSON-RPC client of the OMS object service plus its status webhook
type HTTPClient struct {
	cfg Config

	mu  sync.Mutex
	uid int64
}

// NewHTTPClient - ...
func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{cfg: cfg}
}

// UploadDocument - ...
func (c *HTTPClient) UploadDocument(ctx context.Context, order Order, doc []byte, log string) error {
	err := c.write(ctx, pickingModel, order.PickingID, map[string]interface{}{
		"goflow_document":       base64.StdEncoding.EncodeToString(doc),
		"goflow_routing_status": StatusDocGenerated,
		"rpa_status":            false,
	})
	if err == nil {
		err = c.writeLog(ctx, order.Ref, map[string]interface{}{
			"request_status": "completed",
			"log":            log,
		})
	}
	if err != nil {
		return &UploadError{Err: err}
	}
	return nil
}

// MarkManualShipment - ...
func (c *HTTPClient) MarkManualShipment(ctx context.Context, order Order, log string) error {
	err := c.write(ctx, pickingModel, order.PickingID, map[string]interface{}{
		"goflow_routing_status": StatusRequireManualShipment,
		"rpa_status":            false,
	})
	if err == nil {
		err = c.writeLog(ctx, order.Ref, map[string]interface{}{
			"request_status": "update_failed",
			"log":            log,
		})
	}
	if err != nil {
		return &SyncError{Err: err}
	}
	return nil
}

// NotifyWebhook - ...
func (c *HTTPClient) NotifyWebhook(ctx context.Context, payload WebhookPayload) (bool, string) {
	body, err := json.Marshal(payload)
	if err != nil {
		return false, failed(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return false, failed(err)
	}
	req.Header.Set("API-KEY", c.cfg.AuthKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.cfg.Client.Do(req)
	if err != nil {
		return false, failed(err)
	}
	defer resp.Body.Close()
	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, failed(err)
	}
	if resp.StatusCode/100 != 2 {
		return false, failed(fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(text))))
	}
	return true, string(text)
}

func failed(err error) string {
	return "Status update failed to OMS. ERROR: " + err.Error()
}

func (c *HTTPClient) writeLog(ctx context.Context, ref int64, vals map[string]interface{}) error {
	raw, err := c.execute(ctx, logModel, "search", []interface{}{
		[]interface{}{[]interface{}{"order_ref", "=", ref}},
	}, map[string]interface{}{"limit": 1})
	if err != nil {
		return err
	}
	var ids []int64
	if len(raw) > 0 {
		if err := sonic.Unmarshal(raw, &ids); err != nil {
			return err
		}
	}
	if len(ids) == 0 {
		return ErrNoLogRecord
	}
	return c.write(ctx, logModel, ids[0], vals)
}

func (c *HTTPClient) write(ctx context.Context, model string, id int64, vals map[string]interface{}) error {
	_, err := c.execute(ctx, model, "write", []interface{}{[]int64{id}, vals}, nil)
	return err
}

func (c *HTTPClient) execute(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}) (json.RawMessage, error) {
	uid, err := c.login(ctx)
	if err != nil {
		return nil, err
	}
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	return c.call(ctx, "object", "execute_kw", []interface{}{
		c.cfg.Database, uid, c.cfg.Password, model, method, args, kwargs,
	})
}

func (c *HTTPClient) login(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uid != 0 {
		return c.uid, nil
	}
	raw, err := c.call(ctx, "common", "login", []interface{}{c.cfg.Database, c.cfg.Username, c.cfg.Password})
	if err != nil {
		return 0, err
	}
	var uid int64
	if err := sonic.Unmarshal(raw, &uid); err != nil || uid == 0 {
		return 0, errors.New("oms: login rejected")
	}
	c.uid = uid
	return uid, nil
}

type rpcRequest struct {
	Protocol string    `json:"jsonrpc"`
	ID       string    `json:"id"`
	Method   string    `json:"method"`
	Params   rpcParams `json:"params"`
}

type rpcParams struct {
	Service string        `json:"service"`
	Method  string        `json:"method"`
	Args    []interface{} `json:"args"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    struct {
			Message string `json:"message"`
		} `json:"data"`
	} `json:"error"`
}

func (c *HTTPClient) call(ctx context.Context, service, method string, args []interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{
		Protocol: "2.0",
		ID:       uuid.NewString(),
		Method:   "call",
		Params:   rpcParams{Service: service, Method: method, Args: args},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.URL, "/")+"/jsonrpc", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.cfg.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("oms: %s.%s: unexpected status %d", service, method, resp.StatusCode)
	}
	var out rpcResponse
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out.Error != nil {
		msg := out.Error.Data.Message
		if msg == "" {
			msg = out.Error.Message
		}
		return nil, fmt.Errorf("oms: %s.%s: %s", service, method, msg)
	}
	return out.Result, nil
}
