package uidriver

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	log "github.com/freundallein/packer/chassis/logging"
	"github.com/freundallein/packer/chassis/protocol"
)

// Error codes returned by the automation sidecar.
const (
	codeAuthentication = "authentication"
	codeOrderNotFound  = "order_not_found"
	codeMultipleOrders = "multiple_orders"
	codeShipDisabled   = "ship_disabled"
	codeEntry          = "entry"
	codeBox            = "box"
	codeDownload       = "download"
	codeSessionClosed  = "session_closed"
)

var codes = map[string]error{
	codeAuthentication: ErrAuthentication,
	codeOrderNotFound:  ErrOrderNotFound,
	codeMultipleOrders: ErrMultipleOrders,
	codeShipDisabled:   ErrShipDisabled,
	codeEntry:          ErrEntry,
	codeBox:            ErrBox,
	codeDownload:       ErrDownload,
	codeSessionClosed:  ErrSessionClosed,
}

// RemoteError - failure reported by the sidecar
type RemoteError struct {
	Method  string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("uidriver: %s: %s: %s", e.Method, e.Code, e.Message)
}

// Unwrap maps the sidecar code onto the package sentinel errors.
func (e *RemoteError) Unwrap() error {
	return codes[e.Code]
}

// RemoteConfig - ...
type RemoteConfig struct {
	URL      string
	Username string
	Password string
	Client   *http.Client
}

// RemoteFactory - sessions backed by a browser automation sidecar speaking JSON-RPC over HTTP
type RemoteFactory struct {
	cfg RemoteConfig
}

// NewRemoteFactory - ...
func NewRemoteFactory(cfg RemoteConfig) *RemoteFactory {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &RemoteFactory{cfg: cfg}
}

// Open - ...
func (f *RemoteFactory) Open(ctx context.Context) (Session, error) {
	s := &RemoteSession{cfg: f.cfg}
	s.alive, s.kill = context.WithCancel(context.Background())
	result, err := s.call(ctx, "session.open", nil)
	if err != nil {
		s.kill()
		return nil, err
	}
	s.id = result["session"]
	log.WithFields(log.Fields{
		"event":   "session_open",
		"session": s.id,
	}).Debug("ui session opened")
	return s, nil
}

// RemoteSession - ...
type RemoteSession struct {
	cfg   RemoteConfig
	id    string
	alive context.Context
	kill  context.CancelFunc
	once  sync.Once
}

// Login - ...
func (s *RemoteSession) Login(ctx context.Context) error {
	_, err := s.call(ctx, "ui.login", map[string]string{
		"username": s.cfg.Username,
		"password": s.cfg.Password,
	})
	return err
}

// LocateOrder - ...
func (s *RemoteSession) LocateOrder(ctx context.Context, name string) error {
	_, err := s.call(ctx, "ui.locate_order", map[string]string{"order": name})
	return err
}

// PackAll - ...
func (s *RemoteSession) PackAll(ctx context.Context, dims Dimensions) error {
	_, err := s.call(ctx, "ui.pack_all", map[string]string{
		"weight": formatFloat(dims.Weight),
		"length": formatFloat(dims.Length),
		"width":  formatFloat(dims.Width),
		"height": formatFloat(dims.Height),
	})
	return err
}

// ShipInSeparateBoxes - ...
func (s *RemoteSession) ShipInSeparateBoxes(ctx context.Context) error {
	_, err := s.call(ctx, "ui.ship_separate", nil)
	return err
}

// EnterLine - ...
func (s *RemoteSession) EnterLine(ctx context.Context, product string, quantity int) error {
	_, err := s.call(ctx, "ui.enter_line", map[string]string{
		"product":  product,
		"quantity": strconv.Itoa(quantity),
	})
	return err
}

// CloseBox - ...
func (s *RemoteSession) CloseBox(ctx context.Context) error {
	_, err := s.call(ctx, "ui.close_box", nil)
	return err
}

// FinalizeShip - ...
func (s *RemoteSession) FinalizeShip(ctx context.Context) error {
	_, err := s.call(ctx, "ui.finalize_ship", nil)
	return err
}

// DownloadProof - ...
func (s *RemoteSession) DownloadProof(ctx context.Context) ([]byte, error) {
	result, err := s.call(ctx, "ui.download_proof", nil)
	if err != nil {
		return nil, err
	}
	doc, err := base64.StdEncoding.DecodeString(result["document"])
	if err != nil || len(doc) == 0 {
		return nil, fmt.Errorf("%w: empty or malformed document", ErrDownload)
	}
	return doc, nil
}

// TerminateSession aborts in-flight calls and closes the sidecar session once.
func (s *RemoteSession) TerminateSession() {
	s.once.Do(func() {
		s.kill()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := s.send(ctx, "session.close", nil); err != nil {
			log.WithFields(log.Fields{
				"event":   "session_close_failed",
				"session": s.id,
			}).Warn(err)
		}
	})
}

func (s *RemoteSession) call(ctx context.Context, method string, params map[string]string) (map[string]string, error) {
	if s.alive.Err() != nil {
		return nil, &RemoteError{Method: method, Code: codeSessionClosed, Message: "terminated"}
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.alive, cancel)
	defer stop()
	return s.send(ctx, method, params)
}

func (s *RemoteSession) send(ctx context.Context, method string, params map[string]string) (map[string]string, error) {
	if params == nil {
		params = map[string]string{}
	}
	if s.id != "" {
		params["session"] = s.id
	}
	request := &protocol.Request{
		ID:     uuid.NewString(),
		Method: method,
		Params: params,
	}
	body, err := request.JSON()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewBufferString(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.cfg.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("uidriver: %s: unexpected status %d", method, resp.StatusCode)
	}
	response := &protocol.Response{}
	if err := response.FromJSON(string(raw)); err != nil {
		return nil, err
	}
	if len(response.Error) > 0 {
		return nil, &RemoteError{Method: method, Code: response.Error["code"], Message: response.Error["message"]}
	}
	return response.Result, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
