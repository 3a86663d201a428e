// Package api - operator HTTP surface shared by the service binaries
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	log "github.com/freundallein/packer/chassis/logging"

	"github.com/freundallein/packer/chassis/protocol"
	"github.com/freundallein/packer/drainer"
)

// Trigger - starts a drain cycle of a lane
type Trigger interface {
	Trigger(ctx context.Context, cron string) (string, error)
}

// Activity - reports whether a lane holds a drain lease
type Activity interface {
	Active(ctx context.Context, cron string) (bool, error)
}

// NewRouter serves /metrics and /healthz. Lane routes are mounted when
// the binary owns the lanes.
func NewRouter(lanes Trigger, leases Activity) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	if lanes != nil {
		router.HandleFunc("/lanes/{cron}/drain", triggerHandler(lanes)).Methods(http.MethodPost)
	}
	if leases != nil {
		router.HandleFunc("/lanes/{cron}", activeHandler(leases)).Methods(http.MethodGet)
	}
	return router
}

func triggerHandler(lanes Trigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cron := mux.Vars(r)["cron"]
		token, err := lanes.Trigger(r.Context(), cron)
		switch {
		case err == nil:
			reply(w, http.StatusAccepted, &protocol.Response{
				ID:     token,
				Result: map[string]string{"cron": cron, "status": "triggered"},
			})
		case errors.Is(err, drainer.ErrLaneBusy):
			reply(w, http.StatusConflict, &protocol.Response{
				Error: map[string]string{"cron": cron, "message": err.Error()},
			})
		default:
			log.WithFields(log.Fields{
				"event": "lane_trigger_failed",
				"cron":  cron,
			}).Error(err)
			reply(w, http.StatusInternalServerError, &protocol.Response{
				Error: map[string]string{"cron": cron, "message": err.Error()},
			})
		}
	}
}

func activeHandler(leases Activity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cron := mux.Vars(r)["cron"]
		active, err := leases.Active(r.Context(), cron)
		if err != nil {
			reply(w, http.StatusInternalServerError, &protocol.Response{
				Error: map[string]string{"cron": cron, "message": err.Error()},
			})
			return
		}
		reply(w, http.StatusOK, &protocol.Response{
			Result: map[string]string{"cron": cron, "active": strconv.FormatBool(active)},
		})
	}
}

func reply(w http.ResponseWriter, code int, resp *protocol.Response) {
	body, err := resp.JSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}
