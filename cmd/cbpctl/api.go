package main

import (
	"context"
	"encoding/json"
	"errors"
	"io/ioutil"
	"log"
	"net/http"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/opencalib/cbpctl/device"
)

type api struct {
	http.Handler
	client   *device.Client
	sse      *sse.Server
	upgrader websocket.Upgrader
}

func newAPI(client *device.Client) *api {
	r := mux.NewRouter()

	a := &api{
		Handler: r,
		client:  client,
		sse: sse.NewServer(&sse.Options{
			Logger: log.New(ioutil.Discard, "", 0),
		}),
	}

	r.HandleFunc("/api/move", a.move).Methods("POST")
	r.HandleFunc("/api/focus", a.focus).Methods("POST")
	r.HandleFunc("/api/mask", a.mask).Methods("POST")
	r.HandleFunc("/api/mask/rotation", a.maskRotation).Methods("POST")
	r.HandleFunc("/api/park", a.park).Methods("POST")
	r.HandleFunc("/api/unpark", a.unpark).Methods("POST")
	r.HandleFunc("/api/status", a.status).Methods("GET")
	r.HandleFunc("/api/console", a.console)
	r.PathPrefix("/events/").Handler(a.sse)

	return a
}

// pushTelemetry publishes a poll snapshot on the state event stream.
func (a *api) pushTelemetry(t device.Telemetry) {
	data, err := json.Marshal(t)
	if err != nil {
		log.Printf("ERROR: marshal json: %+v", err)
		return
	}
	a.sse.SendMessage("/events/state", sse.SimpleMessage(string(data)))
}

// pushFault publishes a fault notification on the fault event stream.
func (a *api) pushFault(f device.Fault) {
	data, err := json.Marshal(f)
	if err != nil {
		log.Printf("ERROR: marshal json: %+v", err)
		return
	}
	log.Printf("FAULT %d: %s", f.Code, f.Reason)
	a.sse.SendMessage("/events/fault", sse.SimpleMessage(string(data)))
}

// settle waits for the issued motion to finish before replying. An
// aborted request stops the wait only; the motion keeps going.
func (a *api) settle(w http.ResponseWriter, req *http.Request, timeout timeoutKind) {
	tr := device.Tracker{Poller: a.client}
	if timeout == maskTimeout {
		tr.Timeout = device.MaskSettleTimeout
	}
	err := tr.Wait(req.Context())
	switch {
	case err == nil:
		a.status(w, req)
	case errors.Is(err, device.ErrSettleTimeout):
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
	case errors.Is(err, context.Canceled):
	default:
		log.Printf("ERROR: settle: %+v", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}

type timeoutKind int

const (
	moveTimeout timeoutKind = iota
	maskTimeout
)

func decode(w http.ResponseWriter, req *http.Request, v interface{}) bool {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (a *api) move(w http.ResponseWriter, req *http.Request) {
	var in struct {
		Azimuth   float64 `json:"azimuth"`
		Elevation float64 `json:"elevation"`
	}
	if !decode(w, req, &in) {
		return
	}
	if err := a.client.Move(in.Azimuth, in.Elevation); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.settle(w, req, moveTimeout)
}

func (a *api) focus(w http.ResponseWriter, req *http.Request) {
	var in struct {
		Focus int `json:"focus"`
	}
	if !decode(w, req, &in) {
		return
	}
	if err := a.client.SetFocus(in.Focus); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.settle(w, req, moveTimeout)
}

func (a *api) mask(w http.ResponseWriter, req *http.Request) {
	var in struct {
		Mask string `json:"mask"`
	}
	if !decode(w, req, &in) {
		return
	}
	if err := a.client.ChangeMask(in.Mask); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.settle(w, req, maskTimeout)
}

func (a *api) maskRotation(w http.ResponseWriter, req *http.Request) {
	var in struct {
		Rotation float64 `json:"rotation"`
	}
	if !decode(w, req, &in) {
		return
	}
	if err := a.client.SetMaskRotation(in.Rotation); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.settle(w, req, maskTimeout)
}

func (a *api) park(w http.ResponseWriter, req *http.Request) {
	if err := a.client.Park(); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	a.settle(w, req, moveTimeout)
}

func (a *api) unpark(w http.ResponseWriter, req *http.Request) {
	if err := a.client.Unpark(); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	a.settle(w, req, moveTimeout)
}

func (a *api) status(w http.ResponseWriter, req *http.Request) {
	out := struct {
		State string `json:"state"`
		device.Telemetry
	}{
		State:     a.client.State().String(),
		Telemetry: a.client.Snapshot(),
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		log.Println("ERROR: encode:", err)
	}
}

// console is a raw protocol passthrough for engineering use: each
// websocket text message is one command line, answered with the decoded
// reply. Commands share the client's exchange lock, so the console can
// never interleave with a poll or a move.
func (a *api) console(w http.ResponseWriter, req *http.Request) {
	ws, err := a.upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Println("ERROR: upgrade:", err)
		return
	}
	defer ws.Close()
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}
		reply, err := a.client.Exchange(string(msg))
		if err != nil {
			reply = "ERROR: " + err.Error()
		}
		if err := ws.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			log.Println("ERROR: write:", err)
			return
		}
	}
}
