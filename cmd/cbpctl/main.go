package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"strconv"

	"github.com/opencalib/cbpctl/config"
	"github.com/opencalib/cbpctl/device"
	"github.com/opencalib/cbpctl/sim"
)

func main() {
	log.SetFlags(log.Lshortfile)

	configPath := flag.String("config", "", "Path to the yaml configuration file.")
	addr := flag.String("addr", ":9091", "Address to bind the control server to.")
	simMode := flag.Bool("sim", false, "Run against an in-process hardware simulator.")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatal(err)
		}
	}

	term := cfg.WireTerminator()

	var dialer device.Dialer
	switch {
	case *simMode:
		srv := sim.New(nil, term)
		if err := srv.Listen("127.0.0.1:0"); err != nil {
			log.Fatal(err)
		}
		defer srv.Close()
		log.Println("simulated projector listening on", srv.Addr())
		host, port, err := splitHostPort(srv.Addr())
		if err != nil {
			log.Fatal(err)
		}
		dialer = device.TCPDialer{Host: host, Port: port}
	case cfg.Serial != "":
		dialer = device.SerialDialer{Name: cfg.Serial, Baud: cfg.Baud}
	default:
		dialer = device.TCPDialer{Host: cfg.Address, Port: cfg.Port}
	}

	var a *api
	client := device.NewClient(dialer, cfg.MaskTable(),
		device.TelemetryFunc(func(t device.Telemetry) { a.pushTelemetry(t) }),
		device.FaultFunc(func(f device.Fault) { a.pushFault(f) }),
	)
	client.SetTerminator(term)
	a = newAPI(client)

	if err := client.Connect(); err != nil {
		log.Fatal(err)
	}
	defer client.Disconnect()
	if err := client.Sync(); err != nil {
		log.Fatal(err)
	}

	go func() {
		err := client.Run(context.Background(), device.DefaultTelemetryInterval)
		log.Println("telemetry loop stopped:", err)
	}()

	log.Println("listening on", *addr)
	err := http.ListenAndServe(*addr, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		log.Printf("%s %s - %s", req.Method, req.URL.Path, req.RemoteAddr)
		a.ServeHTTP(w, req)
	}))
	if err != nil {
		log.Fatal(err)
	}
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}
