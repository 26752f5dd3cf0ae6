package main

import (
	"flag"
	"log"

	"github.com/opencalib/cbpctl/sim"
	"github.com/opencalib/cbpctl/wire"
)

func main() {
	log.SetFlags(log.Lshortfile)

	addr := flag.String("addr", "127.0.0.1:9999", "Address to listen for the controller client on.")
	legacy := flag.Bool("cr", false, "Use the legacy carriage-return-only terminator.")
	flag.Parse()

	term := wire.CRLF
	if *legacy {
		term = wire.CR
	}

	s := sim.New(nil, term)
	if err := s.Listen(*addr); err != nil {
		log.Fatal(err)
	}
	log.Println("simulated projector listening on", s.Addr())
	select {}
}
