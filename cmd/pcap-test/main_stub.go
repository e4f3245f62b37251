//go:build !pcap

package main

import (
	"flag"
	"log"
)

func main() {
	flag.Parse()
	log.Fatal("pcap-test: built without libpcap support; rebuild with -tags=pcap")
}
