// Command pcap-test replays a captured .pcap/.pcapng file of Livox UDP
// traffic offline, decoding each point/IMU packet with internal/capture's
// decoders (every point of a packet is stamped with the packet timestamp,
// with no per-point step) and writing the result into a binary
// container file — useful for regression-testing a decode change against
// a recorded packet trace without a sensor attached. Requires the 'pcap'
// build tag (libpcap); see main_stub.go for the default build.
package main

import "flag"

var (
	pcapFile = flag.String("pcap", "", "path to a .pcap/.pcapng capture file to replay")
	udpPort  = flag.Int("udp-port", 0, "UDP port carrying Livox traffic; 0 replays every UDP packet in the file")
	outDir   = flag.String("out", ".", "directory to write the decoded point/IMU container files into")
)
