//go:build pcap

package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/openlivox/lidarhost/internal/capture"
)

// sinks lazily opens one binary point-container writer per data type and
// one IMU writer, the first time each is actually seen in the trace —
// mirroring capture.Run.openPointSink's lazy-open-on-first-packet shape.
type sinks struct {
	dir    string
	points map[capture.DataType]*capture.BinaryPointWriter
	imu    *capture.BinaryIMUWriter
}

func newSinks(dir string) *sinks {
	return &sinks{dir: dir, points: make(map[capture.DataType]*capture.BinaryPointWriter)}
}

func (s *sinks) pointWriter(dt capture.DataType) (*capture.BinaryPointWriter, error) {
	if w, ok := s.points[dt]; ok {
		return w, nil
	}
	path := filepath.Join(s.dir, fmt.Sprintf("replay_dt%d.bin", dt))
	w, err := capture.NewBinaryPointWriter(path, 0, dt)
	if err != nil {
		return nil, err
	}
	s.points[dt] = w
	return w, nil
}

func (s *sinks) imuWriter() (*capture.BinaryIMUWriter, error) {
	if s.imu != nil {
		return s.imu, nil
	}
	w, err := capture.NewBinaryIMUWriter(filepath.Join(s.dir, "replay_imu.bin"))
	if err != nil {
		return nil, err
	}
	s.imu = w
	return w, nil
}

func (s *sinks) close() {
	for _, w := range s.points {
		w.Close()
	}
	if s.imu != nil {
		s.imu.Close()
	}
}

func main() {
	flag.Parse()
	if *pcapFile == "" {
		log.Fatal("pcap-test: -pcap is required")
	}

	handle, err := pcap.OpenOffline(*pcapFile)
	if err != nil {
		log.Fatalf("pcap-test: open %s: %v", *pcapFile, err)
	}
	defer handle.Close()

	filter := "udp"
	if *udpPort != 0 {
		filter = fmt.Sprintf("udp port %d", *udpPort)
	}
	if err := handle.SetBPFFilter(filter); err != nil {
		log.Fatalf("pcap-test: set BPF filter %q: %v", filter, err)
	}

	out := newSinks(*outDir)
	defer out.close()

	start := time.Now()
	packets, points, imuSamples, malformed := 0, 0, 0, 0

	source := gopacket.NewPacketSource(handle, handle.LinkType())
	for packet := range source.Packets() {
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		payload := udpLayer.(*layers.UDP).Payload
		if len(payload) == 0 {
			continue
		}
		packets++

		hdr, body, err := capture.ParseHeader(payload)
		if err != nil {
			malformed++
			continue
		}
		t0 := capture.PacketTimestamp(hdr)

		if hdr.DataType == capture.DT6 {
			sample, err := capture.DecodeIMU(body)
			if err != nil {
				malformed++
				continue
			}
			capture.AssignIMUTimestamp(&sample, t0)
			w, err := out.imuWriter()
			if err != nil {
				log.Fatalf("pcap-test: open imu writer: %v", err)
			}
			if err := w.WriteIMU(sample); err != nil {
				log.Printf("pcap-test: write imu sample: %v", err)
				continue
			}
			imuSamples++
			continue
		}

		pts, err := capture.DecodePoints(hdr.DataType, body)
		if err != nil {
			malformed++
			continue
		}
		capture.AssignTimestamps(pts, t0, 0) // zero inter-point step: every point of a packet is stamped with t0
		w, err := out.pointWriter(hdr.DataType)
		if err != nil {
			log.Fatalf("pcap-test: open point writer: %v", err)
		}
		for _, p := range pts {
			if err := w.WritePoint(p); err != nil {
				log.Printf("pcap-test: write point: %v", err)
				continue
			}
			points++
		}
	}

	log.Printf("pcap-test: replayed %d UDP packets (%d points, %d imu samples, %d malformed) in %v",
		packets, points, imuSamples, malformed, time.Since(start))
}
