package transcoder

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/openlivox/lidarhost/internal/protoerr"
)

// lasHeaderSize and lasRecordSize are fixed by the LAS 1.2, point data
// format 3 specification (the format the source driver emits: GPS time
// plus RGB fields, the latter left zero).
const (
	lasHeaderSize = 227
	lasRecordSize = 34
)

// las12SystemID and las12SoftwareID are padded to 32 bytes each, matching
// the source's "must be <= 32 characters" convention.
const (
	las12SystemID   = "lidarhost"
	las12SoftwareID = "lidarhost transcoder"
)

func padTo32(s string) [32]byte {
	var out [32]byte
	copy(out[:], s)
	return out
}

// ConvertPointsToLAS reads binPath (a Binary point file) and writes a LAS
// 1.2, point-format-3 file to binPath+".las" (spec §4.7/§8 scenario 5).
// Only Cartesian data types (0, 2, 4) convert; any other data type returns
// ConfigurationError without creating an output file, matching the
// source's "LAS file creation only works with Cartesian data types".
func ConvertPointsToLAS(binPath string) (int, error) {
	pr, err := OpenPointFile(binPath)
	if err != nil {
		return 0, err
	}
	defer pr.Close()

	if !isCartesian(pr.DataType) {
		return 0, fmt.Errorf("transcoder: data_type %d is spherical, only Cartesian types convert to LAS: %w", pr.DataType, protoerr.ErrConfiguration)
	}

	var recs []PointRecord
	for {
		rec, err := pr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		recs = append(recs, rec)
	}
	if len(recs) == 0 {
		return 0, fmt.Errorf("transcoder: no points to convert: %w", protoerr.ErrConfiguration)
	}

	minX, minY, minZ := recs[0].X, recs[0].Y, recs[0].Z
	maxX, maxY, maxZ := recs[0].X, recs[0].Y, recs[0].Z
	for _, r := range recs[1:] {
		minX, maxX = math.Min(minX, r.X), math.Max(maxX, r.X)
		minY, maxY = math.Min(minY, r.Y), math.Max(maxY, r.Y)
		minZ, maxZ = math.Min(minZ, r.Z), math.Max(maxZ, r.Z)
	}
	offX, offY, offZ := math.Floor(minX), math.Floor(minY), math.Floor(minZ)
	const scale = 0.001

	f, err := os.Create(binPath + ".las")
	if err != nil {
		return 0, fmt.Errorf("transcoder: create las file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	if err := writeLASHeader(w, len(recs), offX, offY, offZ, minX, maxX, minY, maxY, minZ, maxZ); err != nil {
		return 0, err
	}
	for _, r := range recs {
		if err := writeLASPoint(w, r, offX, offY, offZ, scale); err != nil {
			return 0, err
		}
	}
	return len(recs), w.Flush()
}

func writeLASHeader(w *bufio.Writer, count int, offX, offY, offZ, minX, maxX, minY, maxY, minZ, maxZ float64) error {
	var hdr [lasHeaderSize]byte
	copy(hdr[0:4], "LASF")
	hdr[24] = 1 // version major
	hdr[25] = 2 // version minor
	sysID := padTo32(las12SystemID)
	copy(hdr[26:58], sysID[:])
	swID := padTo32(las12SoftwareID)
	copy(hdr[58:90], swID[:])
	binary.LittleEndian.PutUint16(hdr[94:96], lasHeaderSize)
	binary.LittleEndian.PutUint32(hdr[96:100], lasHeaderSize)
	hdr[104] = 3 // point data format ID
	binary.LittleEndian.PutUint16(hdr[105:107], lasRecordSize)
	binary.LittleEndian.PutUint32(hdr[107:111], uint32(count))
	// offset 111..131: number of points by return, left zero (not tracked)

	putF64 := func(off int, v float64) { binary.LittleEndian.PutUint64(hdr[off:off+8], math.Float64bits(v)) }
	const scale = 0.001
	putF64(131, scale)
	putF64(139, scale)
	putF64(147, scale)
	putF64(155, offX)
	putF64(163, offY)
	putF64(171, offZ)
	putF64(179, maxX)
	putF64(187, minX)
	putF64(195, maxY)
	putF64(203, minY)
	putF64(211, maxZ)
	putF64(219, minZ)

	_, err := w.Write(hdr[:])
	return err
}

func writeLASPoint(w *bufio.Writer, r PointRecord, offX, offY, offZ, scale float64) error {
	var rec [lasRecordSize]byte
	binary.LittleEndian.PutUint32(rec[0:4], uint32(int32(math.Round((r.X-offX)/scale))))
	binary.LittleEndian.PutUint32(rec[4:8], uint32(int32(math.Round((r.Y-offY)/scale))))
	binary.LittleEndian.PutUint32(rec[8:12], uint32(int32(math.Round((r.Z-offZ)/scale))))
	binary.LittleEndian.PutUint16(rec[12:14], uint16(r.Intensity)*257) // scale u8 into u16 intensity range
	returnNum := r.ReturnNum
	if returnNum == 0 {
		returnNum = 1
	}
	numReturns := byte(1)
	if returnNum == 2 {
		numReturns = 2
	}
	rec[14] = (returnNum & 0x7) | (numReturns&0x7)<<3
	binary.LittleEndian.PutUint64(rec[20:28], math.Float64bits(r.Timestamp))
	_, err := w.Write(rec[:])
	return err
}
