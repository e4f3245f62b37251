package transcoder

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// csvHeader names the columns for dataType, matching the tag-derived
// confidence/return-type breakdown the source's _convertBin2CSV writes for
// the tagged data types (2, 3, 4, 5); untagged types (0, 1) get the plain
// coordinate/intensity/time/return-number header.
func csvHeader(dataType int16) string {
	coords := "Distance,Zenith,Azimuth"
	if isCartesian(dataType) {
		coords = "X,Y,Z"
	}
	if dataType == 0 || dataType == 1 {
		return fmt.Sprintf("%s,Intensity,Time,ReturnNum\n", coords)
	}
	return fmt.Sprintf("%s,Intensity,Time,ReturnNum,ReturnType,SpatialConf,IntensityConf\n", coords)
}

// tagBreakdown splits a tag byte into (returnType, spatialConf,
// intensityConf) per the source's bit-field convention: the two high bits
// are spatial confidence, the next two are intensity confidence, the next
// two are return type.
func tagBreakdown(tag byte) (returnType, spatialConf, intensityConf int) {
	spatialConf = int(tag>>6) & 0x3
	intensityConf = int(tag>>4) & 0x3
	returnType = int(tag>>2) & 0x3
	return
}

func csvRow(dataType int16, r PointRecord) string {
	var coords string
	if r.Cartesian {
		coords = fmt.Sprintf("%.3f,%.3f,%.3f", r.X, r.Y, r.Z)
	} else {
		coords = fmt.Sprintf("%.3f,%.2f,%.2f", r.Distance, r.Zenith, r.Azimuth)
	}
	if dataType == 0 || dataType == 1 {
		return fmt.Sprintf("%s,%d,%.6f,%d\n", coords, r.Intensity, r.Timestamp, r.ReturnNum)
	}
	returnType, spatialConf, intensityConf := tagBreakdown(r.Tag)
	return fmt.Sprintf("%s,%d,%.6f,%d,%d,%d,%d\n", coords, r.Intensity, r.Timestamp, r.ReturnNum, returnType, spatialConf, intensityConf)
}

// ConvertPointsToCSV reads binPath (a Binary point file) and writes one CSV
// line per record to binPath+".csv" (spec §4.7). It returns the number of
// records converted.
func ConvertPointsToCSV(binPath string) (int, error) {
	pr, err := OpenPointFile(binPath)
	if err != nil {
		return 0, err
	}
	defer pr.Close()

	out, err := os.Create(binPath + ".csv")
	if err != nil {
		return 0, fmt.Errorf("transcoder: create csv file: %w", err)
	}
	defer out.Close()
	w := bufio.NewWriter(out)
	defer w.Flush()

	if _, err := w.WriteString(csvHeader(pr.DataType)); err != nil {
		return 0, err
	}

	count := 0
	for {
		rec, err := pr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, err
		}
		if _, err := w.WriteString(csvRow(pr.DataType, rec)); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// imuCSVHeader matches the source's exact IMU CSV header line verbatim
// (spec §12), comment-slashes included.
const imuCSVHeader = "//gyro_x,gyro_y,gyro_z,acc_x,acc_y,acc_z,time\n"

func imuCSVRow(r IMURecord) string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f\n", r.GyroX, r.GyroY, r.GyroZ, r.AccelX, r.AccelY, r.AccelZ, r.Timestamp)
}

// ConvertIMUToCSV reads binPath (a Binary IMU file) and writes one CSV line
// per sample to binPath+".csv". It returns the number of samples converted.
func ConvertIMUToCSV(binPath string) (int, error) {
	ir, err := OpenIMUFile(binPath)
	if err != nil {
		return 0, err
	}
	defer ir.Close()

	out, err := os.Create(binPath + ".csv")
	if err != nil {
		return 0, fmt.Errorf("transcoder: create imu csv file: %w", err)
	}
	defer out.Close()
	w := bufio.NewWriter(out)
	defer w.Flush()

	if _, err := w.WriteString(imuCSVHeader); err != nil {
		return 0, err
	}

	count := 0
	for {
		rec, err := ir.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, err
		}
		if _, err := w.WriteString(imuCSVRow(rec)); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
