package transcoder

import (
	"fmt"
	"io"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Summary reports distributional diagnostics over one captured point file,
// grounded on the teacher's use of gonum/stat.Quantile for percentile
// reporting (internal/db/db.go's speed aggregates).
type Summary struct {
	Count          int
	MeanIntensity  float64
	P50Distance    float64
	P85Distance    float64
	P98Distance    float64
	FirstTimestamp float64
	LastTimestamp  float64
}

// Summarize reads every record in a Binary point file and computes
// intensity/distance/time diagnostics. For Cartesian data types, distance
// is the Euclidean norm of (X, Y, Z).
func Summarize(binPath string) (Summary, error) {
	pr, err := OpenPointFile(binPath)
	if err != nil {
		return Summary{}, err
	}
	defer pr.Close()

	var distances []float64
	var intensitySum float64
	var count int
	first, last := 0.0, 0.0

	for {
		rec, err := pr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Summary{}, err
		}
		d := rec.Distance
		if rec.Cartesian {
			d = euclidean(rec.X, rec.Y, rec.Z)
		}
		distances = append(distances, d)
		intensitySum += float64(rec.Intensity)
		if count == 0 {
			first = rec.Timestamp
		}
		last = rec.Timestamp
		count++
	}
	if count == 0 {
		return Summary{}, fmt.Errorf("transcoder: no records in %q", binPath)
	}

	sort.Float64s(distances)
	return Summary{
		Count:          count,
		MeanIntensity:  intensitySum / float64(count),
		P50Distance:    stat.Quantile(0.5, stat.Empirical, distances, nil),
		P85Distance:    stat.Quantile(0.85, stat.Empirical, distances, nil),
		P98Distance:    stat.Quantile(0.98, stat.Empirical, distances, nil),
		FirstTimestamp: first,
		LastTimestamp:  last,
	}, nil
}

func euclidean(x, y, z float64) float64 {
	return math.Sqrt(x*x + y*y + z*z)
}
