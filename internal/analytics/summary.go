// Package analytics summarises the finalised results of a test.
package analytics

import (
	"math"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

const DefaultPassPercentage = 40.0

// DefaultBands is the histogram used when a test declares none.
var DefaultBands = []exam.ScoreBand{
	{Label: "90-100", Min: 90, Max: 100},
	{Label: "80-89", Min: 80, Max: 90},
	{Label: "70-79", Min: 70, Max: 80},
	{Label: "60-69", Min: 60, Max: 70},
	{Label: "50-59", Min: 50, Max: 60},
	{Label: "40-49", Min: 40, Max: 50},
	{Label: "Below 40", Min: 0, Max: 40},
}

type Policy struct {
	PassPercentage float64
	Bands          []exam.ScoreBand
}

// PolicyFor takes the pass mark and bands from the test, with defaults.
func PolicyFor(t exam.Test) Policy {
	p := Policy{PassPercentage: DefaultPassPercentage, Bands: DefaultBands}
	if t.PassPercentage != nil {
		p.PassPercentage = *t.PassPercentage
	}
	if len(t.ScoreBands) > 0 {
		p.Bands = t.ScoreBands
	}
	return p
}

type Bucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type Summary struct {
	TestID            string   `json:"testId"`
	TotalAttempts     int      `json:"totalAttempts"`
	AverageScore      float64  `json:"averageScore"`
	AveragePercentage float64  `json:"averagePercentage"`
	HighestScore      float64  `json:"highestScore"`
	LowestScore       float64  `json:"lowestScore"`
	PassedCount       int      `json:"passedCount"`
	FailedCount       int      `json:"failedCount"`
	PassPercentage    float64  `json:"passPercentage"`
	ScoreDistribution []Bucket `json:"scoreDistribution"`
}

// Summarize aggregates results. In-progress attempts are ignored.
func Summarize(testID string, results []exam.TestResult, p Policy) Summary {
	s := Summary{TestID: testID, PassPercentage: p.PassPercentage}
	s.ScoreDistribution = make([]Bucket, len(p.Bands))
	for i, b := range p.Bands {
		s.ScoreDistribution[i] = Bucket{Label: b.Label}
	}
	floor := lowestMin(p.Bands)

	var sumScore, sumPct float64
	for _, r := range results {
		if !r.Status.Final() {
			continue
		}
		if s.TotalAttempts == 0 {
			s.HighestScore, s.LowestScore = r.ObtainedMarks, r.ObtainedMarks
		}
		s.TotalAttempts++
		sumScore += r.ObtainedMarks
		sumPct += r.Percentage
		s.HighestScore = math.Max(s.HighestScore, r.ObtainedMarks)
		s.LowestScore = math.Min(s.LowestScore, r.ObtainedMarks)
		if r.Percentage >= p.PassPercentage {
			s.PassedCount++
		} else {
			s.FailedCount++
		}
		if i := bandOf(p.Bands, floor, r.Percentage); i >= 0 {
			s.ScoreDistribution[i].Count++
		}
	}
	if s.TotalAttempts > 0 {
		s.AverageScore = sumScore / float64(s.TotalAttempts)
		s.AveragePercentage = sumPct / float64(s.TotalAttempts)
	}
	return s
}

// bandOf returns the first band holding pct, -1 if none. Bands are
// [Min, Max); a band reaching 100 is closed above and the lowest band is open
// below.
func bandOf(bands []exam.ScoreBand, floor, pct float64) int {
	for i, b := range bands {
		lo := pct >= b.Min || b.Min == floor
		hi := pct < b.Max || b.Max >= 100
		if lo && hi {
			return i
		}
	}
	return -1
}

func lowestMin(bands []exam.ScoreBand) float64 {
	floor := math.Inf(1)
	for _, b := range bands {
		floor = math.Min(floor, b.Min)
	}
	return floor
}
