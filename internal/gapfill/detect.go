// Package gapfill detects runs of unusable samples and fills the short ones
// with a strategy selected from the variable's fill method.
package gapfill

import (
	"time"

	"github.com/chrissnell/fluxprep/internal/types"
)

// Detect returns every maximal run of missing or flagged samples in ts.
// Gaps touching either end of the series are marked Truncated.
func Detect(ts types.TimeSeries) []types.Gap {
	var gaps []types.Gap
	n := len(ts.Samples)
	interval := ts.Variable.Interval

	for i := 0; i < n; {
		if ts.Samples[i].Quality.Usable() {
			i++
			continue
		}
		j := i
		for j+1 < n && !ts.Samples[j+1].Quality.Usable() {
			j++
		}
		gaps = append(gaps, types.Gap{
			Variable:   ts.Variable.Name,
			Start:      ts.Samples[i].Time,
			End:        ts.Samples[j].Time,
			StartIndex: i,
			EndIndex:   j,
			Duration:   time.Duration(j-i+1) * interval,
			Truncated:  i == 0 || j == n-1,
		})
		i = j + 1
	}
	return gaps
}
