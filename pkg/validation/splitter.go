package validation

import (
	"time"
)

// SplitByRatio splits sorted timestamps into a train window holding the
// first ratio of bars and a test window holding the rest. ok is false when
// either side would be empty.
func SplitByRatio(times []time.Time, ratio float64) (train, test Window, ok bool) {
	if ratio <= 0 || ratio >= 1 || len(times) < 2 {
		return Window{}, Window{}, false
	}
	n := int(float64(len(times)) * ratio)
	if n < 1 || n >= len(times) {
		return Window{}, Window{}, false
	}
	last := times[len(times)-1]
	train = Window{Start: times[0], End: times[n], Bars: n}
	test = Window{Start: times[n], End: last.Add(time.Nanosecond), Bars: len(times) - n}
	return train, test, true
}

// CreateRollingFolds slides a train window followed by a test window across
// sorted timestamps, advancing by roll. Folds stop once either side holds
// fewer bars than required.
func CreateRollingFolds(times []time.Time, train, test, roll time.Duration, minTrain, minTest int) []Fold {
	var folds []Fold
	if len(times) == 0 || train <= 0 || test <= 0 || roll <= 0 {
		return folds
	}

	start := 0
	for start < len(times) {
		trainEndTs := times[start].Add(train)
		trainEnd := start
		for trainEnd < len(times) && times[trainEnd].Before(trainEndTs) {
			trainEnd++
		}

		testEndTs := trainEndTs.Add(test)
		testEnd := trainEnd
		for testEnd < len(times) && times[testEnd].Before(testEndTs) {
			testEnd++
		}

		trainSize, testSize := trainEnd-start, testEnd-trainEnd
		if trainSize < minTrain || testSize < minTest {
			break
		}
		folds = append(folds, Fold{
			Index: len(folds) + 1,
			Train: Window{Start: times[start], End: trainEndTs, Bars: trainSize},
			Test:  Window{Start: trainEndTs, End: testEndTs, Bars: testSize},
		})

		nextTs := times[start].Add(roll)
		next := start
		for next < len(times) && times[next].Before(nextTs) {
			next++
		}
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return folds
}
