// Package diarize assigns a speaker label to every voiced interval.
//
// Intervals are first compared against the enrolled coach reference and
// labelled COACH or UNKNOWN, the binary sequence is median-smoothed over
// time, the UNKNOWN intervals are clustered into at most MaxSpeakers
// identities (OTHER_1, OTHER_2, ...) and finally the cluster with the most
// total speech is promoted to PRIMARY_NONCOACH.
package diarize

import (
	"fmt"
	"strconv"
	"strings"
)

// Label identifies the speaker of a diarized segment.
type Label string

// Fixed speaker labels. Cluster labels are built with OtherLabel.
const (
	// LabelCoach is the enrolled reference speaker.
	LabelCoach Label = "COACH"
	// LabelUnknown is a transient label for non-coach speech before clustering.
	// The aligner also falls back to it when no diarization is available.
	LabelUnknown Label = "UNKNOWN"
	// LabelPrimaryNonCoach is the non-coach cluster with the most speech.
	LabelPrimaryNonCoach Label = "PRIMARY_NONCOACH"
)

const otherPrefix = "OTHER_"

// OtherLabel returns the label for the 1-based cluster k.
func OtherLabel(k int) Label {
	return Label(fmt.Sprintf("%s%d", otherPrefix, k))
}

// ClusterIndex returns k for an OTHER_<k> label.
func (l Label) ClusterIndex() (int, bool) {
	s, ok := strings.CutPrefix(string(l), otherPrefix)
	if !ok {
		return 0, false
	}
	k, err := strconv.Atoi(s)
	if err != nil || k < 1 {
		return 0, false
	}
	return k, true
}

// String returns the label text.
func (l Label) String() string {
	return string(l)
}

// Segment is a voiced interval with its final speaker label.
type Segment struct {
	Start float64
	End   float64
	Label Label
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	if s.End < s.Start {
		return 0
	}
	return s.End - s.Start
}
