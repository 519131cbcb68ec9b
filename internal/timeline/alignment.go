package timeline

import "time"

// AlignmentMode says how trace spans were placed on the shared axis.
type AlignmentMode string

const (
	// ModeNone means no trace source was loaded or alignment failed.
	ModeNone AlignmentMode = "none"
	// ModeAbsolute translates span ticks through a recorded start reference.
	ModeAbsolute AlignmentMode = "absolute"
	// ModeProportional linearly rescales spans onto an anchor interval.
	ModeProportional AlignmentMode = "proportional"
)

// Confidence qualifies the span placement.
type Confidence string

const (
	ConfidenceExact       Confidence = "exact"
	ConfidenceApproximate Confidence = "approximate"
)

// OriginSource names where the run origin came from.
type OriginSource string

const (
	OriginRunStart    OriginSource = "run-start"
	OriginFirstSample OriginSource = "first-sample"
	OriginFirstEvent  OriginSource = "first-event"
	OriginEpoch       OriginSource = "epoch"
)

// AnchorSource names where one end of the proportional anchor came from.
type AnchorSource string

const (
	AnchorEvent      AnchorSource = "event"
	AnchorDomainEdge AnchorSource = "domain-edge"
)

// Alignment records how the run was put on one axis.
type Alignment struct {
	Mode         AlignmentMode `json:"mode"`
	Confidence   Confidence    `json:"confidence,omitempty"`
	Origin       time.Time     `json:"origin"`
	OriginSource OriginSource  `json:"origin_source"`

	// Proportional mode only.
	AnchorStart       RelativeTime `json:"anchor_start,omitempty"`
	AnchorEnd         RelativeTime `json:"anchor_end,omitempty"`
	AnchorStartSource AnchorSource `json:"anchor_start_source,omitempty"`
	AnchorEndSource   AnchorSource `json:"anchor_end_source,omitempty"`

	// Err is non-nil when the trace overlay is disabled.
	Err   error    `json:"-"`
	Notes []string `json:"notes,omitempty"`
}

// Approximate reports whether span placement is only proportional.
func (a Alignment) Approximate() bool {
	return a.Confidence == ConfidenceApproximate
}

// ErrorText returns the alignment error message or "".
func (a Alignment) ErrorText() string {
	if a.Err == nil {
		return ""
	}
	return a.Err.Error()
}
