package sequence

import "strings"

// Kind is a recognised step type from the automation tool's vocabulary.
type Kind int

const (
	KindUnknown Kind = iota
	KindSmartExposure
	KindTakeManyExposures
	KindTakeExposure
	KindCoolCamera
	KindWarmCamera
	KindWaitForTimeSpan
	KindWaitForTime
	KindMoonIllumination
	KindSunAltitude
	KindAltitude
	KindLoopForIterations
	KindLoopUntilTime
	KindLoopForTimeSpan
	KindMeridianFlip
	KindSwitchFilter
	KindSetTracking
	KindMoveFocuser
	KindDitherAfterExposures
	KindAutofocus
	KindDither
	KindUnpark
	KindPark
	KindSlewCenter
	KindAnnotation
	KindMessageBox
)

// Category groups kinds for display, e.g. to pick an icon.
type Category string

const (
	CategoryCamera    Category = "camera"
	CategoryWait      Category = "wait"
	CategoryLoop      Category = "loop"
	CategoryTelescope Category = "telescope"
	CategoryFilter    Category = "filter"
	CategoryFocuser   Category = "focuser"
	CategoryGuiding   Category = "guiding"
	CategoryUtility   Category = "utility"
	CategoryContainer Category = "container"
	CategoryOther     Category = "other"
)

type kindRule struct {
	substr   string
	kind     Kind
	label    string
	category Category
}

// kindRules is matched in order; several names overlap ("Wait for Time" and
// "Wait for Time Span", "Sun Altitude" and "Altitude", "Dither after
// Exposures" and "Dither"), so the longer name must come first.
var kindRules = []kindRule{
	{"Smart Exposure", KindSmartExposure, "Smart Exposure", CategoryCamera},
	{"Take Many Exposures", KindTakeManyExposures, "Take Many Exposures", CategoryCamera},
	{"Take Exposure", KindTakeExposure, "Take Exposure", CategoryCamera},
	{"Cool Camera", KindCoolCamera, "Cool Camera", CategoryCamera},
	{"Warm Camera", KindWarmCamera, "Warm Camera", CategoryCamera},
	{"Wait for Time Span", KindWaitForTimeSpan, "Wait for Time Span", CategoryWait},
	{"Wait for Time", KindWaitForTime, "Wait for Time", CategoryWait},
	{"Moon Illumination", KindMoonIllumination, "Moon Illumination", CategoryWait},
	{"Sun Altitude", KindSunAltitude, "Sun Altitude", CategoryWait},
	{"Altitude", KindAltitude, "Altitude", CategoryWait},
	{"Above Horizon", KindAltitude, "Altitude", CategoryWait},
	{"Loop For Iterations", KindLoopForIterations, "Loop For Iterations", CategoryLoop},
	{"Loop Until Time", KindLoopUntilTime, "Loop Until Time", CategoryLoop},
	{"Loop until Time", KindLoopUntilTime, "Loop Until Time", CategoryLoop},
	{"Loop For Time Span", KindLoopForTimeSpan, "Loop For Time Span", CategoryLoop},
	{"Meridian Flip", KindMeridianFlip, "Meridian Flip", CategoryTelescope},
	{"Switch Filter", KindSwitchFilter, "Switch Filter", CategoryFilter},
	{"Set Tracking", KindSetTracking, "Set Tracking", CategoryTelescope},
	{"Move Focuser", KindMoveFocuser, "Move Focuser", CategoryFocuser},
	{"Dither after Exposures", KindDitherAfterExposures, "Dither after Exposures", CategoryGuiding},
	{"Run Autofocus", KindAutofocus, "Run Autofocus", CategoryFocuser},
	{"Dither", KindDither, "Dither", CategoryGuiding},
	{"Unpark Scope", KindUnpark, "Unpark Scope", CategoryTelescope},
	{"Park Scope", KindPark, "Park Scope", CategoryTelescope},
	{"Slew", KindSlewCenter, "Slew and Center", CategoryTelescope},
	{"Center", KindSlewCenter, "Slew and Center", CategoryTelescope},
	{"Annotation", KindAnnotation, "Annotation", CategoryUtility},
	{"Message Box", KindMessageBox, "Message Box", CategoryUtility},
}

// KindOf maps a node name to its kind using the ordered substring table.
func KindOf(name string) Kind {
	if r, ok := matchRule(name); ok {
		return r.kind
	}
	return KindUnknown
}

func matchRule(name string) (kindRule, bool) {
	for _, r := range kindRules {
		if containsName(name, r.substr) {
			return r, true
		}
	}
	return kindRule{}, false
}

func (k Kind) String() string {
	for _, r := range kindRules {
		if r.kind == k {
			return r.label
		}
	}
	return "Unknown"
}

// CategoryOf returns the display category of n. Unrecognised nodes with
// children are containers.
func CategoryOf(n *Node) Category {
	if n == nil {
		return CategoryOther
	}
	if r, ok := matchRule(n.Name); ok {
		return r.category
	}
	if n.HasChildren() {
		return CategoryContainer
	}
	return CategoryOther
}

// containsName matches case-sensitively, the vocabulary being canonical.
func containsName(name, substr string) bool {
	return strings.Contains(name, substr)
}
