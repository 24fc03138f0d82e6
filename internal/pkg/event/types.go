package event

// Kind is the bridge-side classification of a camera notification. Its
// string value doubles as the canonical publish subtopic.
type Kind string

func (k Kind) String() string {
	return string(k)
}

const (
	Motion       Kind = "motion"
	MotionRegion Kind = "motion_region"
	MotionVideo  Kind = "motion_video"
	People       Kind = "people"
	Face         Kind = "face"
	Animal       Kind = "animal"
	Vehicle      Kind = "vehicle"
	Visitor      Kind = "visitor"
)

// Kinds lists every kind the bridge forwards, in canonical order.
var Kinds = []Kind{
	Motion,
	MotionRegion,
	MotionVideo,
	People,
	Face,
	Animal,
	Vehicle,
	Visitor,
}

// topicKinds maps a device-native event type, namespace already stripped,
// onto its Kind. Topics missing from the table are dropped by Classify.
var topicKinds = map[string]Kind{
	"RuleEngine/CellMotionDetector/Motion":    Motion,
	"RuleEngine/MotionRegionDetector/Motion":  MotionRegion,
	"VideoSource/MotionAlarm":                 MotionVideo,
	"RuleEngine/MyRuleDetector/PeopleDetect":  People,
	"RuleEngine/MyRuleDetector/FaceDetect":    Face,
	"RuleEngine/MyRuleDetector/DogCatDetect":  Animal,
	"RuleEngine/MyRuleDetector/VehicleDetect": Vehicle,
	"RuleEngine/MyRuleDetector/Visitor":       Visitor,
}
