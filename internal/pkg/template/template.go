package template

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyTopic marks a subtopic pattern that rendered to nothing.
var ErrEmptyTopic = errors.New("template: rendered subtopic is empty")

// Values carries the substitution set offered to operator templates.
type Values struct {
	DeviceID string
	Type     string
	State    string
}

// Render substitutes the known tokens into pattern. Unknown tokens stay in
// the output untouched; operators rely on that to pass placeholders through
// to downstream systems with their own template syntax.
func Render(pattern string, v Values) string {
	r := strings.NewReplacer(
		"{onvifDeviceId}", v.DeviceID,
		"{eventType}", v.Type,
		"{eventState}", v.State,
	)
	return r.Replace(pattern)
}

// RenderTopic renders a subtopic pattern and validates the result is usable
// as a publish topic suffix.
func RenderTopic(pattern string, v Values) (string, error) {
	topic := Render(pattern, v)
	if topic == "" {
		return "", ErrEmptyTopic
	}
	if strings.ContainsAny(topic, "+#") {
		return "", fmt.Errorf("template: rendered subtopic %q contains an mqtt wildcard", topic)
	}
	return topic, nil
}
