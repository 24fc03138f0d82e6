package event

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoState marks a payload carrying neither an IsMotion nor a State item.
var ErrNoState = errors.New("event: payload has no IsMotion or State item")

// SimpleItem is one name/value pair from a notification payload.
type SimpleItem struct {
	Name  string
	Value string
}

// Raw is a camera notification as delivered by the device client, before
// classification.
type Raw struct {
	Topic string
	Items []SimpleItem
}

// Values is a notification payload flattened to name -> value.
type Values map[string]string

// Values flattens the payload items. Cameras do not promise unique item
// names; repeats resolve to the last value in payload order.
func (r Raw) Values() Values {
	values := make(Values, len(r.Items))
	for _, item := range r.Items {
		values[item.Name] = item.Value
	}
	return values
}

// State derives the observed boolean from the payload: IsMotion when
// present, State otherwise.
func (v Values) State() (bool, error) {
	for _, name := range []string{"IsMotion", "State"} {
		raw, ok := v[name]
		if !ok {
			continue
		}
		state, err := strconv.ParseBool(raw)
		if err != nil {
			return false, fmt.Errorf("event: %s=%q: %w", name, raw, err)
		}
		return state, nil
	}
	return false, ErrNoState
}

// Classify maps a namespaced notification topic, for example
// "tns1:RuleEngine/CellMotionDetector/Motion", onto its Kind. Only the part
// after the namespace prefix decides the outcome, so vendor namespaces all
// land on the same kind.
func Classify(topic string) (Kind, bool) {
	if idx := strings.LastIndex(topic, ":"); idx >= 0 {
		topic = topic[idx+1:]
	}
	kind, ok := topicKinds[topic]
	return kind, ok
}
