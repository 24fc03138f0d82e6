package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"github.com/anicoll/onvif-integration/internal/pkg/event"
)

type registerDevice struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer"`
}

type registerMessage struct {
	Tilda       string         `json:"~"`
	Name        string         `json:"name"`
	ID          string         `json:"unique_id"`
	StateTopic  string         `json:"state_topic"`
	DeviceClass string         `json:"device_class"`
	PayloadOn   string         `json:"payload_on"`
	PayloadOff  string         `json:"payload_off"`
	Device      registerDevice `json:"device"`
}

// deviceClasses picks the Home Assistant binary_sensor class per kind.
// Kinds without a closer match stay plain motion.
var deviceClasses = map[event.Kind]string{
	event.People:  "occupancy",
	event.Face:    "occupancy",
	event.Visitor: "occupancy",
}

// RegisterSensor publishes the Home Assistant discovery config for one
// device/kind pair. Repeat calls for an already configured pair are no-ops.
func (s *service) RegisterSensor(deviceID string, kind event.Kind) error {
	key := deviceID + "/" + kind.String()
	s.mu.Lock()
	_, exists := s.configured[key]
	s.mu.Unlock()
	if exists {
		return nil
	}

	payload, err := json.Marshal(defaultRegisterMsg(s.prefix, deviceID, kind))
	if err != nil {
		return err
	}
	uniqueID := sensorID(deviceID, kind)
	topic := fmt.Sprintf("homeassistant/binary_sensor/%s/config", uniqueID)

	token := s.client.Publish(topic, 1, true, payload)
	if !token.WaitTimeout(time.Second * 5) {
		return fmt.Errorf("mqtt: discovery publish for %s timed out", uniqueID)
	}
	if err := token.Error(); err != nil {
		return err
	}

	s.mu.Lock()
	s.configured[key] = struct{}{}
	s.mu.Unlock()
	return nil
}

func defaultRegisterMsg(prefix, deviceID string, kind event.Kind) registerMessage {
	deviceSlug := slug.Make(deviceID)
	return registerMessage{
		Tilda:       fmt.Sprintf("%s/%s", prefix, deviceSlug),
		Name:        fmt.Sprintf("%s %s", deviceID, kind),
		ID:          sensorID(deviceID, kind),
		StateTopic:  "~/" + kind.String(),
		DeviceClass: deviceClass(kind),
		PayloadOn:   StatusOn,
		PayloadOff:  StatusOff,
		Device: registerDevice{
			Name:         deviceID,
			Identifiers:  []string{deviceSlug},
			Manufacturer: "ONVIF",
		},
	}
}

func deviceClass(kind event.Kind) string {
	if class, ok := deviceClasses[kind]; ok {
		return class
	}
	return "motion"
}

func sensorID(deviceID string, kind event.Kind) string {
	return strings.ReplaceAll(fmt.Sprintf("%s_%s", slug.Make(deviceID), kind), "-", "_")
}
