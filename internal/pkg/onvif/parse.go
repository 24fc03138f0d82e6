package onvif

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/anicoll/onvif-integration/internal/pkg/event"
)

// Wire model for PullMessagesResponse. Tags are namespace-agnostic because
// cameras qualify these elements with differing prefixes and the decoder
// matches on local names.
type envelope struct {
	Body struct {
		PullMessagesResponse pullMessagesResponse `xml:"PullMessagesResponse"`
	} `xml:"Body"`
}

type pullMessagesResponse struct {
	CurrentTime     string                `xml:"CurrentTime"`
	TerminationTime string                `xml:"TerminationTime"`
	Messages        []notificationMessage `xml:"NotificationMessage"`
}

type notificationMessage struct {
	Topic   string        `xml:"Topic"`
	Message messageHolder `xml:"Message"`
}

// messageHolder absorbs the outer notification Message element wrapping the
// schema Message element of the same local name.
type messageHolder struct {
	Inner innerMessage `xml:"Message"`
}

type innerMessage struct {
	UtcTime           string        `xml:"UtcTime,attr"`
	PropertyOperation string        `xml:"PropertyOperation,attr"`
	Source            itemContainer `xml:"Source"`
	Data              itemContainer `xml:"Data"`
}

type itemContainer struct {
	SimpleItems []simpleItem `xml:"SimpleItem"`
}

type simpleItem struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:"Value,attr"`
}

// createResponseEnvelope reads only the pull-point manager address out of
// CreatePullPointSubscriptionResponse; termination times are left to lapse
// camera-side.
type createResponseEnvelope struct {
	Body struct {
		CreatePullPointSubscriptionResponse struct {
			SubscriptionReference struct {
				Address string `xml:"Address"`
			} `xml:"SubscriptionReference"`
		} `xml:"CreatePullPointSubscriptionResponse"`
	} `xml:"Body"`
}

func parseSubscriptionAddress(body []byte) (string, error) {
	var env createResponseEnvelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("onvif: decode subscription response: %w", err)
	}
	addr := strings.TrimSpace(env.Body.CreatePullPointSubscriptionResponse.SubscriptionReference.Address)
	if addr == "" {
		return "", fmt.Errorf("onvif: subscription response carries no reference address")
	}
	return addr, nil
}

func parsePullResponse(body []byte) ([]event.Raw, error) {
	var env envelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("onvif: decode pull response: %w", err)
	}
	messages := env.Body.PullMessagesResponse.Messages
	events := make([]event.Raw, 0, len(messages))
	for _, msg := range messages {
		raw := event.Raw{Topic: strings.TrimSpace(msg.Topic)}
		for _, item := range msg.Message.Inner.Data.SimpleItems {
			raw.Items = append(raw.Items, event.SimpleItem{Name: item.Name, Value: item.Value})
		}
		events = append(events, raw)
	}
	return events, nil
}
