package onvif

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	goonvif "github.com/use-go/onvif"
	onvifevent "github.com/use-go/onvif/event"
	"github.com/use-go/onvif/gosoap"
	"github.com/use-go/onvif/networking"

	"github.com/anicoll/onvif-integration/internal/pkg/config"
	"github.com/anicoll/onvif-integration/internal/pkg/event"
)

// pullPoint is one camera-side pull-point manager. Pulls are posted to the
// SubscriptionReference address the camera handed back, not to the generic
// event-service endpoint; single-pull-point firmwares accept either, stricter
// ones only the former.
type pullPoint struct {
	endpoint string
	client   *http.Client
	username string
	password string
}

func createPullPoint(dev *goonvif.Device, device config.DeviceConfig, client *http.Client) (*pullPoint, error) {
	res, err := dev.CallMethod(onvifevent.CreatePullPointSubscription{})
	if err != nil {
		return nil, fmt.Errorf("onvif: create pull point: %w", err)
	}
	body, err := readResponse(res)
	if err != nil {
		return nil, fmt.Errorf("onvif: create pull point: %w", err)
	}
	addr, err := parseSubscriptionAddress(body)
	if err != nil {
		return nil, err
	}
	return &pullPoint{
		endpoint: rewriteHost(addr, fmt.Sprintf("%s:%d", device.Hostname, device.Port)),
		client:   client,
		username: device.Username,
		password: device.Password,
	}, nil
}

func (p *pullPoint) pullMessages() ([]event.Raw, error) {
	res, err := p.call(onvifevent.PullMessages{
		Timeout:      pullTimeout,
		MessageLimit: pullMessageLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("onvif: pull messages: %w", err)
	}
	body, err := readResponse(res)
	if err != nil {
		return nil, fmt.Errorf("onvif: pull messages: %w", err)
	}
	return parsePullResponse(body)
}

// call posts one method to the pull-point address with the same envelope the
// device library builds for its own endpoints.
func (p *pullPoint) call(method any) (*http.Response, error) {
	body, err := xml.Marshal(method)
	if err != nil {
		return nil, err
	}
	soap := gosoap.NewEmptySOAP()
	soap.AddStringBodyContent(string(body))
	soap.AddRootNamespaces(goonvif.Xlmns)
	soap.AddAction()
	if p.username != "" && p.password != "" {
		soap.AddWSSecurity(p.username, p.password)
	}
	return networking.SendSoap(p.client, p.endpoint, soap.String())
}

// rewriteHost forces the configured camera address onto the reference URL;
// NAT'd firmwares report their internal host there.
func rewriteHost(addr, xaddr string) string {
	u, err := url.Parse(addr)
	if err != nil || u.Scheme == "" {
		return addr
	}
	u.Host = xaddr
	return u.String()
}

func readResponse(res *http.Response) ([]byte, error) {
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("device returned %s: %s", res.Status, truncate(body, 200))
	}
	return body, nil
}

func truncate(body []byte, limit int) string {
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
