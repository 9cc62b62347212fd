package mqtt

import "fmt"

// Topic prefixes. All bridge topics use the flat scheme
// graylogic/{category}/{protocol}/{address}.
const (
	TopicPrefix = "graylogic"

	// Protocol is the protocol segment used for every topic this bridge owns.
	Protocol = "enocean"
)

// Topics provides builders for the bridge's MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.ButtonState("00A1B2C3", "AI")
//	// Returns: "graylogic/state/enocean/00A1B2C3/AI"
type Topics struct{}

// ButtonState returns the retained state topic of one rocker button.
func (Topics) ButtonState(device, position string) string {
	return fmt.Sprintf("%s/state/%s/%s/%s", TopicPrefix, Protocol, device, position)
}

// ButtonEvent returns the topic toggle outcomes of one button are sent to.
func (Topics) ButtonEvent(device, position string) string {
	return fmt.Sprintf("%s/event/%s/%s/%s", TopicPrefix, Protocol, device, position)
}

// BridgeStatus returns the retained online/offline topic of the bridge.
//
// Example: graylogic/system/status/enocean
func (Topics) BridgeStatus() string {
	return fmt.Sprintf("%s/system/status/%s", TopicPrefix, Protocol)
}
