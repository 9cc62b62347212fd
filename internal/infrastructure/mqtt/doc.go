// Package mqtt publishes the bridge's button state and toggle outcomes to
// an MQTT broker.
//
// The client is publish-only. It manages:
//   - Connection to the broker with auto-reconnect
//   - Retained button state, non-retained toggle events
//   - Last Will and Testament on the bridge status topic
//
// # Topics
//
//	graylogic/state/enocean/{device}/{position}   retained button state
//	graylogic/event/enocean/{device}/{position}   toggle outcomes
//	graylogic/system/status/enocean               online/offline (LWT)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.ButtonState("00A1B2C3", "AI")
//	err = client.PublishRetained(topic, []byte(`{"pressed":true}`))
package mqtt
