// Package events delivers committed rocker events to MQTT and InfluxDB.
//
// Each sink implements rocker.EventSink. Fanout combines the configured
// sinks; the translator logs, but never propagates, delivery failures.
package events
