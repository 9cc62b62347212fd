package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementButton = "enocean_button"
	MeasurementToggle = "enocean_toggle"
)

// ButtonState is one pressed/released transition of a rocker button.
type ButtonState struct {
	Device    string
	Position  string
	Name      string
	Pressed   bool
	Timestamp time.Time
}

// Toggle is the outcome of one toggle attempt against a KNX switch.
type Toggle struct {
	Device   string
	Position string
	Switch   string
	Address  string
	Result   string
	// Value is the state written to the bus; nil when nothing was written.
	Value     *bool
	Timestamp time.Time
}

// WriteButtonState records a button transition. Non-blocking.
//
// Tags: device_id, position, button (when named), plus bridge and site.
// Fields: pressed (bool).
//
// Parameters:
//   - s: The transition; a zero Timestamp means now
func (c *Client) WriteButtonState(s ButtonState) {
	c.queue(buttonPoint(s))
}

// WriteToggle records a toggle outcome. Non-blocking.
//
// Tags: device_id, position, switch, address, plus bridge and site.
// Fields: result (string), and value (bool) only when a value was written
// to the bus.
//
// Parameters:
//   - t: The outcome; a zero Timestamp means now
func (c *Client) WriteToggle(t Toggle) {
	c.queue(togglePoint(t))
}

func (c *Client) queue(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
	c.pointsQueued.Add(1)
}

func buttonPoint(s ButtonState) *write.Point {
	tags := map[string]string{
		"device_id": s.Device,
		"position":  s.Position,
	}
	if s.Name != "" {
		tags["button"] = s.Name
	}
	return write.NewPoint(MeasurementButton, tags,
		map[string]interface{}{"pressed": s.Pressed},
		timestampOrNow(s.Timestamp))
}

func togglePoint(t Toggle) *write.Point {
	fields := map[string]interface{}{"result": t.Result}
	if t.Value != nil {
		fields["value"] = *t.Value
	}
	return write.NewPoint(MeasurementToggle,
		map[string]string{
			"device_id": t.Device,
			"position":  t.Position,
			"switch":    t.Switch,
			"address":   t.Address,
		},
		fields,
		timestampOrNow(t.Timestamp))
}

func timestampOrNow(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now()
	}
	return ts
}
