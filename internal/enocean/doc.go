// Package enocean receives telegrams from an EnOcean USB gateway and turns
// them into attribute changes for registered devices.
//
// # Layers
//
//	serial port ──► Link (ESP3 framing) ──► DeviceManager (EEP decoding) ──► listeners
//
// The Link reads ESP3 packets from the gateway's serial interface and passes
// RADIO_ERP1 telegrams to a TelegramHandler. The DeviceManager is that handler:
// it drops telegrams from unregistered senders, decodes the rest according to
// the device's EEP and delivers an AttributeChange to every AttributeListener.
//
// # Supported profiles
//
//   - F6-02-01, F6-02-02: rocker switch, 2 rockers
//
// A rocker N-message decodes to a RockerAction with one flag per button index
// (AI=0, AO=1, BI=2, BO=3). A U-message decodes to a ButtonCount; the release
// telegram carries a count of 0.
//
// # Thread Safety
//
// Link runs a single read loop; telegrams are dispatched synchronously in
// arrival order. DeviceManager is safe for concurrent use.
//
// # References
//
//   - EnOcean Serial Protocol 3 (ESP3) specification
//   - EnOcean Equipment Profiles (EEP) 2.6
package enocean
