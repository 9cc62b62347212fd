// Package knx talks to a KNX installation through the knxd daemon.
//
// The bridge only needs boolean group points: toggle targets are read with a
// GroupValue_Read and written with a GroupValue_Write carrying DPT 1.
//
//	┌──────────────┐  Gateway   ┌──────────────┐  group socket  ┌─────────┐
//	│ rocker       │───────────►│ KNXDClient   │───────────────►│  knxd   │──► KNX bus
//	│ translator   │ ReadBool   │ (this pkg)   │ EIB_GROUP_PKT  │         │
//	└──────────────┘ WriteBool  └──────────────┘                └─────────┘
//
// # Group Addresses
//
// Addresses use the 3-level format Main/Middle/Sub:
//
//	addr, err := knx.ParseGroupAddress("1/2/3")
//
// GroupAddress implements encoding.TextUnmarshaler, so it can be used
// directly in YAML configuration.
//
// # Reads
//
// KNXDClient.Read sends a read request and waits for the first response or
// write seen on the same address. Gateway.ReadBool applies a timeout and
// reports "no answer" as an unknown value rather than an error.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package knx
