// Package directory loads the rocker device directory and persists it
// together with button state.
//
// The directory file (YAML) lists KNX switches and EnOcean rocker devices.
// Each button may carry a toggle command naming exactly one switch; more
// than one is rejected at load time with ErrMultipleSwitches.
//
// SQLiteStore implements rocker.Store. Import writes a loaded directory in a
// single transaction and keeps the pressed state of buttons that survive the
// import. Each rocker unit of work is one SQL transaction.
package directory
