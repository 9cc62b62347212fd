// Package rocker translates EnOcean rocker switch activity into KNX toggles.
//
// A Translator listens to decoded attribute batches from the enocean
// DeviceManager. Per button it keeps a pressed flag in the Store:
//
//	Released ──RockerAction(button set)──► Pressed
//	Pressed  ──RockerAction(button clear)─► Released
//	Pressed  ──ButtonCount(0)─────────────► Released, toggle switch
//
// A toggle reads the switch's main group address and writes the inverse.
// When the current value is unknown nothing is written. The read and write
// are not atomic with respect to other bus participants.
//
// Collaborators are narrow interfaces (Store, UnitOfWork, BusGateway,
// EventSink) so the state machine can be tested with in-memory fakes.
package rocker
