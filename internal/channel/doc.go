// Package channel manages live connections to control-system process
// variables.
//
// A Registry resolves channel names to shared Conn handles through a
// pluggable Provider, caching handles so repeated resolutions of the same
// channel reuse one connection. Names are normalized before dialing: a
// bare record name gains the default field suffix, so "XRD:m1" and
// "XRD:m1.VAL" resolve to the same handle.
//
// The package also classifies channels into record kinds (motor, enum,
// string, other) and maps each kind to the ordered list of display types
// an editor should offer for it.
//
// MQTTProvider is the bundled Provider, speaking to a channel-access
// gateway over MQTT. Tests and embedders can supply their own Provider.
package channel
