// Package bridge implements the sensor manager command surface.
//
// A Plugin serves one client session. It answers the commands of the
// method channel "com.switches/sensor_manager" from the host and opens one
// event channel per stream:
//
//	com.switches/sensor_manager/continuous/android.sensor.accelerometer
//	com.switches/sensor_manager/trigger/android.sensor.significant_motion
//	com.switches/sensor_manager/hotplug/dynamic
//
// The register commands (registerListener, requestTriggerSensor,
// registerDynamicSensorCallback) install a stream handler and reply with the
// event channel name. The stream is bound to the host when the client
// listens on that channel and unbound when it cancels. All bindings go
// through a stream.Registry, which keeps at most one controller per channel.
//
// Optional host features are negotiated once from the platform description.
// Commands that need a missing feature fail with UNSUPPORTED rather than
// returning an empty result.
package bridge
