// Package client talks to a sensor bridge.
//
// Client matches replies to calls by message ID and routes events to the
// Stream listening on their channel. It does not read from the network
// itself; Conn adds a transport connection and a read loop.
//
//	conn, err := client.Dial(ctx, "bridge.local:47420", client.Config{})
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	sm := conn.SensorManager()
//	s, err := sm.ListenSensor(ctx, sensor.TypeAccelerometer, sensor.DelayUI)
//	for record := range s.Events() {
//		fmt.Println(record[sensor.FieldValues])
//	}
//
// Failed replies are returned as *channel.Error; use channel.StatusOf or
// errors.As to inspect the status.
package client
