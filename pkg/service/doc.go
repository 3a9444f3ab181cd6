// Package service runs the sensor bridge as a network service.
//
// BridgeService accepts client connections through pkg/transport. Each
// connection gets a session made of a channel.Messenger and a
// bridge.Plugin, so streams, registries and listen state are never shared
// between clients. Closing a connection cancels its listeners and unbinds
// every stream it opened, releasing the host registrations.
//
// Example usage:
//
//	host := simhost.NewDefault()
//	svc, err := service.NewBridgeService(host, service.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	svc.SetAdvertiser(discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig()))
//	if err := svc.Start(ctx); err != nil {
//		return err
//	}
//	defer svc.Stop()
//
// # Event Callbacks
//
// Services emit events for session changes and errors:
//
//	svc.OnEvent(func(e service.Event) {
//		log.Printf("%s %s", e.Type, e.ConnectionID)
//	})
package service
