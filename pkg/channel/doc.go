// Package channel implements named method and event channels over a single
// framed connection.
//
// A Messenger decodes incoming Calls and routes them by channel name:
//
//   - Method channels dispatch to a MethodHandler. Its result becomes the
//     Reply payload; an error becomes a failed Reply whose status is taken
//     from *Error or derived from wrapped argument errors.
//   - Event channels dispatch the reserved "listen" and "cancel" methods to
//     a StreamHandler. OnListen receives an EventSink that pushes Event
//     messages on the channel until the stream is cancelled or ended.
//
// Listening again on a channel that is already listening cancels the
// previous listener first. Cancelling a channel that is not listening is an
// error. Closing the Messenger cancels every active listener.
package channel
