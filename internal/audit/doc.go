// Package audit delivers navigation and session audit events to a sink off the
// caller's goroutine.
//
// # Components
//
//   - [Event] is the record: what happened, where, for whom, and how it ended.
//   - [Sink] consumes events. [ChannelSink], [JSONWriterSink], [LoggerSink]
//     and [NoOpSink] are provided.
//   - [Dispatcher] is the buffered relay between emitters and one sink.
//
// # What this package must NOT do
//
//   - Decide which events to emit.
//   - Import goBlog or any sibling package.
package audit
