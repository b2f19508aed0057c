// Package notify provides circulation.Notifier sinks.
//
// JSONLinesWriter encodes every event as one JSON document per line with message metadata,
// Fanout delivers one event to several notifiers, and Channel hands events to an in-process
// consumer without ever blocking the Coordinator.
package notify
