// Package notify delivers alerts to people and systems.
//
// Every Notifier implements the same contract: Send either delivers the
// alert, retrying on its own where the transport warrants it, or returns an
// error. Callers treat that error as a failed delivery of that one alert and
// carry on with the next. Slack posts formatted messages, Kafka and MQTT
// publish JSON events, Log writes to a slog.Logger, and Multi fans out to
// several notifiers.
package notify
