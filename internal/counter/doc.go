// Package counter implements the counter operations of Tally Core on top of
// the database actor.
//
// Reads run on the reader pool; Set, Increment and Delete run on the single
// writer, so concurrent increments never lose updates. After each committed
// mutation a Change is handed to the registered notifiers (websocket hub,
// MQTT state publisher, InfluxDB recorder) in commit order.
//
// Counters can also be driven over MQTT: CommandListener accepts
// {"set": n} or {"increment": n} on tally/command/counter/{key}.
package counter
