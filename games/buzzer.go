// Package games holds design notes for the buzzer game.
//
// A host creates a room and shares its 4-digit PIN (or the QR link)
// Players join with a name, and pick a team while team mode is on
// The host arms the buzzers; the first player to buzz wins the round
// Everyone else is locked out until the host resets or re-arms
//
// Scoring:
// - Team mode on: one scoreboard entry per team
// - Team mode off: one scoreboard entry per player name
// - The host adjusts scores manually between rounds
//
// Implementation details:
// - One WebSocket per participant; all actions are JSON messages with a "type"
// - Connections are identified by a per-socket UUID, not a cookie, so the
//   same browser can host one room and play in another
// - Rooms idle past the configured timeout are notified and then reaped
package games
