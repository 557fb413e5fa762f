// Package stores archives workflows, actor activity and anomalies.
// The SQLite implementation runs in WAL mode with a small connection pool
// and applies its schema through embedded golang-migrate migrations.
//
// SQLiteStore plugs into the rest of the system through three seams:
// it is an engine.Archiver, an activity.Sink, and AnomalyHook returns a
// monitor callback.
package stores
