// Package changelog keeps an append-only history of checkpoint operations.
package changelog

import (
	"context"
	"time"
)

// Op names a recorded operation.
type Op string

// Recorded operations.
const (
	OpCreate  Op = "create"
	OpRestore Op = "restore"
	OpBackup  Op = "backup"
	OpPrune   Op = "prune"
)

// Entry is one line of history.
type Entry struct {
	ID         int64     `json:"id,omitempty" yaml:"id,omitempty"`
	Time       time.Time `json:"time" yaml:"time"`
	Op         Op        `json:"op" yaml:"op"`
	Checkpoint string    `json:"checkpoint" yaml:"checkpoint"`
	Kind       string    `json:"kind,omitempty" yaml:"kind,omitempty"`
	Files      int       `json:"files" yaml:"files"`
	Bytes      int64     `json:"bytes" yaml:"bytes"`
	Detail     string    `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Sink receives history entries. Record must not block the caller on
// failure; implementations log and drop entries they cannot persist.
type Sink interface {
	Record(ctx context.Context, entry Entry)
}

// NopSink discards every entry.
type NopSink struct{}

// Record implements Sink.
func (NopSink) Record(context.Context, Entry) {}
