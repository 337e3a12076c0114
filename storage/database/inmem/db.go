package inmemdb

import (
	"sync"

	"github.com/trezcool/beet/core/progress"
)

type (
	DB struct {
		record *recordTable
	}

	// recordTable holds records by learner, then by key.
	recordTable struct {
		sync.RWMutex
		table map[string]map[string]progress.Record
	}
)

func Open() *DB {
	return &DB{
		record: &recordTable{table: make(map[string]map[string]progress.Record)},
	}
}
