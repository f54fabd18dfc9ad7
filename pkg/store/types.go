package store

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ssargent/litetx/pkg/ltx"
	"github.com/ssargent/litetx/pkg/metrics"
)

// Config holds configuration for a Store
type Config struct {
	Dir        string // Directory holding the LTX files
	BufferSize int    // Write and read buffer size, 0 for the bufio default
	Fsync      bool   // Sync files and the directory on commit

	Metrics *metrics.Metrics   // Optional
	Logger  logrus.FieldLogger // Optional
}

// FileInfo describes a committed LTX file
type FileInfo struct {
	Name    string    `json:"name"`
	MinTXID ltx.TXID  `json:"minTXID"`
	MaxTXID ltx.TXID  `json:"maxTXID"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// Errors
var (
	ErrFileNotFound = &StoreError{"ltx file not found"}
	ErrFileExists   = &StoreError{"ltx file already exists"}
	ErrInvalidName  = &StoreError{"invalid ltx file name"}
	ErrClosed       = &StoreError{"file already committed or aborted"}
	ErrNameMismatch = &StoreError{"ltx header TXIDs do not match file name"}
)

// StoreError represents a store error
type StoreError struct {
	Message string
}

func (e *StoreError) Error() string {
	return e.Message
}
