package api

import (
	"time"

	"github.com/ssargent/litetx/pkg/ltx"
	"github.com/ssargent/litetx/pkg/store"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Bind        string
	Port        int
	APIKey      string   // empty disables authentication
	CORSOrigins []string // empty disables CORS handling
}

// FileStore is the subset of the LTX store served over HTTP.
type FileStore interface {
	Path(name string) (string, error)
	Files() ([]store.FileInfo, error)
	Verify(name string) (ltx.Header, ltx.Trailer, error)
}

// HeaderInfo is the JSON form of an LTX header.
type HeaderInfo struct {
	Flags            uint32       `json:"flags"`
	Compressed       bool         `json:"compressed"`
	Snapshot         bool         `json:"snapshot"`
	PageSize         uint32       `json:"page_size"`
	Commit           uint32       `json:"commit"`
	MinTXID          ltx.TXID     `json:"min_txid"`
	MaxTXID          ltx.TXID     `json:"max_txid"`
	Timestamp        time.Time    `json:"timestamp"`
	PreApplyChecksum ltx.Checksum `json:"pre_apply_checksum"`
}

// NewHeaderInfo converts hdr for a JSON response.
func NewHeaderInfo(hdr ltx.Header) HeaderInfo {
	return HeaderInfo{
		Flags:            uint32(hdr.Flags),
		Compressed:       hdr.Flags.Compressed(),
		Snapshot:         hdr.IsSnapshot(),
		PageSize:         hdr.PageSize.Uint32(),
		Commit:           hdr.Commit.Uint32(),
		MinTXID:          hdr.MinTXID,
		MaxTXID:          hdr.MaxTXID,
		Timestamp:        hdr.Timestamp,
		PreApplyChecksum: hdr.PreApplyChecksum,
	}
}

// VerifyResponse reports the result of checking a stored file.
type VerifyResponse struct {
	Name              string       `json:"name"`
	Valid             bool         `json:"valid"`
	Header            *HeaderInfo  `json:"header,omitempty"`
	PostApplyChecksum ltx.Checksum `json:"post_apply_checksum"`
	FileChecksum      ltx.Checksum `json:"file_checksum"`
	Error             string       `json:"error,omitempty"`
}
