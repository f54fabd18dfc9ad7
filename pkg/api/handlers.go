package api

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/ssargent/litetx/pkg/logger"
	"github.com/ssargent/litetx/pkg/ltx"
	"github.com/ssargent/litetx/pkg/metrics"
	"github.com/ssargent/litetx/pkg/store"
)

// Server holds the API server state
type Server struct {
	store     FileStore
	config    ServerConfig
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	log       logrus.FieldLogger
	startTime time.Time
}

// NewServer creates a new API server. gatherer backs the /metrics endpoint;
// a nil gatherer serves the default registry.
func NewServer(fs FileStore, config ServerConfig, m *metrics.Metrics, gatherer prometheus.Gatherer, log logrus.FieldLogger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		store:     fs,
		config:    config,
		metrics:   m,
		gatherer:  gatherer,
		log:       log,
		startTime: time.Now(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, map[string]string{
		"status": "healthy",
		"uptime": time.Since(s.startTime).Truncate(time.Second).String(),
	})
}

// handleListFiles returns the stored files ordered by TXID range. The
// optional "after" query parameter keeps only files whose max TXID is
// greater than the given TXID.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	var after ltx.TXID
	if v := r.URL.Query().Get("after"); v != "" {
		id, err := ltx.ParseTXID(v)
		if err != nil {
			sendError(w, "Invalid after parameter: "+err.Error(), http.StatusBadRequest)
			return
		}
		after = id
	}

	files, err := s.store.Files()
	if err != nil {
		s.log.WithError(err).Error("list ltx files")
		sendError(w, "Failed to list files", http.StatusInternalServerError)
		return
	}

	result := make([]store.FileInfo, 0, len(files))
	for _, fi := range files {
		if !after.IsZero() && fi.MaxTXID.Compare(after) <= 0 {
			continue
		}
		result = append(result, fi)
	}

	sendSuccess(w, map[string]interface{}{
		"files": result,
		"count": len(result),
	})
}

// handleGetFile streams the raw bytes of a stored file. Range requests are
// supported so an interrupted transfer can resume. A file whose header does
// not match its name is refused with 422.
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	path, err := s.store.Path(name)
	if err != nil {
		sendError(w, "Invalid file name", http.StatusBadRequest)
		return
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		sendError(w, "File not found", http.StatusNotFound)
		return
	} else if err != nil {
		s.log.WithError(err).WithField("file", name).Error("open ltx file")
		sendError(w, "Failed to open file", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		sendError(w, "Failed to stat file", http.StatusInternalServerError)
		return
	}

	buf := make([]byte, ltx.HeaderSize)
	var hdr ltx.Header
	if _, err := f.ReadAt(buf, 0); err != nil {
		sendError(w, "Invalid LTX header", http.StatusUnprocessableEntity)
		return
	} else if err := hdr.UnmarshalBinary(buf); err != nil {
		sendError(w, "Invalid LTX header: "+err.Error(), http.StatusUnprocessableEntity)
		return
	} else if err := store.CheckName(name, hdr); err != nil {
		sendError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-LTX-Min-TXID", hdr.MinTXID.String())
	w.Header().Set("X-LTX-Max-TXID", hdr.MaxTXID.String())
	w.Header().Set("X-LTX-Size", strconv.FormatInt(fi.Size(), 10))
	http.ServeContent(w, r, name, fi.ModTime(), f)
}

// handleVerifyFile decodes a stored file end to end and reports its header
// and trailer. A file that fails verification is reported with 422.
func (s *Server) handleVerifyFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	hdr, trailer, err := s.store.Verify(name)
	switch {
	case errors.Is(err, store.ErrInvalidName):
		sendError(w, "Invalid file name", http.StatusBadRequest)
		return
	case errors.Is(err, store.ErrFileNotFound):
		sendError(w, "File not found", http.StatusNotFound)
		return
	case err != nil:
		sendJSON(w, http.StatusUnprocessableEntity, APIResponse{
			Success: false,
			Data:    VerifyResponse{Name: name, Valid: false, Error: err.Error()},
			Error:   "File failed verification",
		})
		return
	}

	info := NewHeaderInfo(hdr)
	sendSuccess(w, VerifyResponse{
		Name:              name,
		Valid:             true,
		Header:            &info,
		PostApplyChecksum: trailer.PostApplyChecksum,
		FileChecksum:      trailer.FileChecksum,
	})
}
