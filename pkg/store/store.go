package store

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ssargent/litetx/pkg/logger"
	"github.com/ssargent/litetx/pkg/ltx"
	"github.com/ssargent/litetx/pkg/metrics"
)

const tempPattern = ".ltx-*.tmp"

// Store is a directory of LTX files named by their TXID range.
//
// Files are written to a temporary name and renamed into place on commit,
// so a reader never sees a partial file under an LTX name.
type Store struct {
	config  Config
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	mu sync.Mutex // serializes commits
}

// New opens the store directory, creating it if needed. Temporary files left
// behind by an interrupted writer are removed.
func New(config Config) (*Store, error) {
	if config.Dir == "" {
		return nil, errors.New("store directory required")
	}
	if err := os.MkdirAll(config.Dir, 0750); err != nil {
		return nil, errors.Wrap(err, "create store directory")
	}

	log := config.Logger
	if log == nil {
		log = logger.Discard()
	}
	log = log.WithField("dir", config.Dir)

	stale, err := filepath.Glob(filepath.Join(config.Dir, tempPattern))
	if err != nil {
		return nil, errors.Wrap(err, "find temporary files")
	}
	for _, path := range stale {
		log.WithField("file", filepath.Base(path)).Warn("removing incomplete ltx file")
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "remove temporary file")
		}
	}

	return &Store{
		config:  config,
		log:     log,
		metrics: config.Metrics,
	}, nil
}

// Dir returns the store directory
func (s *Store) Dir() string {
	return s.config.Dir
}

// Path returns the full path of a file in the store. Only canonical LTX
// names are accepted.
func (s *Store) Path(name string) (string, error) {
	min, max, err := ltx.ParseFilename(name)
	if err != nil || ltx.FormatFilename(min, max) != name {
		return "", ErrInvalidName
	}
	return filepath.Join(s.config.Dir, name), nil
}

// Create starts a new file for hdr. The file becomes visible only after
// FileWriter.Commit succeeds.
func (s *Store) Create(hdr ltx.Header) (*FileWriter, error) {
	w, err := s.createTemp()
	if err != nil {
		return nil, err
	}

	enc, err := ltx.NewEncoder(w.writer, hdr)
	if err != nil {
		_ = w.Abort()
		return nil, err
	}
	w.enc = enc
	return w, nil
}

// WriteFile creates a file by handing a raw writer to fn, which must write a
// complete LTX file and return its header. The file is renamed after the
// header's TXID range once fn returns.
func (s *Store) WriteFile(fn func(w io.Writer) (ltx.Header, error)) (FileInfo, error) {
	w, err := s.createTemp()
	if err != nil {
		return FileInfo{}, err
	}

	hdr, err := fn(w.writer)
	if err != nil {
		_ = w.Abort()
		return FileInfo{}, err
	}
	return w.finish(hdr)
}

func (s *Store) createTemp() (*FileWriter, error) {
	f, err := os.CreateTemp(s.config.Dir, tempPattern)
	if err != nil {
		return nil, errors.Wrap(err, "create temporary file")
	}
	return &FileWriter{
		store:  s,
		file:   f,
		writer: s.newBufferedWriter(f),
		start:  time.Now(),
	}, nil
}

func (s *Store) newBufferedWriter(w io.Writer) *bufio.Writer {
	if s.config.BufferSize > 0 {
		return bufio.NewWriterSize(w, s.config.BufferSize)
	}
	return bufio.NewWriter(w)
}

// commit moves a finished temporary file to its final name.
func (s *Store) commit(tmp string, hdr ltx.Header) (FileInfo, error) {
	name := ltx.FormatFilename(hdr.MinTXID, hdr.MaxTXID)
	path := filepath.Join(s.config.Dir, name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(path); err == nil {
		return FileInfo{}, errors.Wrap(ErrFileExists, name)
	} else if !os.IsNotExist(err) {
		return FileInfo{}, errors.Wrap(err, "stat ltx file")
	}

	if err := os.Rename(tmp, path); err != nil {
		return FileInfo{}, errors.Wrap(err, "rename ltx file")
	}
	if s.config.Fsync {
		if err := syncDir(s.config.Dir); err != nil {
			return FileInfo{}, err
		}
	}

	fi, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, errors.Wrap(err, "stat ltx file")
	}
	return FileInfo{
		Name:    name,
		MinTXID: hdr.MinTXID,
		MaxTXID: hdr.MaxTXID,
		Size:    fi.Size(),
		ModTime: fi.ModTime().UTC(),
	}, nil
}

// Open opens the file covering exactly min..max for reading.
func (s *Store) Open(min, max ltx.TXID) (*FileReader, error) {
	return s.OpenFile(ltx.FormatFilename(min, max))
}

// OpenFile opens a file by name for reading. The header is read and
// validated before OpenFile returns.
func (s *Store) OpenFile(name string) (*FileReader, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(ErrFileNotFound, name)
	} else if err != nil {
		return nil, errors.Wrap(err, "open ltx file")
	}

	r := &FileReader{
		name:    name,
		file:    f,
		metrics: s.metrics,
		start:   time.Now(),
	}
	if s.config.BufferSize > 0 {
		r.dec, err = ltx.NewDecoder(bufio.NewReaderSize(f, s.config.BufferSize))
	} else {
		r.dec, err = ltx.NewDecoder(bufio.NewReader(f))
	}
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "open %s", name)
	}
	return r, nil
}

// Files lists committed files ordered by TXID range. Names that are not
// LTX file names are ignored.
func (s *Store) Files() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.config.Dir)
	if err != nil {
		return nil, errors.Wrap(err, "read store directory")
	}

	var infos []FileInfo
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		min, max, err := ltx.ParseFilename(entry.Name())
		if err != nil {
			continue
		}

		fi, err := entry.Info()
		if os.IsNotExist(err) {
			continue // removed since ReadDir
		} else if err != nil {
			return nil, errors.Wrap(err, "stat ltx file")
		}

		infos = append(infos, FileInfo{
			Name:    entry.Name(),
			MinTXID: min,
			MaxTXID: max,
			Size:    fi.Size(),
			ModTime: fi.ModTime().UTC(),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		if c := infos[i].MinTXID.Compare(infos[j].MinTXID); c != 0 {
			return c < 0
		}
		return infos[i].MaxTXID.Compare(infos[j].MaxTXID) < 0
	})
	return infos, nil
}

// Verify reads a whole file and checks its checksum. The header's TXID range
// must also match the range in the file name.
func (s *Store) Verify(name string) (ltx.Header, ltx.Trailer, error) {
	log := s.log.WithField("file", name)

	r, err := s.OpenFile(name)
	if err != nil {
		return ltx.Header{}, ltx.Trailer{}, err
	}
	defer r.Close()

	trailer, err := r.Finish()
	if err == nil {
		err = CheckName(name, r.Header())
	}
	if err != nil {
		log.WithError(err).Warn("ltx file failed verification")
		return ltx.Header{}, ltx.Trailer{}, err
	}

	log.WithField("postApplyChecksum", trailer.PostApplyChecksum.String()).Debug("ltx file verified")
	return r.Header(), trailer, nil
}

// CheckName returns ErrNameMismatch when hdr does not cover the TXID range
// encoded in name.
func CheckName(name string, hdr ltx.Header) error {
	min, max, err := ltx.ParseFilename(name)
	if err != nil {
		return errors.Wrap(ErrInvalidName, name)
	}
	if min != hdr.MinTXID || max != hdr.MaxTXID {
		return errors.Wrapf(ErrNameMismatch, "%s: header %s-%s", name, hdr.MinTXID, hdr.MaxTXID)
	}
	return nil
}

// Remove deletes a committed file.
func (s *Store) Remove(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); os.IsNotExist(err) {
		return errors.Wrap(ErrFileNotFound, name)
	} else if err != nil {
		return errors.Wrap(err, "remove ltx file")
	}
	s.log.WithField("file", name).Info("ltx file removed")
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return errors.Wrap(err, "open store directory")
	}
	defer d.Close()
	return errors.Wrap(d.Sync(), "sync store directory")
}
