package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/magiconair/properties"
	"github.com/spf13/afero"
)

const (
	activeTokenFile   = "active-token.properties"
	passiveTokensFile = "passive-tokens.properties"

	keyToken   = "jws"
	keyCreated = "created.time"
	keyExpires = "expires.time"
	keyCount   = "count"

	// legacyLayout is the second-resolution layout older stores were written with.
	legacyLayout = "2006-01-02 15:04:05"
)

// FileStore persists tokens as two key=value files in a directory:
//
//	active-token.properties    jws, created.time, expires.time
//	passive-tokens.properties  count, token.N.jws, token.N.created.time, ...
//
// Files are replaced atomically (write temp, rename). Timestamps are RFC 3339
// with nanoseconds in UTC.
type FileStore struct {
	fs  afero.Fs
	dir string
	log *slog.Logger
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(fs afero.Fs, dir string, log *slog.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: persistence path is empty", ErrConfig)
	}
	if log == nil {
		log = slog.Default()
	}
	if ok, _ := afero.DirExists(fs, dir); !ok {
		if err := fs.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("%w: create %s: %w", ErrStore, dir, err)
		}
	}
	return &FileStore{fs: fs, dir: dir, log: log}, nil
}

func (s *FileStore) activePath() string  { return filepath.Join(s.dir, activeTokenFile) }
func (s *FileStore) passivePath() string { return filepath.Join(s.dir, passiveTokensFile) }

// Save writes both records. Each is attempted even if the other fails.
func (s *FileStore) Save(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var errs []error
	if err := s.saveActive(snap.Active); err != nil {
		errs = append(errs, fmt.Errorf("%w: active: %w", ErrStore, err))
	}
	if err := s.savePassive(snap.Passive); err != nil {
		errs = append(errs, fmt.Errorf("%w: passive: %w", ErrStore, err))
	}
	return errors.Join(errs...)
}

func (s *FileStore) saveActive(active *Info) error {
	if active == nil {
		return s.removeIfExists(s.activePath())
	}
	p := newProps()
	setRecord(p, "", *active)
	return s.writeProps(s.activePath(), "Active JWS token", p)
}

func (s *FileStore) savePassive(passive []Info) error {
	if len(passive) == 0 {
		return s.removeIfExists(s.passivePath())
	}
	p := newProps()
	_, _, _ = p.Set(keyCount, strconv.Itoa(len(passive)))
	for i, info := range passive {
		setRecord(p, passivePrefix(i), info)
	}
	return s.writeProps(s.passivePath(), "Passive JWS tokens", p)
}

func (s *FileStore) writeProps(path, title string, p *properties.Properties) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n", title)
	if _, err := p.Write(&buf, properties.UTF8); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, buf.Bytes(), 0o600); err != nil {
		return err
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	return nil
}

func (s *FileStore) removeIfExists(path string) error {
	err := s.fs.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Load reads both records. A missing file is an absent record; an unreadable
// or malformed one is dropped with a warning.
func (s *FileStore) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot

	if p, ok := s.readProps(s.activePath(), "active"); ok {
		info, err := getRecord(p, "")
		if err != nil {
			s.drop("active", err)
		} else {
			snap.Active = &info
		}
	}

	if p, ok := s.readProps(s.passivePath(), "passive"); ok {
		snap.Passive = s.loadPassive(p)
	}

	return snap, nil
}

func (s *FileStore) loadPassive(p *properties.Properties) []Info {
	raw, ok := p.Get(keyCount)
	if !ok {
		s.drop("passive", fmt.Errorf("missing %q", keyCount))
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		s.drop("passive", fmt.Errorf("bad %q: %q", keyCount, raw))
		return nil
	}

	present := passiveIndices(p)
	last := -1
	if len(present) > 0 {
		last = present[len(present)-1]
	}
	limit := n
	if n > last+1 {
		s.drop("passive", fmt.Errorf("%q=%d but the last record index is %d", keyCount, n, last))
		limit = last + 1
	}

	var out []Info
	for i := 0; i < limit; i++ {
		info, err := getRecord(p, passivePrefix(i))
		if err != nil {
			s.drop("passive."+strconv.Itoa(i), err)
			continue
		}
		out = append(out, info)
	}
	for _, i := range present {
		if i >= n {
			s.drop("passive."+strconv.Itoa(i), fmt.Errorf("index beyond %q=%d", keyCount, n))
		}
	}
	return out
}

// passiveIndices returns the sorted record indices that have at least one key.
func passiveIndices(p *properties.Properties) []int {
	seen := make(map[int]struct{})
	for _, k := range p.Keys() {
		rest, ok := strings.CutPrefix(k, "token.")
		if !ok {
			continue
		}
		idx, _, ok := strings.Cut(rest, ".")
		if !ok {
			continue
		}
		i, err := strconv.Atoi(idx)
		if err != nil || i < 0 {
			continue
		}
		seen[i] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

func (s *FileStore) readProps(path, record string) (*properties.Properties, bool) {
	b, err := afero.ReadFile(s.fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false
	}
	if err != nil {
		s.log.Warn("lifecycle.store.read.fail", "record", record, "path", path, "err", err)
		return nil, false
	}
	l := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := l.LoadBytes(b)
	if err != nil {
		s.drop(record, err)
		return nil, false
	}
	return p, true
}

func (s *FileStore) drop(record string, cause error) {
	s.log.Warn("lifecycle.store.record.drop",
		"record", record,
		"err", fmt.Errorf("%w: %w", ErrCorruptRecord, cause),
	)
}

// Clear removes both files.
func (s *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Join(
		s.removeIfExists(s.activePath()),
		s.removeIfExists(s.passivePath()),
	)
}

// HasPersistedData reports whether either record file exists.
func (s *FileStore) HasPersistedData() bool {
	a, _ := afero.Exists(s.fs, s.activePath())
	p, _ := afero.Exists(s.fs, s.passivePath())
	return a || p
}

func newProps() *properties.Properties {
	p := properties.NewProperties()
	p.DisableExpansion = true
	return p
}

func passivePrefix(i int) string { return "token." + strconv.Itoa(i) + "." }

func setRecord(p *properties.Properties, prefix string, info Info) {
	_, _, _ = p.Set(prefix+keyToken, info.Token())
	_, _, _ = p.Set(prefix+keyCreated, info.CreatedAt().Format(time.RFC3339Nano))
	_, _, _ = p.Set(prefix+keyExpires, info.ExpiresAt().Format(time.RFC3339Nano))
}

func getRecord(p *properties.Properties, prefix string) (Info, error) {
	tok, ok := p.Get(prefix + keyToken)
	if !ok {
		return Info{}, fmt.Errorf("missing %q", prefix+keyToken)
	}
	created, err := getTime(p, prefix+keyCreated)
	if err != nil {
		return Info{}, err
	}
	expires, err := getTime(p, prefix+keyExpires)
	if err != nil {
		return Info{}, err
	}
	return NewInfo(tok, created, expires)
}

func getTime(p *properties.Properties, key string) (time.Time, error) {
	raw, ok := p.Get(key)
	if !ok {
		return time.Time{}, fmt.Errorf("missing %q", key)
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(legacyLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad %q: %q", key, raw)
	}
	return t, nil
}
