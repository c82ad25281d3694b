package auth

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bgentry/go-netrc/netrc"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

// EnvAuthFile names a credentials file that replaces the default locations.
const EnvAuthFile = "RATTLER_AUTH_FILE"

// Backend is a source of credentials keyed by host.
type Backend interface {
	Get(host string) (Authentication, bool)
}

// Storage looks credentials up in an ordered list of backends. The first
// backend that knows a host wins. Storage is read-only after construction
// and safe for concurrent use.
type Storage struct {
	backends []Backend
}

func NewStorage(backends ...Backend) *Storage {
	return &Storage{backends: backends}
}

// FromEnvAndDefaults builds the storage used for downloads. When override
// or $RATTLER_AUTH_FILE names a file, only that file is consulted.
// Otherwise ~/.rattler/credentials.json is read first, then the netrc file
// ($NETRC or ~/.netrc). Missing files are treated as empty; malformed ones
// are errors.
func FromEnvAndDefaults(override string) (*Storage, error) {
	if override == "" {
		override = os.Getenv(EnvAuthFile)
	}

	if override != "" {
		fb, err := LoadFile(override)
		if err != nil {
			return nil, err
		}

		return NewStorage(fb), nil
	}

	home, err := homedir.Dir()
	if err != nil {
		return nil, errors.Wrapf(err, "unable to locate home directory")
	}

	fb, err := LoadFile(filepath.Join(home, ".rattler", "credentials.json"))
	if err != nil {
		return nil, err
	}

	netrcPath := os.Getenv("NETRC")
	if netrcPath == "" {
		netrcPath = filepath.Join(home, ".netrc")
	}

	nb, err := LoadNetrc(netrcPath)
	if err != nil {
		return nil, err
	}

	return NewStorage(fb, nb), nil
}

// Get returns the credentials for host. A host with no entry of its own
// falls back to wildcard entries of its parent domains, nearest first, so
// "repo.prefix.dev" matches "*.prefix.dev" and then "*.dev".
func (s *Storage) Get(host string) (Authentication, bool) {
	if s == nil {
		return nil, false
	}

	for _, key := range candidates(host) {
		for _, b := range s.backends {
			if a, ok := b.Get(key); ok {
				return a, true
			}
		}
	}

	return nil, false
}

// GetURL looks up credentials for u. Object storage URLs are keyed by
// scheme and bucket (s3://bucket), everything else by host.
func (s *Storage) GetURL(u *url.URL) (Authentication, bool) {
	switch u.Scheme {
	case "s3", "gcs":
		return s.Get(u.Scheme + "://" + u.Host)
	default:
		return s.Get(u.Host)
	}
}

func candidates(host string) []string {
	out := []string{host}

	if strings.Contains(host, "://") {
		return out
	}

	rest := host
	for {
		idx := strings.IndexByte(rest, '.')
		if idx == -1 {
			break
		}

		rest = rest[idx+1:]
		out = append(out, "*."+rest)
	}

	return out
}

// MemoryBackend holds credentials in a map.
type MemoryBackend map[string]Authentication

func (m MemoryBackend) Get(host string) (Authentication, bool) {
	a, ok := m[host]
	return a, ok
}

// FileBackend holds the contents of a rattler credentials file.
type FileBackend struct {
	Path    string
	entries map[string]Authentication
}

// LoadFile reads a JSON credentials file mapping hosts to authentication
// entries.
func LoadFile(path string) (*FileBackend, error) {
	fb := &FileBackend{
		Path:    path,
		entries: map[string]Authentication{},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fb, nil
		}

		return nil, errors.Wrapf(err, "reading credentials file %s", path)
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return fb, nil
	}

	var raw map[string]json.RawMessage

	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "parsing credentials file %s", path)
	}

	for host, msg := range raw {
		a, err := decodeEntry(host, msg)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing credentials file %s", path)
		}

		fb.entries[host] = a
	}

	return fb, nil
}

func (f *FileBackend) Get(host string) (Authentication, bool) {
	a, ok := f.entries[host]
	return a, ok
}

// NetrcBackend serves login/password pairs from a netrc file as basic auth.
type NetrcBackend struct {
	Path string
	rc   *netrc.Netrc
}

// LoadNetrc parses the netrc file at path.
func LoadNetrc(path string) (*NetrcBackend, error) {
	nb := &NetrcBackend{Path: path}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nb, nil
		}

		return nil, errors.Wrapf(err, "reading netrc file %s", path)
	}

	rc, err := netrc.ParseFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing netrc file %s", path)
	}

	nb.rc = rc

	return nb, nil
}

func (n *NetrcBackend) Get(host string) (Authentication, bool) {
	if n.rc == nil || strings.HasPrefix(host, "*.") {
		return nil, false
	}

	m := n.rc.FindMachine(host)
	if m == nil || m.IsDefault() {
		return nil, false
	}

	return BasicHTTP{Username: m.Login, Password: m.Password}, true
}
