package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// FileProvider reads exported cookie sets from disk, one JSON file per host
// under a credentials directory. It stands in for the interactive-login
// credential store, which is outside this core; Invalidate drops the cached
// copy so a refreshed export is picked up on the next pass.
type FileProvider struct {
	dir   string
	mu    sync.Mutex
	cache map[int64]*Credentials
}

// NewFileProvider creates a provider rooted at dir.
func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{
		dir:   dir,
		cache: make(map[int64]*Credentials),
	}
}

type cookieFile struct {
	Account string `json:"account"`
	Cookies []struct {
		Name    string  `json:"name"`
		Value   string  `json:"value"`
		Domain  string  `json:"domain"`
		Path    string  `json:"path"`
		Expires float64 `json:"expires"`
	} `json:"cookies"`
}

// Credentials loads (or returns cached) credentials for a host.
func (p *FileProvider) Credentials(_ context.Context, hostID int64) (*Credentials, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if creds, ok := p.cache[hostID]; ok {
		return creds, nil
	}

	path := filepath.Join(p.dir, fmt.Sprintf("host_%d.json", hostID))
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials for host %d: %w", hostID, err)
	}

	var cf cookieFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse credentials for host %d: %w", hostID, err)
	}

	creds := &Credentials{Account: cf.Account}
	for _, c := range cf.Cookies {
		cookie := &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		}
		if c.Expires > 0 {
			cookie.Expires = time.Unix(int64(c.Expires), 0)
		}
		creds.Cookies = append(creds.Cookies, cookie)
	}

	p.cache[hostID] = creds
	log.Debug().Int64("host_id", hostID).Str("account", cf.Account).
		Int("cookies", len(creds.Cookies)).Msg("credentials loaded")
	return creds, nil
}

// Invalidate drops the cached credentials for a host.
func (p *FileProvider) Invalidate(hostID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cache, hostID)
	log.Info().Int64("host_id", hostID).Msg("session credentials invalidated")
}
