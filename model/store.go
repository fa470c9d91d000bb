package model

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/hhdaadws/atxp2api/logger"
)

// accountRecord is the durable on-disk shape. The signup pipeline that
// produces these files writes a few historical layouts; the refresh token may
// live at the top level or inside a captured cookie map.
type accountRecord struct {
	Email        string            `json:"email"`
	RefreshToken string            `json:"refresh_token,omitempty"`
	CookieDict   map[string]string `json:"cookie_dict,omitempty"`
	KeyCookies   map[string]string `json:"key_cookies,omitempty"`
}

func (r *accountRecord) refreshToken() string {
	if r.RefreshToken != "" {
		return r.RefreshToken
	}
	if rt := r.CookieDict["refreshToken"]; rt != "" {
		return rt
	}
	return r.KeyCookies["refreshToken"]
}

// Store loads and rewrites the flat accounts file. All rewrites are
// serialized behind one mutex so concurrent rotations on different accounts
// cannot interleave destructively.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load parses the accounts file. Records without any refresh token are
// skipped with a warning. A single JSON object is accepted as a one-element
// list.
func (s *Store) Load() ([]*Account, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Wrap(err, "read accounts file")
	}

	var records []accountRecord
	if err = json.Unmarshal(data, &records); err != nil {
		var single accountRecord
		if err2 := json.Unmarshal(data, &single); err2 != nil {
			return nil, errors.Wrap(err, "parse accounts file")
		}
		records = []accountRecord{single}
	}

	accounts := make([]*Account, 0, len(records))
	for _, r := range records {
		rt := r.refreshToken()
		if rt == "" {
			logger.LogWarn(nil, "skipping account without refreshToken: %s", r.Email)
			continue
		}
		email := r.Email
		if email == "" {
			email = "?"
		}
		accounts = append(accounts, &Account{Email: email, RefreshToken: rt})
	}
	return accounts, nil
}

// Save rewrites the whole file with the current refresh tokens. Called on
// every observed rotation; a rotation lost to a crash would strand the
// account, so this must complete before the refresh call returns.
func (s *Store) Save(accounts []*Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]accountRecord, 0, len(accounts))
	for _, a := range accounts {
		records = append(records, accountRecord{Email: a.Email, RefreshToken: a.RefreshToken})
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal accounts")
	}
	if err = os.WriteFile(s.path, data, 0o600); err != nil {
		return errors.Wrap(err, "write accounts file")
	}
	return nil
}
