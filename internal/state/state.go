package state

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/alexjbarnes/fedi-client/internal/models"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.fedi-client/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	// Tokens are stored in the clear, so the file must stay owner-only.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second

	// keySep separates client id and username in access token keys.
	// NUL cannot appear in either component.
	keySep = "\x00"
)

var (
	applicationsBucket  = []byte("applications")
	requestTokensBucket = []byte("request_tokens")
	accessTokensBucket  = []byte("access_tokens")
)

func accessTokenKey(clientID, username string) []byte {
	return []byte(clientID + keySep + username)
}

// State wraps a bbolt database holding registered applications and the
// tokens issued to them. Reads return nil on a clean miss.
type State struct {
	db *bolt.DB
}

// Load opens the state database at ~/.fedi-client/state.db, creating it
// if it does not exist.
func Load() (*State, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}

	return LoadAt(path)
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist. Useful for tests that need an isolated database.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{applicationsBucket, requestTokensBucket, accessTokensBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// GetApplication returns the application registered on hostname, or nil.
func (s *State) GetApplication(hostname string) (*models.Application, error) {
	var app *models.Application

	err := s.get(applicationsBucket, []byte(hostname), func(v []byte) error {
		app = &models.Application{}
		return json.Unmarshal(v, app)
	})

	return app, err
}

// SaveApplication persists the application registered on hostname.
func (s *State) SaveApplication(hostname string, app models.Application) error {
	return s.put(applicationsBucket, []byte(hostname), app)
}

// GetRequestToken returns the application-level token for clientID, or nil.
func (s *State) GetRequestToken(clientID string) (*models.Token, error) {
	return s.getToken(requestTokensBucket, []byte(clientID))
}

// SaveRequestToken persists the application-level token for clientID.
func (s *State) SaveRequestToken(clientID string, tok models.Token) error {
	return s.put(requestTokensBucket, []byte(clientID), tok)
}

// GetAccessToken returns the user token for (clientID, username), or nil.
func (s *State) GetAccessToken(clientID, username string) (*models.Token, error) {
	return s.getToken(accessTokensBucket, accessTokenKey(clientID, username))
}

// SaveAccessToken persists the user token for (clientID, username).
func (s *State) SaveAccessToken(clientID, username string, tok models.Token) error {
	return s.put(accessTokensBucket, accessTokenKey(clientID, username), tok)
}

// DeleteAccessToken removes the user token for (clientID, username).
// Deleting a missing entry is not an error.
func (s *State) DeleteAccessToken(clientID, username string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(accessTokensBucket).Delete(accessTokenKey(clientID, username))
	})
}

// AccessTokenUsers returns the usernames holding a cached token for
// clientID, sorted.
func (s *State) AccessTokenUsers(clientID string) ([]string, error) {
	var users []string

	prefix := []byte(clientID + keySep)

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(accessTokensBucket).Cursor()
		for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
			users = append(users, string(k[len(prefix):]))
		}

		return nil
	})

	sort.Strings(users)

	return users, err
}

func (s *State) getToken(bucket, key []byte) (*models.Token, error) {
	var tok *models.Token

	err := s.get(bucket, key, func(v []byte) error {
		tok = &models.Token{}
		return json.Unmarshal(v, tok)
	})

	return tok, err
}

// get calls decode with the stored value, or does nothing on a miss.
func (s *State) get(bucket, key []byte, decode func([]byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get(key)
		if v == nil {
			return nil
		}

		return decode(v)
	})
}

func (s *State) put(bucket, key []byte, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, data)
	})
}

// DefaultPath returns ~/.fedi-client/state.db.
func DefaultPath() (string, error) {
	dir, err := os.UserHomeDir()
	if err != nil {
		// Refuse to fall back to the working directory, where a database
		// holding tokens could land inside a source tree.
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(dir, ".fedi-client", "state.db"), nil
}
