// Package auth guards the service with HTTP basic auth backed by a users
// file.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/afero"
	"k8s.io/apimachinery/pkg/util/yaml"
)

var ErrNoUsers = errors.New("auth file is empty")

type User struct {
	User string `json:"user"`
	Pass string `json:"pass"`
}

type AuthStore struct {
	users map[string]string
}

func NewAuthStore(list []User) (*AuthStore, error) {
	users := make(map[string]string, len(list))
	for _, u := range list {
		if u.User == "" {
			continue
		}
		users[u.User] = u.Pass
	}

	if len(users) == 0 {
		return nil, ErrNoUsers
	}

	return &AuthStore{users: users}, nil
}

func (s *AuthStore) Verify(user, pass string) bool {
	expected, exists := s.users[user]
	return exists && subtle.ConstantTimeCompare([]byte(pass), []byte(expected)) == 1
}

// LoadFromFile reads a JSON or YAML list of users.
func LoadFromFile(fs afero.Fs, path string) (*AuthStore, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read auth file: %w", err)
	}
	defer f.Close()

	var list []User
	if err := yaml.NewYAMLOrJSONDecoder(f, 4096).Decode(&list); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse auth file: %w", err)
	}

	return NewAuthStore(list)
}

// BasicAuth rejects requests whose basic auth credentials are unknown to
// the store.
func (s *AuthStore) BasicAuth(realm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			user, pass, ok := req.BasicAuth()
			if !ok || !s.Verify(user, pass) {
				rw.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", realm))
				http.Error(rw, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(rw, req)
		})
	}
}
