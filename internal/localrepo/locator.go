// Package localrepo implements httpgit.RepoLocator, httpgit.Authorizer
// and httpgit.CredentialChecker against a flat directory of bare
// repositories, the simplest on-disk layout the teacher's own
// repository/appengine collaborator stands in for in this codebase.
// Path layout and the not-found mapping are grounded on
// go-gitea-gitea's routers/web/repo/http.go (it also resolves owner/
// repo from the URL, then 404s on a missing repository before
// touching auth).
package localrepo

import (
	"os"
	"path/filepath"

	"github.com/anndream/gitgud/internal/agent"
	"github.com/anndream/gitgud/internal/agent/gitfs"
	"github.com/anndream/gitgud/internal/protocol"
	"github.com/anndream/gitgud/internal/transport/httpgit"
)

// Locator opens bare repositories under root/<owner>/<repo>.git.
type Locator struct {
	root string
}

// NewLocator returns a Locator rooted at root.
func NewLocator(root string) *Locator {
	return &Locator{root: root}
}

// Locate implements httpgit.RepoLocator. Every call opens a fresh
// gitfs.Agent, so no handle is shared between requests.
func (l *Locator) Locate(owner, repo string) (agent.Agent, error) {
	dir := filepath.Join(l.root, filepath.Join(owner, repo)+".git")

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, protocol.ErrRepoNotFound
	}

	a, err := gitfs.Open(dir)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// StaticCredentials checks logins against an in-memory login->password
// map, the simplest CredentialChecker a self-hosted instance needs
// before reaching for an external identity provider.
type StaticCredentials struct {
	Users map[string]string
}

// Check implements httpgit.CredentialChecker.
func (c StaticCredentials) Check(login, password string) (*httpgit.Principal, error) {
	want, ok := c.Users[login]
	if !ok || want != password {
		return nil, protocol.ErrUnauthenticated
	}
	return &httpgit.Principal{Login: login}, nil
}

// OpenAuthorizer grants read to anyone (including anonymous callers)
// when allowAnonymousRead is set, and write only to an authenticated
// principal. It does not consult any per-repository ACL; that is
// exactly the scope left for a real RepoLocator/Authorizer pairing to
// extend.
type OpenAuthorizer struct {
	AllowAnonymousRead bool
}

// Authorize implements httpgit.Authorizer.
func (a OpenAuthorizer) Authorize(principal *httpgit.Principal, owner, repo string, cap httpgit.Capability) (bool, error) {
	if cap == httpgit.CapabilityRead {
		return a.AllowAnonymousRead || principal != nil, nil
	}
	return principal != nil, nil
}
