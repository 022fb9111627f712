package httpgit

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anndream/gitgud/internal/agent"
	"github.com/anndream/gitgud/internal/agent/memagent"
	"github.com/anndream/gitgud/internal/pktline"
	"github.com/anndream/gitgud/internal/protocol"
)

type fakeLocator struct {
	agents map[string]agent.Agent
}

func (f fakeLocator) Locate(owner, repo string) (agent.Agent, error) {
	a, ok := f.agents[owner+"/"+repo]
	if !ok {
		return nil, protocol.ErrRepoNotFound
	}
	return a, nil
}

type allowAllAuthorizer struct{}

func (allowAllAuthorizer) Authorize(principal *Principal, owner, repo string, cap Capability) (bool, error) {
	return true, nil
}

type staticChecker struct{ login, password string }

func (s staticChecker) Check(login, password string) (*Principal, error) {
	if login == s.login && password == s.password {
		return &Principal{Login: login}, nil
	}
	return nil, protocol.ErrUnauthenticated
}

func newTestHandler(agents map[string]agent.Agent) *Handler {
	return NewHandler(&Handler{
		Locator:    fakeLocator{agents: agents},
		Authorizer: allowAllAuthorizer{},
		Realm:      "test",
	})
}

func TestInfoRefsUnknownService(t *testing.T) {
	h := newTestHandler(map[string]agent.Agent{"a/b": memagent.New()})
	req := httptest.NewRequest(http.MethodGet, "/a/b/info/refs?service=git-frobnicate", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInfoRefsRepoNotFound(t *testing.T) {
	h := newTestHandler(map[string]agent.Agent{})
	req := httptest.NewRequest(http.MethodGet, "/a/b/info/refs?service=git-upload-pack", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInfoRefsAdvertisesHead(t *testing.T) {
	a := memagent.New()
	id, err := protocol.ParseOID(strings.Repeat("a", 40))
	require.NoError(t, err)
	a.SetRef("refs/heads/main", id)
	a.SetHead("refs/heads/main")

	h := newTestHandler(map[string]agent.Agent{"a/b": a})
	req := httptest.NewRequest(http.MethodGet, "/a/b/info/refs?service=git-upload-pack", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-git-upload-pack-advertisement", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "# service=git-upload-pack")
	assert.Contains(t, rec.Body.String(), id.String())
}

func TestHeadRoute(t *testing.T) {
	a := memagent.New()
	h := newTestHandler(map[string]agent.Agent{"a/b": a})
	req := httptest.NewRequest(http.MethodGet, "/a/b/HEAD", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ref: refs/heads/main\n", rec.Body.String())
}

func TestUploadPackRouteRunsService(t *testing.T) {
	a := memagent.New()
	want, err := protocol.ParseOID(strings.Repeat("b", 40))
	require.NoError(t, err)
	a.AddObject(want)

	h := newTestHandler(map[string]agent.Agent{"a/b": a})

	var body strings.Builder
	line, _ := pktline.EncodeString("want " + want.String() + " multi_ack")
	body.Write(line)
	body.Write(pktline.Flush())
	doneLine, _ := pktline.EncodeString("done")
	body.Write(doneLine)

	req := httptest.NewRequest(http.MethodPost, "/a/b/git-upload-pack", strings.NewReader(body.String()))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-git-upload-pack-result", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "NAK")
}

func TestAuthenticateDecodesBasicHeader(t *testing.T) {
	h := &Handler{Credentials: staticChecker{login: "alice", password: "secret"}}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("alice:secret")))

	principal, err := h.authenticate(req)
	require.NoError(t, err)
	require.NotNil(t, principal)
	assert.Equal(t, "alice", principal.Login)
}

func TestAuthenticateRejectsBadPassword(t *testing.T) {
	h := &Handler{Credentials: staticChecker{login: "alice", password: "secret"}}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("alice:wrong")))

	_, err := h.authenticate(req)
	assert.Error(t, err)
}

func TestAuthenticateAnonymousWhenNoHeader(t *testing.T) {
	h := &Handler{}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	principal, err := h.authenticate(req)
	assert.NoError(t, err)
	assert.Nil(t, principal)
}
