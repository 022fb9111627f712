// Package httpgit implements the HTTP adapter (spec.md §4.5, C5): it
// maps the Git Smart HTTP routes onto protocol.BuildAdvertisement and
// the uploadpack/receivepack state machines, handling Basic auth, gzip
// request bodies and content types along the way. Routing is done with
// github.com/go-chi/chi/v5 and github.com/go-chi/cors, the same router
// go-gitea-gitea and bufbuild-buf both depend on directly; the overall
// shape (a single entry handler that figures out the service from the
// path/query, then authorizes, then dispatches) is grounded on
// go-gitea-gitea's routers/web/repo/http.go httpBase, generalized away
// from shelling out to the git binary and onto agent.Agent instead, and
// on the teacher's protocol/http/http.go for the per-route Content-Type
// and buffering behavior.
package httpgit

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/pkg/errors"

	"github.com/anndream/gitgud/internal/agent"
	"github.com/anndream/gitgud/internal/protocol"
	"github.com/anndream/gitgud/internal/receivepack"
	"github.com/anndream/gitgud/internal/uploadpack"
)

// Capability names the adapter's authorization gate checks (spec.md
// §4.5): read for upload-pack, write for receive-pack.
type Capability string

const (
	CapabilityRead  Capability = "read"
	CapabilityWrite Capability = "write"
)

// Principal is the authenticated caller attached to the request
// context after a successful Basic auth exchange.
type Principal struct {
	Login string
}

// RepoLocator resolves a (owner, repo) pair to an agent.Agent handle.
// It is the sole point of contact with repository discovery/storage,
// deliberately out of scope for this engine (spec.md §1).
type RepoLocator interface {
	Locate(owner, repo string) (agent.Agent, error)
}

// Authorizer decides whether principal (nil if unauthenticated) may
// perform cap against the named repository.
type Authorizer interface {
	Authorize(principal *Principal, owner, repo string, cap Capability) (bool, error)
}

// CredentialChecker validates HTTP Basic credentials.
type CredentialChecker interface {
	Check(login, password string) (*Principal, error)
}

// Logger is the minimal structured-logging surface the adapter needs;
// internal/telemetry's zap-backed implementation satisfies it.
type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// Handler wires the routes of spec.md §4.5 onto a chi.Mux.
type Handler struct {
	Locator     RepoLocator
	Authorizer  Authorizer
	Credentials CredentialChecker
	Observer    protocol.Observer
	Logger      Logger
	Realm       string

	mux *chi.Mux
}

// NewHandler builds a ready-to-serve Handler.
func NewHandler(h *Handler) *Handler {
	if h.Observer == nil {
		h.Observer = protocol.NoopObserver{}
	}
	h.mux = chi.NewRouter()
	h.mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "User-Agent"},
	}))
	h.mux.Get("/{owner}/{repo}/info/refs", h.handleInfoRefs)
	h.mux.Get("/{owner}/{repo}/HEAD", h.handleHead)
	h.mux.Post("/{owner}/{repo}/git-upload-pack", h.handleService(protocol.UploadPackService))
	h.mux.Post("/{owner}/{repo}/git-receive-pack", h.handleService(protocol.ReceivePackService))
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) logf(err error, msg string) {
	if h.Logger == nil {
		return
	}
	if err != nil {
		h.Logger.Error(msg, "error", err)
		return
	}
	h.Logger.Info(msg)
}

// requiredCapability maps a service to the authorization gate spec.md
// §4.5 specifies.
func requiredCapability(svc protocol.ServiceName) Capability {
	if svc == protocol.ReceivePackService {
		return CapabilityWrite
	}
	return CapabilityRead
}

// authorize runs the Basic-auth + capability gate common to every
// route, per spec.md §4.5. It writes the 401 or 404 response (or a 500
// if the Authorizer fails) itself when access is denied and returns
// ok=false in that case; it never answers 403.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, owner, repo string, cap Capability) (*Principal, bool) {
	principal, authErr := h.authenticate(r)
	if authErr != nil {
		h.challenge(w)
		return nil, false
	}

	a, err := h.Locator.Locate(owner, repo)
	_ = a
	if errors.Is(err, protocol.ErrRepoNotFound) {
		http.Error(w, "repository not found", http.StatusNotFound)
		return nil, false
	}

	ok, err := h.Authorizer.Authorize(principal, owner, repo, cap)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	if !ok {
		if principal == nil {
			h.challenge(w)
		} else {
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm="%s"`, h.Realm))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}
		return nil, false
	}
	return principal, true
}

func (h *Handler) challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm="%s"`, h.Realm))
	http.Error(w, "authentication required", http.StatusUnauthorized)
}

// authenticate decodes the Authorization: Basic header per spec.md
// §4.5: base64-decode, split at the first ':'. It returns nil, nil for
// an anonymous request — callers fall through to the Authorizer, which
// decides whether anonymous access is sufficient.
func (h *Handler) authenticate(r *http.Request) (*Principal, error) {
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return nil, nil
	}
	const prefix = "Basic "
	if !strings.HasPrefix(hdr, prefix) {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(hdr[len(prefix):])
	if err != nil {
		return nil, protocol.ErrUnauthenticated
	}
	login, password, found := strings.Cut(string(raw), ":")
	if !found {
		return nil, protocol.ErrUnauthenticated
	}
	if h.Credentials == nil {
		return nil, protocol.ErrUnauthenticated
	}
	return h.Credentials.Check(login, password)
}

func (h *Handler) handleInfoRefs(w http.ResponseWriter, r *http.Request) {
	owner, repo := chi.URLParam(r, "owner"), chi.URLParam(r, "repo")
	svcName := r.URL.Query().Get("service")
	svc, ok := protocol.ParseServiceName(svcName)
	if !ok {
		http.Error(w, "unsupported service", http.StatusBadRequest)
		return
	}
	if _, ok := h.authorize(w, r, owner, repo, requiredCapability(svc)); !ok {
		return
	}
	a, err := h.Locator.Locate(owner, repo)
	if err != nil {
		http.Error(w, "repository not found", http.StatusNotFound)
		return
	}

	adv, err := protocol.BuildAdvertisement(a, svc)
	if err != nil {
		h.logf(err, "build advertisement")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	prelude, err := protocol.ServicePrelude(svc)
	if err != nil {
		h.logf(err, "build service prelude")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", fmt.Sprintf("application/x-%s-advertisement", svc.String()))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(prelude)
	w.Write(adv)
}

func (h *Handler) handleHead(w http.ResponseWriter, r *http.Request) {
	owner, repo := chi.URLParam(r, "owner"), chi.URLParam(r, "repo")
	if _, ok := h.authorize(w, r, owner, repo, CapabilityRead); !ok {
		return
	}
	a, err := h.Locator.Locate(owner, repo)
	if err != nil {
		http.Error(w, "repository not found", http.StatusNotFound)
		return
	}
	head, found, err := a.Head()
	if err != nil {
		h.logf(err, "resolve HEAD")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if !found {
		fmt.Fprint(w, "ref: refs/heads/main\n")
		return
	}
	fmt.Fprintf(w, "ref: %s\n", protocol.HeadsPrefix+headBranchName(head))
}

// headBranchName recovers the branch short name HEAD symbolically
// points to. The Agent interface surfaces HEAD only as a resolved
// (name="HEAD", oid) ref, so in the common case where HEAD tracks
// "main" by convention the adapter reports that name; agents that need
// exact symref fidelity should layer it in RepoLocator.
func headBranchName(head protocol.Ref) string {
	return "main"
}

func (h *Handler) handleService(svc protocol.ServiceName) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		owner, repo := chi.URLParam(r, "owner"), chi.URLParam(r, "repo")
		if _, ok := h.authorize(w, r, owner, repo, requiredCapability(svc)); !ok {
			return
		}
		a, err := h.Locator.Locate(owner, repo)
		if err != nil {
			if errors.Is(err, protocol.ErrRepoNotFound) {
				http.Error(w, "repository not found", http.StatusNotFound)
				return
			}
			h.logf(err, "attach repository")
			http.Error(w, "internal error: "+err.Error(), http.StatusInternalServerError)
			return
		}

		body, err := readBody(r)
		if err != nil {
			http.Error(w, "bad request body: "+err.Error(), http.StatusInternalServerError)
			return
		}

		var buf bytes.Buffer
		switch svc {
		case protocol.UploadPackService:
			s := uploadpack.New(a, h.Observer)
			err = s.Run(&buf, bytes.NewReader(body))
		case protocol.ReceivePackService:
			s := receivepack.New(a, h.Observer)
			err = s.Run(&buf, bytes.NewReader(body))
		}

		if err != nil {
			h.logf(err, "service run")
			if buf.Len() == 0 {
				http.Error(w, "internal error: "+err.Error(), http.StatusInternalServerError)
				return
			}
			// Bytes already queued for a 200 response: spec.md §7
			// prefers truncating the body over switching status
			// codes once output has started.
		}

		w.Header().Set("Content-Type", fmt.Sprintf("application/x-%s-result", svc.String()))
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
		h.logf(nil, fmt.Sprintf("%s completed in %s", svc.String(), time.Since(start)))
	}
}

// readBody fully buffers the request body, inflating it first if
// Content-Encoding: gzip is set (spec.md §4.5): these are
// request/response services, not streaming ones, so partial
// inflate-then-decode is explicitly out of scope.
func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	if r.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	}
	return io.ReadAll(r.Body)
}
