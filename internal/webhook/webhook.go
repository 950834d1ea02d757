package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/schaermu/gamerules/internal/activation"
	"github.com/schaermu/gamerules/internal/config"
	"github.com/schaermu/gamerules/internal/git"
	gamesync "github.com/schaermu/gamerules/internal/sync"
)

const maxPayloadBytes = 1 << 20

// GitHubPushEvent holds the fields of a GitHub push payload the server reads
type GitHubPushEvent struct {
	Ref        string      `json:"ref"`
	After      string      `json:"after"`
	Repository Repository  `json:"repository"`
	HeadCommit *HeadCommit `json:"head_commit"`
}

// Repository identifies the pushed repository
type Repository struct {
	FullName string `json:"full_name"`
}

// HeadCommit is the newest commit of a push
type HeadCommit struct {
	ID     string       `json:"id"`
	Author CommitAuthor `json:"author"`
}

// CommitAuthor is the git author of a commit
type CommitAuthor struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Pusher sends the edits of the checked out commit to the service
type Pusher interface {
	Push(ctx context.Context) (*gamesync.PushResult, error)
}

// Server receives GitHub push webhooks for the rules repository and runs a
// push for every accepted commit
type Server struct {
	cfg      *config.Config
	git      git.Client
	pusher   Pusher
	logger   *slog.Logger
	secret   []byte
	debounce *debouncer

	mu      sync.Mutex
	running bool   // a push is in progress
	pending bool   // another push was requested while running
	next    string // commit the queued push checks out
}

// NewServer reads the webhook secret and returns a server ready to Start
func NewServer(cfg *config.Config, gitClient git.Client, pusher Pusher, logger *slog.Logger) (*Server, error) {
	secret, err := os.ReadFile(cfg.Serve.GitHubWebhookSecretFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook secret: %w", err)
	}

	return &Server{
		cfg:      cfg,
		git:      gitClient,
		pusher:   pusher,
		logger:   logger,
		secret:   []byte(strings.TrimSpace(string(secret))),
		debounce: &debouncer{delay: 2 * time.Second},
	}, nil
}

// Start refreshes the checkout and serves webhooks until ctx is cancelled.
// The commit already checked out is not pushed again.
func (s *Server) Start(ctx context.Context) error {
	if head, err := s.git.EnsureCheckout(ctx, s.cfg.Git.RemoteURL, s.cfg.Git.Ref, s.cfg.Paths.RepoDir); err != nil {
		s.logger.Error("initial checkout failed", "error", err)
	} else {
		s.logger.Info("checkout ready", "commit", head, "dest", s.cfg.Paths.RepoDir)
	}

	ln, inherited, err := activation.Listen(s.cfg.Serve.ListenAddr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebhook)
	server := &http.Server{
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("webhook server listening", "addr", ln.Addr().String(), "socket_activated", inherited)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down webhook server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// rejection is a request the server answers without scheduling a push
type rejection struct {
	status int
	reason string
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	event, rej := s.accept(r)
	if rej != nil {
		if rej.status == http.StatusOK {
			w.WriteHeader(http.StatusOK)
			_, _ = fmt.Fprintln(w, rej.reason)
			return
		}
		http.Error(w, rej.reason, rej.status)
		return
	}

	s.logger.Info("webhook accepted",
		"ref", event.Ref,
		"commit", event.After,
		"repo", event.Repository.FullName)

	commit := event.After
	s.debounce.trigger(func() {
		s.performPush(context.Background(), commit)
	})

	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintln(w, "Push triggered")
}

// accept validates a delivery and decodes its payload. Deliveries that are
// authentic but not meant to trigger a push are rejected with status 200 so
// GitHub does not report them as failures.
func (s *Server) accept(r *http.Request) (*GitHubPushEvent, *rejection) {
	if r.Method != http.MethodPost {
		s.logger.Warn("rejecting request", "reason", "method", "method", r.Method)
		return nil, &rejection{http.StatusMethodNotAllowed, "Method not allowed"}
	}
	if ct := r.Header.Get("Content-Type"); ct != "application/json" {
		s.logger.Warn("rejecting request", "reason", "content type", "content_type", ct)
		return nil, &rejection{http.StatusBadRequest, "Invalid content type"}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	_ = r.Body.Close()
	if err != nil {
		s.logger.Error("failed to read request body", "error", err)
		return nil, &rejection{http.StatusInternalServerError, "Failed to read body"}
	}

	if !s.verifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
		s.logger.Warn("rejecting request", "reason", "signature")
		return nil, &rejection{http.StatusForbidden, "Invalid signature"}
	}

	eventType := r.Header.Get("X-GitHub-Event")
	if !allowed(s.cfg.Serve.AllowedEventTypes, eventType) {
		s.logger.Info("ignoring event type", "event", eventType)
		return nil, &rejection{http.StatusOK, "Event type not configured for push"}
	}

	var event GitHubPushEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.logger.Error("failed to parse webhook payload", "error", err)
		return nil, &rejection{http.StatusBadRequest, "Invalid payload"}
	}

	if !allowed(s.cfg.Serve.AllowedRefs, event.Ref) {
		s.logger.Info("ignoring ref", "ref", event.Ref)
		return nil, &rejection{http.StatusOK, "Ref not configured for push"}
	}

	// Pull commits would otherwise be sent straight back to the service.
	if s.isBotCommit(event.HeadCommit) {
		s.logger.Info("ignoring commit by bot identity", "commit", event.After)
		return nil, &rejection{http.StatusOK, "Commit by bot ignored"}
	}

	return &event, nil
}

// verifySignature checks an X-Hub-Signature-256 header of the form
// sha256=<hex hmac of body>
func (s *Server) verifySignature(body []byte, header string) bool {
	hexSig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	sig, err := hex.DecodeString(hexSig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return hmac.Equal(sig, mac.Sum(nil))
}

// allowed reports whether v is in list; an empty list allows everything
func allowed(list []string, v string) bool {
	return len(list) == 0 || slices.Contains(list, v)
}

func (s *Server) isBotCommit(c *HeadCommit) bool {
	if c == nil {
		return false
	}
	if s.cfg.Git.AuthorEmail != "" && c.Author.Email == s.cfg.Git.AuthorEmail {
		return true
	}
	return s.cfg.Git.AuthorName != "" && c.Author.Name == s.cfg.Git.AuthorName
}

// performPush pushes the edits of commit. It runs at most one push at a
// time. A request arriving while a push runs queues exactly one more run;
// further requests fold into it and the newest commit wins.
func (s *Server) performPush(ctx context.Context, commit string) {
	if !s.begin(commit) {
		s.logger.Info("push already in progress, queued one more run", "commit", commit)
		return
	}
	for {
		s.runOnce(ctx, commit)
		var ok bool
		if commit, ok = s.again(); !ok {
			return
		}
		s.logger.Info("running queued push", "commit", commit)
	}
}

func (s *Server) begin(commit string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.pending = true
		s.next = commit
		return false
	}
	s.running = true
	return true
}

func (s *Server) again() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending {
		s.pending = false
		return s.next, true
	}
	s.running = false
	return "", false
}

// runOnce checks out commit and pushes it. The branch tip may already be a
// later pull commit, so it is only used when the event carried no commit.
func (s *Server) runOnce(ctx context.Context, commit string) {
	ref := commit
	if ref == "" {
		ref = s.cfg.Git.Ref
	}
	head, err := s.git.EnsureCheckout(ctx, s.cfg.Git.RemoteURL, ref, s.cfg.Paths.RepoDir)
	if err != nil {
		s.logger.Error("checkout failed", "error", err)
		return
	}

	res, err := s.pusher.Push(ctx)
	if err != nil {
		s.logger.Error("push failed", "commit", head, "error", err)
		return
	}
	s.logger.Info("push completed", "commit", head, "updates", res.Updates)
}

// debouncer runs the most recently triggered callback once no trigger has
// arrived for delay
type debouncer struct {
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
	fn    func()
}

func (d *debouncer) trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.fn = fn
	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, d.fire)
		return
	}
	d.timer.Reset(d.delay)
}

func (d *debouncer) fire() {
	d.mu.Lock()
	fn := d.fn
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}
