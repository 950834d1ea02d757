package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Client provides the git operations of a pull or push run
type Client interface {
	// EnsureCheckout clones or updates a repository to the specified ref
	EnsureCheckout(ctx context.Context, url, ref, destDir string) (string, error)
	// HasChanges reports whether the work tree differs from HEAD
	HasChanges(ctx context.Context) (bool, error)
	// ModifiedFiles lists the paths modified by the last commit
	ModifiedFiles(ctx context.Context) ([]string, error)
	// CommitAndPush stages everything, commits and pushes to origin
	CommitAndPush(ctx context.Context, message string) error
}

// Identity is the author recorded on commits
type Identity struct {
	Name  string
	Email string
}

// ShellClient implements Client by shelling out to the git command
type ShellClient struct {
	repoDir        string
	author         Identity
	sshKeyFile     string
	httpsTokenFile string
}

// NewShellClient creates a new git client working on repoDir
func NewShellClient(repoDir string, author Identity, sshKeyFile, httpsTokenFile string) *ShellClient {
	return &ShellClient{
		repoDir:        repoDir,
		author:         author,
		sshKeyFile:     sshKeyFile,
		httpsTokenFile: httpsTokenFile,
	}
}

// EnsureCheckout clones or fetches and checks out the specified ref
func (c *ShellClient) EnsureCheckout(ctx context.Context, url, ref, destDir string) (string, error) {
	gitDir := filepath.Join(destDir, ".git")
	exists := false
	if _, err := os.Stat(gitDir); err == nil {
		exists = true
	}

	var cmd *exec.Cmd
	if !exists {
		if err := os.MkdirAll(filepath.Dir(destDir), 0755); err != nil {
			return "", fmt.Errorf("failed to create parent directory: %w", err)
		}

		cmd = exec.CommandContext(ctx, "git", "clone", "--no-checkout", url, destDir)
		if err := c.configureAuth(cmd, url); err != nil {
			return "", err
		}

		if err := c.runCommand(cmd); err != nil {
			return "", fmt.Errorf("git clone failed: %w", err)
		}
	} else {
		cmd = exec.CommandContext(ctx, "git", "-C", destDir, "fetch", "origin")
		if err := c.configureAuth(cmd, url); err != nil {
			return "", err
		}

		if err := c.runCommand(cmd); err != nil {
			return "", fmt.Errorf("git fetch failed: %w", err)
		}
	}

	// Branches are checked out as local branches so a later push has an
	// upstream; tags and hashes end up detached.
	cmd = exec.CommandContext(ctx, "git", "-C", destDir, "checkout", "-f", ref)
	if err := c.runCommand(cmd); err != nil {
		remoteRef := "origin/" + ref
		cmd = exec.CommandContext(ctx, "git", "-C", destDir, "checkout", "-f", remoteRef)
		if err := c.runCommand(cmd); err != nil {
			return "", fmt.Errorf("git checkout failed for ref %q (tried both direct and remote): %w", ref, err)
		}
	}

	// A local branch is stale after fetch; ignored for tags and hashes.
	if exists {
		resetCmd := exec.CommandContext(ctx, "git", "-C", destDir, "reset", "--hard", "origin/"+ref)
		_ = c.runCommand(resetCmd)
	}

	cmd = exec.CommandContext(ctx, "git", "-C", destDir, "rev-parse", "HEAD")
	output, err := c.output(cmd)
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}

	return strings.TrimSpace(string(output)), nil
}

// HasChanges runs git status and reports whether anything is staged,
// modified or untracked
func (c *ShellClient) HasChanges(ctx context.Context) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", c.repoDir, "status", "--porcelain")
	output, err := c.output(cmd)
	if err != nil {
		return false, fmt.Errorf("git status failed: %w", err)
	}
	return len(bytes.TrimSpace(output)) > 0, nil
}

// ModifiedFiles returns the repo-relative paths HEAD modified relative to
// its parent. Added, deleted and renamed files are left out. A root commit
// has no parent and yields no paths.
func (c *ShellClient) ModifiedFiles(ctx context.Context) ([]string, error) {
	verify := exec.CommandContext(ctx, "git", "-C", c.repoDir, "rev-parse", "--verify", "--quiet", "HEAD~1")
	if err := verify.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, nil
		}
		return nil, fmt.Errorf("git rev-parse failed: %w", err)
	}

	cmd := exec.CommandContext(ctx, "git", "-C", c.repoDir, "diff", "--name-status", "--no-renames", "-z", "HEAD~1", "HEAD")
	output, err := c.output(cmd)
	if err != nil {
		return nil, fmt.Errorf("git diff failed: %w", err)
	}
	return parseNameStatus(output), nil
}

// parseNameStatus parses NUL separated "git diff --name-status -z" output
// and keeps the paths with status M
func parseNameStatus(output []byte) []string {
	fields := strings.Split(strings.TrimSuffix(string(output), "\x00"), "\x00")

	var paths []string
	for i := 0; i < len(fields); {
		status := fields[i]
		i++
		if status == "" {
			continue
		}
		n := 1
		// renames and copies carry source and destination
		if status[0] == 'R' || status[0] == 'C' {
			n = 2
		}
		if i+n > len(fields) {
			break
		}
		if status == "M" {
			paths = append(paths, fields[i])
		}
		i += n
	}
	return paths
}

// CommitAndPush sets the bot identity, stages the whole work tree, commits
// with message and pushes the current branch to origin
func (c *ShellClient) CommitAndPush(ctx context.Context, message string) error {
	steps := [][]string{
		{"config", "user.name", c.author.Name},
		{"config", "user.email", c.author.Email},
		{"add", "-A"},
		{"commit", "-m", message},
	}
	for _, args := range steps {
		cmd := exec.CommandContext(ctx, "git", append([]string{"-C", c.repoDir}, args...)...)
		if err := c.runCommand(cmd); err != nil {
			return fmt.Errorf("git %s failed: %w", args[0], err)
		}
	}

	remote, err := c.output(exec.CommandContext(ctx, "git", "-C", c.repoDir, "remote", "get-url", "origin"))
	if err != nil {
		return fmt.Errorf("failed to read origin url: %w", err)
	}

	cmd := exec.CommandContext(ctx, "git", "-C", c.repoDir, "push", "origin", "HEAD")
	if err := c.configureAuth(cmd, strings.TrimSpace(string(remote))); err != nil {
		return err
	}
	if err := c.runCommand(cmd); err != nil {
		return fmt.Errorf("git push failed: %w", err)
	}
	return nil
}

// configureAuth sets up authentication for git operations
func (c *ShellClient) configureAuth(cmd *exec.Cmd, url string) error {
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}

	if c.sshKeyFile != "" && (strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://")) {
		// The path is shell-quoted to prevent injection via crafted filenames.
		sshCmd := fmt.Sprintf("ssh -i %s -o StrictHostKeyChecking=accept-new -F /dev/null", shellQuote(c.sshKeyFile))
		cmd.Env = append(cmd.Env, "GIT_SSH_COMMAND="+sshCmd)
		return nil
	}

	if c.httpsTokenFile != "" && strings.HasPrefix(url, "https://") {
		token, err := os.ReadFile(c.httpsTokenFile)
		if err != nil {
			return fmt.Errorf("failed to read HTTPS token file: %w", err)
		}

		// The token reaches git through the environment, never through
		// the helper expression itself.
		cmd.Env = append(cmd.Env, "GIT_TERMINAL_PROMPT=0")
		cmd.Env = append(cmd.Env, "GAMERULES_GIT_TOKEN="+strings.TrimSpace(string(token)))
		cmd.Args = insertGitFlags(cmd.Args,
			"-c", `credential.helper=!f() { echo "username=x-access-token"; echo "password=$GAMERULES_GIT_TOKEN"; }; f`,
		)
	}

	return nil
}

// insertGitFlags inserts flags immediately after the "git" command name,
// before the subcommand (e.g. "clone", "push").
func insertGitFlags(args []string, flags ...string) []string {
	if len(args) == 0 {
		return flags
	}
	result := make([]string, 0, len(args)+len(flags))
	result = append(result, args[0])
	result = append(result, flags...)
	result = append(result, args[1:]...)
	return result
}

// shellQuote wraps s in single quotes, escaping any embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// runCommand executes a command and returns an error with stderr on failure
func (c *ShellClient) runCommand(cmd *exec.Cmd) error {
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

// output executes a command and returns its stdout, with stderr in the
// error on failure
func (c *ShellClient) output(cmd *exec.Cmd) ([]byte, error) {
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %s", err, string(exitErr.Stderr))
		}
		return nil, err
	}
	return out, nil
}
