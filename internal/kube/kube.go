// Package kube provides a thin kubectl wrapper used by the ConfigMap ledger backend.
package kube

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Client wraps kubectl execution with optional kubeconfig and context selection.
type Client struct {
	Kubeconfig string
	Context    string
	// Binary is the kubectl executable; defaults to "kubectl".
	Binary string
}

// NewClient constructs a new Kubernetes client wrapper.
func NewClient(kubeconfig, context string) *Client {
	return &Client{
		Kubeconfig: kubeconfig,
		Context:    context,
		Binary:     "kubectl",
	}
}

// RunAndCapture runs kubectl and returns its stdout. Stderr is included in the returned error.
func (c *Client) RunAndCapture(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := c.command(ctx, stdin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("kubectl %v failed: %w", args, err)
		}
		return nil, fmt.Errorf("kubectl %v failed: %s: %w", args, msg, err)
	}
	return stdout.Bytes(), nil
}

// IsNotFound reports whether a kubectl error describes a missing resource.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "notfound") || strings.Contains(msg, "not found")
}

// IsAlreadyExists reports whether a kubectl error describes a resource that already exists.
func IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "alreadyexists") || strings.Contains(msg, "already exists")
}

func (c *Client) command(ctx context.Context, stdin []byte, args ...string) *exec.Cmd {
	cmdArgs := make([]string, 0, len(args)+2)
	if c.Context != "" {
		cmdArgs = append(cmdArgs, "--context", c.Context)
	}
	cmdArgs = append(cmdArgs, args...)

	bin := c.Binary
	if bin == "" {
		bin = "kubectl"
	}
	cmd := exec.CommandContext(ctx, bin, cmdArgs...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	if c.Kubeconfig != "" {
		cmd.Env = append(os.Environ(), "KUBECONFIG="+c.Kubeconfig)
	}
	return cmd
}
