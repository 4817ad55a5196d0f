// Package workspace maps conversations onto isolated filesystem directories.
//
// Every (app, chat) pair gets its own working directory under the sessions
// root, so agent runs for different conversations never share files or
// session history. The chat identifier is hashed so arbitrary platform IDs
// become safe, fixed-length path components.
package workspace

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"

	apperrors "github.com/agentsocial/agentsocial/internal/common/errors"
	"github.com/agentsocial/agentsocial/internal/common/logger"
	"go.uber.org/zap"
)

// Resolver computes and prepares per-conversation workspace directories.
type Resolver struct {
	root   string
	logger *logger.Logger
}

// NewResolver creates a Resolver rooted at the given sessions directory.
func NewResolver(root string, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.Default()
	}
	return &Resolver{
		root:   root,
		logger: log.WithFields(zap.String("component", "workspace")),
	}
}

// Root returns the sessions root directory.
func (r *Resolver) Root() string {
	return r.root
}

// Path returns the workspace directory for a conversation without creating it.
// The layout is <root>/<appID>/<md5(chatID)>.
func (r *Resolver) Path(appID, chatID string) string {
	sum := md5.Sum([]byte(chatID))
	return filepath.Join(r.root, appID, hex.EncodeToString(sum[:]))
}

// Resolve returns the workspace directory for a conversation, creating it
// if needed. Resolve is idempotent; an existing directory is returned as-is.
func (r *Resolver) Resolve(appID, chatID string) (string, error) {
	dir := r.Path(appID, chatID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperrors.WorkspaceError(dir, err)
	}
	r.logger.Debug("workspace resolved",
		zap.String("app_id", appID),
		zap.String("chat_id", chatID),
		zap.String("dir", dir))
	return dir, nil
}
