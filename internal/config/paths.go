package config

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// projectNamespace is the UUIDv5 namespace for deriving project ids
// from absolute root paths. Stable across processes so every client
// resolves the same project id for the same directory.
var projectNamespace = uuid.MustParse("f1b6c6a0-9f1e-4c8f-9a57-3d1e0c2b7a44")

// ProjectID derives the stable project id for an absolute root path.
func ProjectID(root string) uuid.UUID {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	return uuid.NewSHA1(projectNamespace, []byte(abs))
}

// DataDir returns the ccengram data root, honoring XDG_DATA_HOME.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "ccengram")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "ccengram")
	}
	return filepath.Join(home, ".local", "share", "ccengram")
}

// ProjectDataDir returns the per-project data directory.
func ProjectDataDir(projectID uuid.UUID) string {
	return filepath.Join(DataDir(), "projects", projectID.String())
}

// ProjectStoreDir returns the vector store directory for a project.
func ProjectStoreDir(projectID uuid.UUID) string {
	return filepath.Join(ProjectDataDir(projectID), "store")
}

// ProjectMetaPath returns the project.json metadata path.
func ProjectMetaPath(projectID uuid.UUID) string {
	return filepath.Join(ProjectDataDir(projectID), "project.json")
}

// WatcherLockPath returns the watcher lock file path for a project.
func WatcherLockPath(projectID uuid.UUID) string {
	return filepath.Join(DataDir(), "watchers", projectID.String()+".lock")
}

// SocketPath returns the daemon's unix socket path.
func SocketPath() string {
	return filepath.Join(DataDir(), "daemon.sock")
}
