package profile

import (
	"os"
	"path/filepath"
)

// DefaultBaseDir returns ~/.tchat.
func DefaultBaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tchat")
}

// ConfigPath returns the global config file path.
func ConfigPath(base string) string {
	return filepath.Join(base, "config.toml")
}

// StatePath returns the auth state file path (active identity + token).
func StatePath(base string) string {
	return filepath.Join(base, "state.toml")
}

// ProfilesDir returns the directory holding all per-identity partitions.
func ProfilesDir(base string) string {
	return filepath.Join(base, "profiles")
}

// Dir returns the partition directory for one identity.
func Dir(base, userID string) string {
	return filepath.Join(ProfilesDir(base), userID)
}

// CacheDBPath returns the message cache database path for an identity.
func CacheDBPath(base, userID string) string {
	return filepath.Join(Dir(base, userID), "cache.db")
}

// MessageBlobDir returns the message image blob directory for an identity.
func MessageBlobDir(base, userID string) string {
	return filepath.Join(Dir(base, userID), "blobs", "messages")
}

// AvatarBlobDir returns the profile-image blob directory for an identity.
func AvatarBlobDir(base, userID string) string {
	return filepath.Join(Dir(base, userID), "blobs", "avatars")
}

// LogDir returns the log directory for an identity.
func LogDir(base, userID string) string {
	return filepath.Join(Dir(base, userID), "logs")
}

// LogPath returns the daemon log file path for an identity.
func LogPath(base, userID string) string {
	return filepath.Join(LogDir(base, userID), "tchatd.log")
}

// LockPath returns the lock file path for an identity.
func LockPath(base, userID string) string {
	return filepath.Join(Dir(base, userID), "LOCK")
}

// EnsureDir creates the partition directory tree with proper permissions.
func EnsureDir(base, userID string) error {
	dirs := []string{
		Dir(base, userID),
		MessageBlobDir(base, userID),
		AvatarBlobDir(base, userID),
		LogDir(base, userID),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}

// List returns the identity ids that have a partition directory on disk.
func List(base string) ([]string, error) {
	entries, err := os.ReadDir(ProfilesDir(base))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}
