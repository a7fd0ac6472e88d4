package utils

import (
	"os"
	"path/filepath"
)

// Exists reports whether path exists and whether it is a directory.
func Exists(path string) (isDir bool, exists bool, err error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return info.IsDir(), true, nil
}

// ExecutableDir returns the directory holding the running binary.
func ExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

// ResolveFrom joins a relative path onto base. Absolute paths are returned cleaned.
func ResolveFrom(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}

// ResolveInstallPath resolves a relative path against the binary's directory,
// falling back to the working directory when the executable cannot be located.
func ResolveInstallPath(path string) string {
	dir, err := ExecutableDir()
	if err != nil {
		dir, _ = os.Getwd()
	}
	return ResolveFrom(dir, path)
}
