package toolreg

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/Mindburn-Labs/warden/pkg/canonicalize"
	"github.com/Mindburn-Labs/warden/pkg/faults"
	"github.com/Mindburn-Labs/warden/pkg/privilege"
	"github.com/Mindburn-Labs/warden/pkg/store"
)

// Manifest is the tool's self-description, read from manifest.json.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Aliases     []string        `json:"aliases,omitempty"`
	Examples    []string        `json:"examples,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Directory names excluded from hashing and verification.
var hashIgnoreDirs = map[string]bool{
	"__pycache__":   true,
	".pytest_cache": true,
	".sandbox_home": true,
}

// Installer copies a verified tool tree into the installed root through a
// staging directory, hashing every file on the way.
type Installer struct {
	registry      *Registry
	journal       *store.LineLog
	stagingRoot   string
	installedRoot string
}

// NewInstaller creates an installer writing under toolsDir (.staging,
// installed, install.journal.jsonl).
func NewInstaller(registry *Registry, toolsDir string) *Installer {
	return &Installer{
		registry:      registry,
		journal:       store.NewLineLog(filepath.Join(toolsDir, "install.journal.jsonl")),
		stagingRoot:   filepath.Join(toolsDir, ".staging"),
		installedRoot: filepath.Join(toolsDir, "installed"),
	}
}

// HashTree hashes every regular file under root, keyed by slash-separated
// relative path, skipping cache and sandbox directories.
func HashTree(root string) (map[string]string, error) {
	hashes := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if hashIgnoreDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		digest, err := canonicalize.HashFile(path)
		if err != nil {
			return err
		}
		hashes[filepath.ToSlash(rel)] = digest
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("toolreg: hash tree: %w", err)
	}
	return hashes, nil
}

// Install stages, hashes, moves, and registers the tool at srcDir. It
// demands the tool.install capability at ACTIVE privilege and a semver
// version.
func (i *Installer) Install(srcDir, name, version string, pctx *privilege.Context, jobID string) (Entry, error) {
	if err := pctx.RequireCapability(privilege.CapToolInstall); err != nil {
		return Entry{}, err
	}
	if err := pctx.Require(privilege.Active); err != nil {
		return Entry{}, err
	}
	if _, err := semver.NewVersion(version); err != nil {
		return Entry{}, faults.Verify("invalid tool version %q: %v", version, err)
	}

	staging := filepath.Join(i.stagingRoot, jobID, name, version)
	final := filepath.Join(i.installedRoot, name, version)

	if err := os.RemoveAll(staging); err != nil {
		return Entry{}, fmt.Errorf("toolreg: clear staging: %w", err)
	}
	if err := copyTree(srcDir, staging); err != nil {
		return Entry{}, err
	}

	var manifest Manifest
	manifestPath := filepath.Join(staging, "manifest.json")
	if data, err := os.ReadFile(manifestPath); err == nil {
		if err := json.Unmarshal(data, &manifest); err != nil {
			return Entry{}, faults.Verify("invalid manifest.json: %v", err)
		}
	}

	hashes, err := HashTree(staging)
	if err != nil {
		return Entry{}, err
	}

	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return Entry{}, fmt.Errorf("toolreg: prepare install dir: %w", err)
	}
	if err := os.RemoveAll(final); err != nil {
		return Entry{}, fmt.Errorf("toolreg: clear install dir: %w", err)
	}
	if err := os.Rename(staging, final); err != nil {
		return Entry{}, fmt.Errorf("toolreg: move into place: %w", err)
	}

	entry := Entry{
		Name:        name,
		Version:     version,
		Path:        final,
		Hashes:      hashes,
		Enabled:     true,
		Aliases:     manifest.Aliases,
		Examples:    manifest.Examples,
		Tags:        manifest.Tags,
		InputSchema: manifest.InputSchema,
	}
	if err := i.registry.Register(entry); err != nil {
		return Entry{}, err
	}
	if err := i.journal.Append(map[string]any{
		"ts":      time.Now().UTC(),
		"event":   "tool.install",
		"name":    name,
		"version": version,
		"path":    final,
		"job_id":  jobID,
	}); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// copyTree copies a directory tree, preserving relative layout. Entries in
// the hash-ignore set are skipped.
func copyTree(src, dst string) error {
	entries, err := sortedTree(src)
	if err != nil {
		return err
	}
	for _, rel := range entries {
		from := filepath.Join(src, rel)
		to := filepath.Join(dst, rel)
		if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
			return fmt.Errorf("toolreg: mkdir: %w", err)
		}
		if err := copyFile(from, to); err != nil {
			return err
		}
	}
	return nil
}

func sortedTree(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if hashIgnoreDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("toolreg: walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("toolreg: open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("toolreg: create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("toolreg: copy %s: %w", dst, err)
	}
	return out.Close()
}
