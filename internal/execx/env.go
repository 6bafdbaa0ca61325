package execx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Scope provides the environment a step runs in. Enter acquires it and the
// returned release func must be called once the step has exited.
type Scope interface {
	Name() string
	Enter(ctx context.Context) (env []string, release func(), err error)
}

// InheritScope runs steps with the parent environment unchanged.
type InheritScope struct{}

func (InheritScope) Name() string { return "inherit" }

func (InheritScope) Enter(context.Context) ([]string, func(), error) {
	return nil, func() {}, nil
}

// VirtualEnv activates a Python virtual environment the same way
// `source venv/bin/activate` does: VIRTUAL_ENV is set, <dir>/bin is put in
// front of PATH and PYTHONHOME is dropped.
type VirtualEnv struct {
	Dir string

	// base is the environment to derive from; os.Environ() when nil.
	base []string
}

// NewVirtualEnv creates a scope for the venv at dir
func NewVirtualEnv(dir string) *VirtualEnv {
	return &VirtualEnv{Dir: dir}
}

func (v *VirtualEnv) Name() string { return "venv:" + v.Dir }

// Enter validates the venv and returns the activated environment.
func (v *VirtualEnv) Enter(ctx context.Context) ([]string, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	abs, err := filepath.Abs(v.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve venv dir %s: %w", v.Dir, err)
	}
	binDir := filepath.Join(abs, "bin")
	if _, err := os.Stat(filepath.Join(binDir, "activate")); err != nil {
		return nil, nil, fmt.Errorf("virtual environment not found at %s: %w", v.Dir, err)
	}

	base := v.base
	if base == nil {
		base = os.Environ()
	}

	env := make([]string, 0, len(base)+2)
	path := ""
	for _, kv := range base {
		key, val, _ := strings.Cut(kv, "=")
		switch key {
		case "PATH":
			path = val
			continue
		case "VIRTUAL_ENV", "PYTHONHOME":
			continue
		}
		env = append(env, kv)
	}

	if path == "" {
		path = binDir
	} else {
		path = binDir + string(os.PathListSeparator) + path
	}
	env = append(env, "VIRTUAL_ENV="+abs, "PATH="+path)

	return env, func() {}, nil
}

// envValue returns the last value of key in env
func envValue(env []string, key string) string {
	val := ""
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if ok && k == key {
			val = v
		}
	}
	return val
}

// lookPathIn resolves program against an explicit PATH value. exec.Command
// only consults the parent's PATH, which would bypass an activated venv.
func lookPathIn(program, path string) string {
	if program == "" || strings.ContainsRune(program, filepath.Separator) || path == "" {
		return program
	}
	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, program)
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Mode()&0111 != 0 {
			return candidate
		}
	}
	return program
}
