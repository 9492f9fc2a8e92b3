package config

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the state directory.
const HomeEnv = "OUTREACH_HOME"

// Paths is where outreach keeps its state on disk.
type Paths struct {
	Base   string
	Config string
	Data   string
	DB     string
	Logs   string
}

// ResolvePaths lays out Paths under $OUTREACH_HOME, or ~/.outreach.
func ResolvePaths() (Paths, error) {
	base := os.Getenv(HomeEnv)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, ".outreach")
	}
	return PathsUnder(base), nil
}

// PathsUnder lays out Paths below base.
func PathsUnder(base string) Paths {
	p := Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Data:   filepath.Join(base, "data"),
		Logs:   filepath.Join(base, "logs"),
	}
	p.DB = filepath.Join(p.Data, "outreach.db")
	return p
}

// EnsureDirs creates the state directories, owner-only.
func (p Paths) EnsureDirs() error {
	for _, dir := range []string{p.Base, p.Data, p.Logs} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return nil
}
