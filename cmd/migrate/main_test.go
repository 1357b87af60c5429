package main

import (
	"bytes"
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"

	appmigrations "github.com/wolfman30/retirement-leads-platform/migrations"
)

type fakeMigrator struct {
	upErr   error
	steps   []int
	forced  int
	version uint
	dirty   bool
	verErr  error
}

func (f *fakeMigrator) Up() error         { return f.upErr }
func (f *fakeMigrator) Steps(n int) error { f.steps = append(f.steps, n); return nil }
func (f *fakeMigrator) Force(v int) error { f.forced = v; return nil }
func (f *fakeMigrator) Version() (uint, bool, error) {
	return f.version, f.dirty, f.verErr
}

func TestRunCommandUpIgnoresNoChange(t *testing.T) {
	var out bytes.Buffer
	if err := runCommand(&fakeMigrator{upErr: migrate.ErrNoChange}, nil, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "migrations complete") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRunCommandDownAndForce(t *testing.T) {
	m := &fakeMigrator{}
	var out bytes.Buffer
	if err := runCommand(m, []string{"down", "2"}, &out); err != nil {
		t.Fatalf("down: %v", err)
	}
	if len(m.steps) != 1 || m.steps[0] != -2 {
		t.Fatalf("expected Steps(-2), got %v", m.steps)
	}
	if err := runCommand(m, []string{"down", "zero"}, &out); err == nil {
		t.Fatalf("expected error for invalid step count")
	}
	if err := runCommand(m, []string{"force", "1"}, &out); err != nil || m.forced != 1 {
		t.Fatalf("force: err=%v forced=%d", err, m.forced)
	}
	if err := runCommand(m, []string{"force"}, &out); err == nil {
		t.Fatalf("expected error without version")
	}
	if err := runCommand(m, []string{"sideways"}, &out); err == nil {
		t.Fatalf("expected error for unknown command")
	}
}

func TestRunCommandVersion(t *testing.T) {
	var out bytes.Buffer
	if err := runCommand(&fakeMigrator{verErr: migrate.ErrNilVersion}, []string{"version"}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "no migrations applied") {
		t.Fatalf("unexpected output %q", out.String())
	}

	out.Reset()
	if err := runCommand(&fakeMigrator{version: 2}, []string{"version"}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "version 2 (dirty=false)") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(appmigrations.FS, "*.up.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(ups) < 2 {
		t.Fatalf("expected leads and relay_deliveries migrations, got %v", ups)
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(appmigrations.FS, down); err != nil {
			t.Errorf("missing down migration for %s", up)
		}
	}
}
