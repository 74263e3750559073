package autostart

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"
)

const (
	unitName = "fieldsync.service"

	serviceTemplate = `[Unit]
Description=Fieldsync Offline Capture Daemon
After=network.target

[Service]
ExecStart={{.ExecPath}} {{.Arg}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`
)

var unitTmpl = template.Must(template.New("service").Parse(serviceTemplate))

type LinuxAutoStarter struct{}

func (l *LinuxAutoStarter) servicePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(home, ".config", "systemd", "user")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	return filepath.Join(dir, unitName), nil
}

func writeUnit(w io.Writer, execPath string) error {
	return unitTmpl.Execute(w, map[string]string{"ExecPath": execPath, "Arg": daemonArg})
}

func (l *LinuxAutoStarter) Install(execPath string) error {
	path, err := l.servicePath()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create service file: %w", err)
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	if err := writeUnit(f, execPath); err != nil {
		return fmt.Errorf("failed to write service file: %w", err)
	}

	cmds := [][]string{
		{"systemctl", "--user", "daemon-reload"},
		{"systemctl", "--user", "enable", unitName},
		{"systemctl", "--user", "start", unitName},
	}

	for _, args := range cmds {
		cmd := exec.Command(args[0], args[1:]...)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("failed to run %v: %w\n%s", args, err, out)
		}
	}

	return nil
}

func (l *LinuxAutoStarter) Uninstall() error {
	cmds := [][]string{
		{"systemctl", "--user", "stop", unitName},
		{"systemctl", "--user", "disable", unitName},
	}

	for _, args := range cmds {
		cmd := exec.Command(args[0], args[1:]...)
		_ = cmd.Run()
	}

	path, err := l.servicePath()
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

func (l *LinuxAutoStarter) IsInstalled() (bool, error) {
	path, err := l.servicePath()
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	return err == nil, nil
}
