package daemon

import "fmt"

// UnitFile renders a systemd service unit that keeps the watch daemon
// running over the given directories. ProtectSystem=strict mounts the
// whole tree read-only, so every daemon directory must appear in
// ReadWritePaths. Paths should be absolute and free of spaces.
func UnitFile(exe string, dirs DirConfig) string {
	return fmt.Sprintf(`[Unit]
Description=ormcost trail watcher
After=local-fs.target

[Service]
Type=simple
ExecStart=%s watch --inbox %s --outbox %s --state %s
Restart=on-failure
RestartSec=2
NoNewPrivileges=true
PrivateTmp=true
ProtectSystem=strict
ReadWritePaths=%s %s %s

[Install]
WantedBy=multi-user.target
`, exe, dirs.Inbox, dirs.Outbox, dirs.State, dirs.Inbox, dirs.Outbox, dirs.State)
}
