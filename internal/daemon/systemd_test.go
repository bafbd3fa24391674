package daemon

import (
	"strings"
	"testing"
)

func TestUnitFile(t *testing.T) {
	dirs := DirConfig{
		Inbox:  "/var/lib/ormcost/inbox",
		Outbox: "/var/lib/ormcost/outbox",
		State:  "/var/lib/ormcost/state",
	}
	unit := UnitFile("/usr/local/bin/ormcost", dirs)

	wantLines := []string{
		"ExecStart=/usr/local/bin/ormcost watch --inbox /var/lib/ormcost/inbox --outbox /var/lib/ormcost/outbox --state /var/lib/ormcost/state",
		"ReadWritePaths=/var/lib/ormcost/inbox /var/lib/ormcost/outbox /var/lib/ormcost/state",
		"Restart=on-failure",
		"WantedBy=multi-user.target",
	}
	for _, line := range wantLines {
		if !strings.Contains(unit, line) {
			t.Errorf("unit file missing %q:\n%s", line, unit)
		}
	}
}
