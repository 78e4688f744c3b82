package scanner

import "testing"

func TestParseSystemdUnits(t *testing.T) {
	output := `nginx.service     loaded active running A high performance web server
mysql.service     loaded active running MySQL Community Server
ssh.service       loaded active running OpenBSD Secure Shell server
session-1.scope   loaded active running Session 1 of user root
`

	units := ParseSystemdUnits(output)
	want := []string{"nginx", "mysql", "ssh"}
	if len(units) != len(want) {
		t.Fatalf("got %d units %v, want %d", len(units), units, len(want))
	}
	for i, u := range want {
		if units[i] != u {
			t.Errorf("units[%d] = %q, want %q", i, units[i], u)
		}
	}
}

func TestParseSystemdUnitsEmpty(t *testing.T) {
	if units := ParseSystemdUnits(""); len(units) != 0 {
		t.Errorf("expected no units, got %v", units)
	}
}

func TestParseDockerContainers(t *testing.T) {
	output := "db\tpostgres:16\t0.0.0.0:5432->5432/tcp, :::5432->5432/tcp\tUp 3 days\n" +
		"cache\tredis:7.2\t\tUp 3 days\n" +
		"broken-line\n"

	containers := ParseDockerContainers(output)
	if len(containers) != 2 {
		t.Fatalf("got %d containers, want 2", len(containers))
	}

	db := containers[0]
	if db.Name != "db" || db.Image != "postgres:16" {
		t.Errorf("unexpected container: %+v", db)
	}
	if len(db.Ports) != 1 || db.Ports[0] != 5432 {
		t.Errorf("Ports = %v, want [5432]", db.Ports)
	}
	if db.Status != "Up 3 days" {
		t.Errorf("Status = %q", db.Status)
	}

	if len(containers[1].Ports) != 0 {
		t.Errorf("cache should expose no ports, got %v", containers[1].Ports)
	}
}

func TestParsePortBindingsDeduplicates(t *testing.T) {
	ports := parsePortBindings("0.0.0.0:3306->3306/tcp, :::3306->3306/tcp")
	if len(ports) != 1 || ports[0] != 3306 {
		t.Errorf("ports = %v, want [3306]", ports)
	}
}

func TestParseDiskUsage(t *testing.T) {
	output := `Filesystem     1-blocks       Used  Available Capacity Mounted on
/dev/sda1    52428800000 41943040000 10485760000      80% /
/dev/sdb1   104857600000 10485760000 94371840000      10% /var/lib/mysql
tmpfs         8388608000           0 8388608000       0% /dev/shm
`

	filesystems := ParseDiskUsage(output)
	if len(filesystems) != 2 {
		t.Fatalf("got %d filesystems, want 2 (tmpfs skipped)", len(filesystems))
	}

	root := filesystems[0]
	if root.MountPoint != "/" {
		t.Errorf("MountPoint = %q, want /", root.MountPoint)
	}
	if root.TotalBytes != 52428800000 {
		t.Errorf("TotalBytes = %d", root.TotalBytes)
	}
	if root.UsedBytes != 41943040000 {
		t.Errorf("UsedBytes = %d", root.UsedBytes)
	}
	if root.AvailableBytes != 10485760000 {
		t.Errorf("AvailableBytes = %d", root.AvailableBytes)
	}
	if root.UsagePercent != 80 {
		t.Errorf("UsagePercent = %d, want 80", root.UsagePercent)
	}
}
