package scanner

import (
	"strconv"
	"strings"

	"github.com/backstead/backstead/internal/models"
)

// ParseSystemdUnits extracts running service names from
// `systemctl list-units --type=service --state=running` output.
func ParseSystemdUnits(output string) []string {
	var units []string
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		unit := fields[0]
		if !strings.HasSuffix(unit, ".service") {
			continue
		}
		units = append(units, strings.TrimSuffix(unit, ".service"))
	}
	return units
}

// Container is one running container parsed from docker ps output.
type Container struct {
	Name   string
	Image  string
	Ports  []int
	Status string
}

// ParseDockerContainers parses tab-separated docker ps output in the form
// name\timage\tports\tstatus.
func ParseDockerContainers(output string) []Container {
	var containers []Container
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 2 {
			continue
		}

		c := Container{Name: parts[0], Image: parts[1]}
		if len(parts) > 2 {
			c.Ports = parsePortBindings(parts[2])
		}
		if len(parts) > 3 {
			c.Status = parts[3]
		}
		containers = append(containers, c)
	}
	return containers
}

// parsePortBindings pulls host ports out of docker's port column, e.g.
// "0.0.0.0:3306->3306/tcp, :::3306->3306/tcp".
func parsePortBindings(ports string) []int {
	seen := make(map[int]bool)
	var result []int
	for _, binding := range strings.Split(ports, ",") {
		binding = strings.TrimSpace(binding)
		arrow := strings.Index(binding, "->")
		if arrow < 0 {
			continue
		}
		hostPart := binding[:arrow]
		colon := strings.LastIndex(hostPart, ":")
		if colon < 0 {
			continue
		}
		port, err := strconv.Atoi(hostPart[colon+1:])
		if err != nil || seen[port] {
			continue
		}
		seen[port] = true
		result = append(result, port)
	}
	return result
}

// pseudoFilesystems are skipped during disk parsing; they hold no
// backup-worthy data.
var pseudoFilesystems = map[string]bool{
	"tmpfs":    true,
	"devtmpfs": true,
	"overlay":  true,
	"squashfs": true,
	"proc":     true,
	"sysfs":    true,
	"udev":     true,
	"cgroup":   true,
	"cgroup2":  true,
	"devfs":    true,
	"efivarfs": true,
}

// ParseDiskUsage parses `df -PB1` output into filesystems, skipping pseudo
// mounts. Shared with the health check service.
func ParseDiskUsage(output string) []models.DetectedFilesystem {
	var filesystems []models.DetectedFilesystem
	lines := strings.Split(output, "\n")
	for i, line := range lines {
		if i == 0 {
			// Header row.
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}

		device := fields[0]
		if pseudoFilesystems[device] || strings.HasPrefix(device, "shm") {
			continue
		}

		total, err1 := strconv.ParseInt(fields[1], 10, 64)
		used, err2 := strconv.ParseInt(fields[2], 10, 64)
		avail, err3 := strconv.ParseInt(fields[3], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}

		usage, err := strconv.Atoi(strings.TrimSuffix(fields[4], "%"))
		if err != nil {
			continue
		}

		filesystems = append(filesystems, models.DetectedFilesystem{
			MountPoint:     fields[5],
			Device:         device,
			TotalBytes:     total,
			UsedBytes:      used,
			AvailableBytes: avail,
			UsagePercent:   usage,
		})
	}
	return filesystems
}
