package discovery

import "strings"

const listHeaderMarker = "List of devices"

// ParseDeviceList extracts device identifiers from discovery tool output.
//
// The header line, blank lines, and daemon chatter lines starting with "*" are
// skipped. The identifier is the text before the first tab, or the first field
// when a line has no tab. Duplicates collapse.
func ParseDeviceList(raw string) DeviceSet {
	set := make(DeviceSet)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || strings.Contains(line, listHeaderMarker) || strings.HasPrefix(line, "*") {
			continue
		}
		id, _, found := strings.Cut(line, "\t")
		if !found {
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			id = fields[0]
		}
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		set[DeviceID(id)] = struct{}{}
	}
	return set
}
