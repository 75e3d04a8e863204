package walker

import (
	"strings"

	"github.com/forestmonster/rsmf-browser/model"
)

// channelPrefix is the path-segment convention the archive generator uses to
// group RSMF files by conversation.
const channelPrefix = "Channels - "

// DiscoverChannels scans the outer archive's entry names and returns one
// Channel per distinct "Channels - <name>" path segment, in first-seen
// order, plus the raw period segments used for ownership resolution.
func DiscoverChannels(names []string) ([]model.Channel, []string) {
	var periods []string
	seen := make(map[string]struct{})

	for _, name := range names {
		if !strings.Contains(name, channelPrefix) {
			continue
		}
		for _, part := range strings.Split(name, "/") {
			if !strings.HasPrefix(part, channelPrefix) {
				continue
			}
			if _, ok := seen[part]; !ok {
				seen[part] = struct{}{}
				periods = append(periods, part)
			}
			break
		}
	}

	channels := make([]model.Channel, 0, len(periods))
	for _, period := range periods {
		name := strings.TrimPrefix(period, channelPrefix)
		channels = append(channels, model.Channel{ID: name, Name: name})
	}
	return channels, periods
}

// OwnerOf resolves the owning channel id for one entry path: the first
// period segment found as a substring of the full path wins. Returns ""
// when no segment matches; such entries are skipped by the walk.
func OwnerOf(entry string, periods []string) string {
	for _, period := range periods {
		if strings.Contains(entry, period) {
			return strings.TrimPrefix(period, channelPrefix)
		}
	}
	return ""
}
