package campaign

import (
	"fmt"
	"hash/fnv"
	"strings"
)

var (
	nameAdjectives = []string{"Bright", "Steady", "Swift", "Bold", "Quiet", "Keen", "Lucky", "Brisk"}
	nameNouns      = []string{"Falcon", "Harbor", "Summit", "Comet", "Maple", "Beacon", "Otter", "Cedar"}
)

// generateName derives a readable default name from an agent id.
func generateName(id string) string {
	h := fnv.New32a()
	h.Write([]byte(id))
	sum := h.Sum32()

	adj := nameAdjectives[sum%uint32(len(nameAdjectives))]
	noun := nameNouns[(sum/uint32(len(nameAdjectives)))%uint32(len(nameNouns))]
	suffix := strings.ReplaceAll(id, "-", "")
	if len(suffix) > 4 {
		suffix = suffix[:4]
	}
	return fmt.Sprintf("%s %s %s", adj, noun, suffix)
}
