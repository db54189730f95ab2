package device

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultFireWireRoot is where the Linux firewire-core driver publishes nodes
const DefaultFireWireRoot = "/sys/bus/firewire/devices"

// AV/C unit directory identifiers (1394 Trade Association)
const (
	avcSpecifierID = 0x00a02d
	avcVersion     = 0x010001
)

// FireWireEnumerator lists IEEE 1394 nodes from sysfs.
// Nodes exposing an AV/C unit are reported with the muxed capability,
// which is how DV camcorders and decks present themselves.
type FireWireEnumerator struct {
	Root string
}

// NewFireWireEnumerator creates an enumerator reading from root
func NewFireWireEnumerator(root string) *FireWireEnumerator {
	if root == "" {
		root = DefaultFireWireRoot
	}
	return &FireWireEnumerator{Root: root}
}

// Enumerate scans the bus directory. A missing directory means no FireWire
// controller is present, which is not an error.
func (e *FireWireEnumerator) Enumerate(ctx context.Context) ([]Device, error) {
	entries, err := os.ReadDir(e.Root)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("FireWire bus not present", "root", e.Root)
			return []Device{}, nil
		}
		return nil, fmt.Errorf("failed to read FireWire bus: %w", err)
	}

	// fw1 is a node, fw1.0 is its first unit directory
	var nodes []string
	units := make(map[string][]string)
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "fw") {
			continue
		}
		if node, _, isUnit := strings.Cut(name, "."); isUnit {
			units[node] = append(units[node], name)
		} else {
			nodes = append(nodes, name)
		}
	}

	sort.Slice(nodes, func(i, j int) bool {
		return nodeNumber(nodes[i]) < nodeNumber(nodes[j])
	})

	devices := make([]Device, 0, len(nodes))
	for _, node := range nodes {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		dir := filepath.Join(e.Root, node)
		if e.readAttr(dir, "is_local") == "1" {
			continue
		}

		guid := e.readAttr(dir, "guid")
		if guid == "" {
			slog.Debug("Skipping FireWire node without GUID", "node", node)
			continue
		}

		d := Device{
			UniqueID:     guid,
			Manufacturer: e.readAttr(dir, "vendor_name"),
			ModelID:      e.readAttr(dir, "model_name"),
			Transport:    TransportFireWire,
			Address:      guid,
		}
		d.DisplayName = strings.TrimSpace(d.Manufacturer + " " + d.ModelID)
		if d.DisplayName == "" {
			d.DisplayName = "FireWire device " + guid
		}

		for _, unit := range units[node] {
			if e.isAVCUnit(filepath.Join(e.Root, unit)) {
				d.Capabilities = []MediaKind{MediaMuxed, MediaVideo, MediaAudio}
				break
			}
		}

		devices = append(devices, d)
	}

	return devices, nil
}

func (e *FireWireEnumerator) isAVCUnit(dir string) bool {
	specifier, err1 := strconv.ParseUint(e.readAttr(dir, "specifier_id"), 0, 32)
	version, err2 := strconv.ParseUint(e.readAttr(dir, "version"), 0, 32)
	return err1 == nil && err2 == nil && specifier == avcSpecifierID && version == avcVersion
}

func (e *FireWireEnumerator) readAttr(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func nodeNumber(node string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(node, "fw"))
	if err != nil {
		return 0
	}
	return n
}
