package ifmanager

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/cursedremoteid/edge/internal/core/domain"
)

// rePhyName and reMonName bound what Setup will ever hand to an external
// command. Interface names are interpolated as argv elements (not shell
// strings), but the regex check is kept anyway as defense in depth
// against a malformed or adversarial tool output (spec §9).
var (
	rePhyName = regexp.MustCompile(`^phy\d+$`)
	reMonName = regexp.MustCompile(`^wlan\d+(mon)?$`)
)

// requiredProtocols are the Open Drone ID dissector protocols the packet
// sniffer must support (spec §4.1 step 2); optionalProtocols are merely
// logged if absent.
var (
	requiredProtocols = []string{
		"opendroneid",
		"opendroneid.message.basicid",
		"opendroneid.message.location",
		"opendroneid.message.pack",
	}
	optionalProtocols = []string{
		"opendroneid.message.auth",
		"opendroneid.message.operatorid",
		"opendroneid.message.system",
		"opendroneid.message.selfid",
	}
)

// requiredTools are the external binaries Setup shells out to.
var requiredTools = map[string]string{
	"iw":        "install wireless-tools / iw (apt install iw)",
	"airmon-ng": "install aircrack-ng (apt install aircrack-ng)",
	"tshark":    "install tshark with Open Drone ID dissector support (apt install tshark)",
}

// Manager implements the Interface Manager (spec §4.1) against real (or
// faked, via Executor) system tools: iw for channel control and
// enumeration, airmon-ng for monitor-mode setup and process-conflict
// resolution, and tshark for the dissector protocol inventory.
type Manager struct {
	Executor CommandExecutor

	// SkipChecks disables steps 1-2 (spec's --no-check-requirements).
	SkipChecks bool

	// LookPath resolves a tool name to an executable path; overridable in
	// tests so they don't depend on the host's PATH.
	LookPath func(name string) (string, error)

	// ReadSysPhyName reads /sys/class/net/<iface>/phy80211/name; overridable
	// for tests that don't run on a machine with real network interfaces.
	ReadSysPhyName func(iface string) (string, error)

	phyName string
	monName string
}

// NewManager builds a Manager using the system executor, the real PATH
// lookup, and the real sysfs reader.
func NewManager(skipChecks bool) *Manager {
	return &Manager{
		Executor:       SystemCommandExecutor{},
		SkipChecks:     skipChecks,
		LookPath:       exec.LookPath,
		ReadSysPhyName: readSysPhyName,
	}
}

func readSysPhyName(iface string) (string, error) {
	b, err := os.ReadFile(fmt.Sprintf("/sys/class/net/%s/phy80211/name", iface))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// Setup runs the detect/kill/monitor-mode/verify sequence of spec §4.1
// and returns the resulting (phy_name, mon_name) pair.
func (m *Manager) Setup(ctx context.Context) (string, string, error) {
	if !m.SkipChecks {
		if err := m.checkTools(); err != nil {
			return "", "", err
		}
		if err := m.checkProtocols(); err != nil {
			return "", "", err
		}
	}

	if err := m.killConflictingProcesses(); err != nil {
		log.Printf("ifmanager: check-kill reported an error, continuing: %v", err)
	}

	phy, provisionalIface, err := m.discoverAdapter()
	if err != nil {
		return "", "", err
	}

	monName, gotPhy, err := m.startMonitorMode(provisionalIface)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", domain.ErrMonitorSetupFailed, err)
	}
	if gotPhy != "" && gotPhy != phy {
		return "", "", fmt.Errorf("%w: phy changed from %s to %s during monitor setup", domain.ErrMonitorSetupFailed, phy, gotPhy)
	}

	if !reMonName.MatchString(monName) {
		return "", "", fmt.Errorf("%w: monitor interface name %q failed validation", domain.ErrMonitorSetupFailed, monName)
	}
	if !rePhyName.MatchString(phy) {
		return "", "", fmt.Errorf("%w: phy name %q failed validation", domain.ErrMonitorSetupFailed, phy)
	}

	sysPhy, err := m.ReadSysPhyName(monName)
	if err != nil {
		return "", "", fmt.Errorf("%w: reading phy80211/name for %s: %v", domain.ErrMonitorSetupFailed, monName, err)
	}
	if sysPhy != phy {
		return "", "", fmt.Errorf("%w: %s reports phy %q, expected %q", domain.ErrMonitorSetupFailed, monName, sysPhy, phy)
	}

	m.phyName, m.monName = phy, monName
	return phy, monName, nil
}

// checkTools verifies the channel tool, monitor-mode tool, and packet
// sniffer are all installed (spec §4.1 step 1).
func (m *Manager) checkTools() error {
	for tool, hint := range requiredTools {
		if _, err := m.LookPath(tool); err != nil {
			return fmt.Errorf("%w: %s not found (%s)", domain.ErrToolMissing, tool, hint)
		}
	}
	return nil
}

// checkProtocols verifies tshark's protocol list includes every required
// Open Drone ID dissector protocol (spec §4.1 step 2).
func (m *Manager) checkProtocols() error {
	out, err := m.Executor.Execute("tshark", "-G", "protocols")
	if err != nil {
		return fmt.Errorf("%w: tshark -G protocols: %v", domain.ErrToolMissing, err)
	}

	seen := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		for _, f := range fields {
			seen[strings.ToLower(strings.TrimSpace(f))] = true
		}
	}

	var missing []string
	for _, p := range requiredProtocols {
		if !seen[p] {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: dissector missing required protocols %v", domain.ErrToolMissing, missing)
	}

	for _, p := range optionalProtocols {
		if !seen[p] {
			log.Printf("ifmanager: optional dissector protocol %s not available", p)
		}
	}
	return nil
}

// killConflictingProcesses runs airmon-ng's "check kill" to stop
// processes (NetworkManager, wpa_supplicant) that would otherwise fight
// over the adapter (spec §4.1 step 3).
func (m *Manager) killConflictingProcesses() error {
	out, err := m.Executor.Execute("airmon-ng", "check", "kill")
	if err != nil {
		return fmt.Errorf("airmon-ng check kill: %w (%s)", err, string(out))
	}
	return nil
}

var reIwDevInterface = regexp.MustCompile(`^Interface\s+(\S+)$`)
var reIwDevPhy = regexp.MustCompile(`^phy#(\d+)$`)

// discoverAdapter parses `iw dev` and returns the first (phy, interface)
// pair found (spec §4.1 step 4).
func (m *Manager) discoverAdapter() (phy, iface string, err error) {
	out, execErr := m.Executor.Execute("iw", "dev")
	if execErr != nil {
		return "", "", fmt.Errorf("%w: iw dev: %v", domain.ErrNoAdapter, execErr)
	}

	currentPhy := ""
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if m := reIwDevPhy.FindStringSubmatch(line); m != nil {
			currentPhy = "phy" + m[1]
			continue
		}
		if m := reIwDevInterface.FindStringSubmatch(line); m != nil && currentPhy != "" {
			return currentPhy, m[1], nil
		}
	}
	return "", "", fmt.Errorf("%w: no wireless adapter found in iw dev output", domain.ErrNoAdapter)
}

var reMonitorVifEnabled = regexp.MustCompile(`monitor mode (?:vif )?enabled.*?\[(phy\d+)\]([^\s)]+)\)?\s*$`)

// startMonitorMode runs airmon-ng start on iface and parses its output for
// the resulting monitor interface name (spec §4.1 step 5).
func (m *Manager) startMonitorMode(iface string) (monName, phy string, err error) {
	out, execErr := m.Executor.Execute("airmon-ng", "start", iface)
	if execErr != nil {
		return "", "", fmt.Errorf("airmon-ng start %s: %w (%s)", iface, execErr, string(out))
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if m := reMonitorVifEnabled.FindStringSubmatch(line); m != nil {
			return m[2], m[1], nil
		}
	}

	// Fall back to the conventional naming (e.g. "wlan0" -> "wlan0mon")
	// when the tool's free-form text doesn't match the expected pattern.
	return iface + "mon", "", nil
}

// SupportedChannels queries the radio's regulatory-permitted channel list
// (spec §4.1 step 7), used to intersect against the configured schedule.
func (m *Manager) SupportedChannels(ctx context.Context) ([]int, error) {
	if m.phyName == "" {
		return nil, fmt.Errorf("ifmanager: SupportedChannels called before Setup")
	}

	out, err := m.Executor.Execute("iw", "phy", m.phyName, "info")
	if err != nil {
		return nil, fmt.Errorf("iw phy %s info: %w", m.phyName, err)
	}

	reChannel := regexp.MustCompile(`\[([0-9]+)\]`)
	var channels []int

	scanner := bufio.NewScanner(bytes.NewReader(out))
	inFrequencies := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "Frequencies:" {
			inFrequencies = true
			continue
		}
		if !inFrequencies {
			continue
		}
		if !strings.HasPrefix(line, "*") {
			inFrequencies = false
			continue
		}
		if strings.Contains(line, "(disabled)") {
			continue
		}
		if match := reChannel.FindStringSubmatch(line); match != nil {
			if ch, convErr := strconv.Atoi(match[1]); convErr == nil {
				channels = append(channels, ch)
			}
		}
	}
	return channels, nil
}

// SetChannel implements ports.ChannelSwitcher.
func (m *Manager) SetChannel(ctx context.Context, monName string, channel int) error {
	if !reMonName.MatchString(monName) {
		return fmt.Errorf("%w: interface name %q failed validation", domain.ErrInvalidChannelNumber, monName)
	}
	if channel <= 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidChannelNumber, channel)
	}

	out, err := m.Executor.Execute("iw", monName, "set", "channel", strconv.Itoa(channel))
	if err != nil {
		msg := strings.ToLower(string(out))
		if strings.Contains(msg, "invalid argument") || strings.Contains(msg, "not permitted") {
			return fmt.Errorf("%w: channel %d on %s", domain.ErrIllegalChannel, channel, monName)
		}
		return fmt.Errorf("iw %s set channel %d: %w (%s)", monName, channel, err, string(out))
	}
	return nil
}

// Teardown best-effort reverts the interface to managed mode and restarts
// NetworkManager, which killConflictingProcesses may have stopped.
func (m *Manager) Teardown(ctx context.Context) error {
	if m.monName == "" {
		return nil
	}
	if _, err := m.Executor.Execute("airmon-ng", "stop", m.monName); err != nil {
		log.Printf("ifmanager: airmon-ng stop %s: %v", m.monName, err)
	}
	if _, err := m.Executor.Execute("systemctl", "start", "NetworkManager"); err != nil {
		log.Printf("ifmanager: restarting NetworkManager: %v", err)
	}
	return nil
}
