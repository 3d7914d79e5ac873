package ifmanager

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cursedremoteid/edge/internal/core/domain"
)

type fakeExecutor struct {
	responses map[string][]byte
	errors    map[string]error
	calls     []string
}

func (f *fakeExecutor) key(name string, args ...string) string {
	return name + " " + strings.Join(args, " ")
}

func (f *fakeExecutor) Execute(name string, args ...string) ([]byte, error) {
	k := f.key(name, args...)
	f.calls = append(f.calls, k)
	if err, ok := f.errors[k]; ok {
		return f.responses[k], err
	}
	if out, ok := f.responses[k]; ok {
		return out, nil
	}
	return []byte{}, nil
}

func newTestManager(exec *fakeExecutor) *Manager {
	return &Manager{
		Executor:   exec,
		SkipChecks: true,
		LookPath:   func(string) (string, error) { return "/usr/bin/tool", nil },
		ReadSysPhyName: func(iface string) (string, error) {
			return "phy0", nil
		},
	}
}

func TestManager_Setup_HappyPath(t *testing.T) {
	exec := &fakeExecutor{
		responses: map[string][]byte{
			"airmon-ng check kill": []byte("ok"),
			"iw dev":               []byte("phy#0\n\tInterface wlan0\n"),
			"airmon-ng start wlan0": []byte(
				"found 2 processes\n" +
					"\t(mac80211 monitor mode vif enabled for [phy0]wlan0 on [phy0]wlan0mon)\n",
			),
		},
	}
	m := newTestManager(exec)

	phy, mon, err := m.Setup(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if phy != "phy0" {
		t.Errorf("phy = %q, want phy0", phy)
	}
	if mon != "wlan0mon" {
		t.Errorf("mon = %q, want wlan0mon", mon)
	}
}

func TestManager_Setup_NoAdapter(t *testing.T) {
	exec := &fakeExecutor{
		responses: map[string][]byte{
			"iw dev": []byte(""),
		},
	}
	m := newTestManager(exec)

	if _, _, err := m.Setup(context.Background()); err == nil {
		t.Fatal("expected error when no adapter is found")
	}
}

func TestManager_Setup_MonitorSetupFailed(t *testing.T) {
	exec := &fakeExecutor{
		responses: map[string][]byte{
			"iw dev": []byte("phy#0\n\tInterface wlan0\n"),
		},
		errors: map[string]error{
			"airmon-ng start wlan0": errors.New("boom"),
		},
	}
	m := newTestManager(exec)

	if _, _, err := m.Setup(context.Background()); err == nil {
		t.Fatal("expected error when monitor mode setup fails")
	}
}

func TestManager_CheckTools_MissingTool(t *testing.T) {
	m := &Manager{
		Executor: &fakeExecutor{},
		LookPath: func(name string) (string, error) {
			if name == "tshark" {
				return "", errors.New("not found")
			}
			return "/usr/bin/" + name, nil
		},
	}
	if err := m.checkTools(); err == nil {
		t.Fatal("expected error for missing tshark")
	}
}

func TestManager_CheckProtocols_MissingRequired(t *testing.T) {
	exec := &fakeExecutor{
		responses: map[string][]byte{
			"tshark -G protocols": []byte("eth\tEthernet\nip\tInternet Protocol\n"),
		},
	}
	m := &Manager{Executor: exec}
	if err := m.checkProtocols(); err == nil {
		t.Fatal("expected error when opendroneid protocols are absent")
	}
}

func TestManager_CheckProtocols_AllPresent(t *testing.T) {
	exec := &fakeExecutor{
		responses: map[string][]byte{
			"tshark -G protocols": []byte(
				"opendroneid\tOpen Drone ID\n" +
					"opendroneid.message.basicid\tBasic ID\n" +
					"opendroneid.message.location\tLocation\n" +
					"opendroneid.message.pack\tMessage Pack\n",
			),
		},
	}
	m := &Manager{Executor: exec}
	if err := m.checkProtocols(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestManager_SetChannel_RejectsInvalidInterfaceName(t *testing.T) {
	m := &Manager{Executor: &fakeExecutor{}}
	err := m.SetChannel(context.Background(), "../etc/passwd", 6)
	if err == nil {
		t.Fatal("expected validation error for malformed interface name")
	}
}

func TestManager_SetChannel_IllegalChannel(t *testing.T) {
	exec := &fakeExecutor{
		errors: map[string]error{
			"iw wlan0mon set channel 149": errors.New("exit status 1"),
		},
		responses: map[string][]byte{
			"iw wlan0mon set channel 149": []byte("command failed: Invalid argument (-22)\n"),
		},
	}
	exec.errors["iw wlan0mon set channel 149"] = errors.New("exit status 1")
	m := &Manager{Executor: exec}
	err := m.SetChannel(context.Background(), "wlan0mon", 149)
	if err == nil {
		t.Fatal("expected error for illegal channel")
	}
	if !errors.Is(err, domain.ErrIllegalChannel) {
		t.Fatalf("err = %v, want ErrIllegalChannel", err)
	}
}

func TestManager_SupportedChannels_ParsesFrequencies(t *testing.T) {
	exec := &fakeExecutor{
		responses: map[string][]byte{
			"iw phy phy0 info": []byte(
				"Frequencies:\n" +
					"\t\t* 2412 MHz [1] (20.0 dBm)\n" +
					"\t\t* 2437 MHz [6] (20.0 dBm)\n" +
					"\t\t* 2472 MHz [13] (disabled)\n" +
					"Bitrates:\n",
			),
		},
	}
	m := newTestManager(exec)
	m.phyName = "phy0"

	channels, err := m.SupportedChannels(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[int]bool{1: true, 6: true}
	if len(channels) != 2 {
		t.Fatalf("channels = %v, want 2 entries", channels)
	}
	for _, c := range channels {
		if !want[c] {
			t.Errorf("unexpected channel %d in result (disabled channel 13 should be excluded)", c)
		}
	}
}
