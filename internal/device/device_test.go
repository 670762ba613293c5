package device_test

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"

	"esp-csi-recorder/internal/device"
	"esp-csi-recorder/internal/device/devicetest"
)

func newConfigurator() (*device.Configurator, *[]time.Duration) {
	var slept []time.Duration
	c := device.NewConfigurator(device.DefaultCommands(), device.DefaultDelays(), nil)
	c.Sleep = func(d time.Duration) { slept = append(slept, d) }
	return c, &slept
}

func TestParseWifiMode(t *testing.T) {
	m, err := device.ParseWifiMode(" Station ")
	require.NoError(t, err)
	assert.Equal(t, device.Station, m)

	_, err = device.ParseWifiMode("ap")
	require.Error(t, err)
}

func TestSnifferCommands(t *testing.T) {
	c, _ := newConfigurator()
	assert.Equal(t,
		[]string{"wifi-set --mode=sniffer"},
		c.SetupCommands(device.Setup{Mode: device.Sniffer}))
}

func TestStationCommands(t *testing.T) {
	c, _ := newConfigurator()
	assert.Equal(t,
		[]string{
			"wifi-set --mode=station",
			"wifi-set --sta-ssid=lab",
			"wifi-set --sta-password=secret",
			"csi-set --disable-htltf",
		},
		c.SetupCommands(device.Setup{Mode: device.Station, SSID: "lab", Password: "secret"}))
}

func TestResetApplyStart(t *testing.T) {
	c, slept := newConfigurator()
	port := devicetest.NewPort()

	require.NoError(t, c.Reset(port))
	assert.True(t, port.DTR)
	assert.Equal(t, 1, port.InputResets)

	require.NoError(t, c.Apply(port, device.Setup{Mode: device.Station, SSID: "a", Password: "b"}))
	require.NoError(t, c.StartCapture(port, 10*time.Second))

	assert.Equal(t,
		"wifi-set --mode=station\r\n"+
			"wifi-set --sta-ssid=a\r\n"+
			"wifi-set --sta-password=b\r\n"+
			"csi-set --disable-htltf\r\n"+
			"start --duration=10\r\n",
		port.Written())

	d := device.DefaultDelays()
	assert.Equal(t, []time.Duration{d.Boot, d.Command, d.Command, d.Command, d.Settle, d.Start}, *slept)
}

func TestStartCaptureRoundsUpToOneSecond(t *testing.T) {
	c, _ := newConfigurator()
	port := devicetest.NewPort()

	require.NoError(t, c.StartCapture(port, 200*time.Millisecond))
	assert.Equal(t, "start --duration=1\r\n", port.Written())
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "timeout" }
func (timeoutErr) Timeout() bool { return true }

func TestClassifyReadError(t *testing.T) {
	assert.Equal(t, device.ReadTimeout, device.ClassifyReadError(os.ErrDeadlineExceeded))
	assert.Equal(t, device.ReadTimeout, device.ClassifyReadError(fmt.Errorf("read: %w", timeoutErr{})))
	assert.Equal(t, device.ReadWouldBlock, device.ClassifyReadError(fmt.Errorf("read: %w", syscall.EAGAIN)))
	assert.Equal(t, device.ReadFatal, device.ClassifyReadError(errors.New("device unplugged")))
}

func TestChoosePort(t *testing.T) {
	ports := []*enumerator.PortDetails{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "10C4", Product: "CP2102 USB to UART"},
		{Name: "/dev/ttyACM0", IsUSB: true, VID: "303a", Product: "USB JTAG/serial debug unit"},
	}
	name, ok := device.ChoosePort(ports)
	require.True(t, ok)
	assert.Equal(t, "/dev/ttyACM0", name)

	name, ok = device.ChoosePort(ports[:2])
	require.True(t, ok)
	assert.Equal(t, "/dev/ttyUSB0", name)

	_, ok = device.ChoosePort(ports[:1])
	assert.False(t, ok)
}
