package sink

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esp-csi-recorder/internal/csi"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	messages     []published
	err          error
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.messages = append(c.messages, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return &fakeToken{err: c.err}
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func TestMQTTPublishesFrames(t *testing.T) {
	client := &fakeClient{}
	s := NewMQTT(client, MQTTConfig{Topic: "csi/frames", QoS: 1}, "abc")

	f, err := csi.NewFrame(42, -55, []int32{3, 4})
	require.NoError(t, err)
	require.NoError(t, s.LogFrame(7, f))
	require.NoError(t, s.Close())

	require.Len(t, client.messages, 1)
	msg := client.messages[0]
	assert.Equal(t, "csi/frames", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	assert.True(t, client.disconnected)

	var rec Record
	require.NoError(t, json.Unmarshal(msg.payload, &rec))
	assert.Equal(t, "abc", rec.Session)
	assert.Equal(t, uint64(7), rec.Frame)
	assert.Equal(t, uint64(42), rec.DeviceTimestamp)
	assert.Equal(t, int32(-55), rec.SignalStrength)
	assert.Equal(t, []float64{5}, rec.Amplitudes)
}

func TestMQTTFlushReportsErrors(t *testing.T) {
	client := &fakeClient{err: errors.New("broker gone")}
	s := NewMQTT(client, MQTTConfig{Topic: "t"}, "")

	f, err := csi.NewFrame(1, 0, []int32{1, 1})
	require.NoError(t, err)
	require.NoError(t, s.LogFrame(0, f))

	err = s.Flush()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker gone")
	assert.NoError(t, s.Flush())
}

func TestNop(t *testing.T) {
	var s Sink = Nop{}
	assert.NoError(t, s.LogFrame(0, nil))
	assert.NoError(t, s.Flush())
	assert.NoError(t, s.Close())
}
