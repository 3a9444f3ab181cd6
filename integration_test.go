package sensorbridge_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io"
	"math/big"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switches/sensorbridge/pkg/bridge"
	"github.com/switches/sensorbridge/pkg/channel"
	"github.com/switches/sensorbridge/pkg/client"
	"github.com/switches/sensorbridge/pkg/log"
	"github.com/switches/sensorbridge/pkg/sensor"
	"github.com/switches/sensorbridge/pkg/sensor/simhost"
	"github.com/switches/sensorbridge/pkg/service"
	"github.com/switches/sensorbridge/pkg/wire"
)

func startBridge(t *testing.T, host *simhost.Host, mutate func(*service.Config)) *service.BridgeService {
	t.Helper()
	cfg := service.DefaultConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := service.NewBridgeService(host, cfg)
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { _ = svc.Stop() })
	return svc
}

func dial(t *testing.T, svc *service.BridgeService, cfg client.Config) *client.Conn {
	t.Helper()
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 2 * time.Second
	}
	conn, err := client.Dial(context.Background(), svc.Addr().String(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func nextRecord(t *testing.T, s *client.Stream) sensor.Record {
	t.Helper()
	select {
	case r, ok := <-s.Events():
		require.True(t, ok, "stream %s ended", s.Channel())
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("no event on %s", s.Channel())
		return nil
	}
}

// TestE2E_TLSSession runs a continuous stream over TLS, including an
// accuracy change and an interval change while listening.
func TestE2E_TLSSession(t *testing.T) {
	serverCert, err := generateSelfSignedCert("bridge.local")
	require.NoError(t, err)

	host := simhost.NewDefault()
	svc := startBridge(t, host, func(c *service.Config) {
		c.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{serverCert},
			MinVersion:   tls.VersionTLS13,
		}
	})
	conn := dial(t, svc, client.Config{
		TLSConfig: &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS13},
	})
	sm := conn.SensorManager()
	ctx := context.Background()

	version, err := sm.PlatformVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Android 14", version)

	gyro, err := sm.ListenSensor(ctx, sensor.TypeGyroscope, sensor.DelayUI)
	require.NoError(t, err)
	require.Equal(t, 1, host.ListenerCount(sensor.TypeGyroscope))

	host.EmitEvent(sensor.TypeGyroscope, 0.1, 0.2, 0.3)
	r := nextRecord(t, gyro)
	assert.Len(t, r[sensor.FieldValues], 3)
	assert.EqualValues(t, sensor.AccuracyHigh, r[sensor.FieldAccuracy])

	host.SetAccuracy(sensor.TypeGyroscope, sensor.AccuracyLow)
	r = nextRecord(t, gyro)
	assert.EqualValues(t, sensor.AccuracyLow, r[sensor.FieldNewAccuracy])
	assert.Equal(t, "android.sensor.gyroscope", r[sensor.FieldStringType])

	// Registering again with a new interval keeps one host registration.
	name, err := sm.RegisterListener(ctx, sensor.TypeGyroscope, sensor.DelayGame)
	require.NoError(t, err)
	assert.Equal(t, gyro.Channel(), name)
	assert.Equal(t, 1, host.ListenerCount(sensor.TypeGyroscope))

	host.EmitEvent(sensor.TypeGyroscope, 1, 1, 1)
	r = nextRecord(t, gyro)
	assert.EqualValues(t, sensor.AccuracyLow, r[sensor.FieldAccuracy])

	require.NoError(t, conn.Cancel(ctx, gyro))
	assert.Equal(t, 0, host.ListenerCount(sensor.TypeGyroscope))
}

// TestE2E_LegacyPlatform checks capability gating on an old platform.
func TestE2E_LegacyPlatform(t *testing.T) {
	cfg := simhost.DefaultConfig()
	cfg.Platform = sensor.Platform{Name: "Android", Release: "4.2", APILevel: 17}
	cfg.DynamicSensorDiscovery = false
	host := simhost.New(cfg)

	conn := dial(t, startBridge(t, host, nil), client.Config{})
	sm := conn.SensorManager()
	ctx := context.Background()

	list, err := sm.SensorList(ctx, sensor.TypeAll)
	require.NoError(t, err)
	require.NotEmpty(t, list)
	assert.NotContains(t, list[0], sensor.FieldID)
	assert.NotContains(t, list[0], sensor.FieldStringType)

	_, err = sm.RequestTriggerSensor(ctx, sensor.TypeSignificantMotion)
	status, _, details := channel.StatusOf(err)
	assert.Equal(t, wire.StatusUnsupported, status)
	require.IsType(t, map[string]any{}, details)
	assert.EqualValues(t, sensor.APILevelTriggerSensors, details.(map[string]any)["requiredApiLevel"])

	_, err = sm.DefaultSensorWakeUp(ctx, sensor.TypeAccelerometer, true)
	status, _, _ = channel.StatusOf(err)
	assert.Equal(t, wire.StatusUnsupported, status)

	_, err = sm.ListenDynamicSensors(ctx)
	status, _, _ = channel.StatusOf(err)
	assert.Equal(t, wire.StatusUnsupported, status)

	_, err = conn.Call(ctx, bridge.MethodChannel, "flashTorch", nil)
	status, _, _ = channel.StatusOf(err)
	assert.Equal(t, wire.StatusNotImplemented, status)
}

// TestE2E_Hotplug follows a dynamic sensor through connect and disconnect.
func TestE2E_Hotplug(t *testing.T) {
	host := simhost.NewDefault()
	conn := dial(t, startBridge(t, host, nil), client.Config{})
	ctx := context.Background()

	hp, err := conn.SensorManager().ListenDynamicSensors(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, host.CallbackCount())

	strap := &sensor.Sensor{
		ID:         200,
		Name:       "Chest Strap",
		Vendor:     "External",
		Version:    1,
		Type:       sensor.TypeHeartRate,
		StringType: sensor.TypeName(sensor.TypeHeartRate),
		IsDynamic:  true,
	}
	host.ConnectDynamic(strap)
	r := nextRecord(t, hp)
	assert.Equal(t, "Chest Strap", r[sensor.FieldName])
	assert.Equal(t, true, r[sensor.FieldIsConnected])

	dynamic, err := conn.SensorManager().DynamicSensorList(ctx, sensor.TypeHeartRate)
	require.NoError(t, err)
	assert.Len(t, dynamic, 1)

	host.DisconnectDynamic(200)
	r = nextRecord(t, hp)
	assert.Equal(t, false, r[sensor.FieldIsConnected])

	require.NoError(t, conn.Cancel(ctx, hp))
	assert.Equal(t, 0, host.CallbackCount())
}

// TestE2E_TwoClients checks that sessions do not share streams.
func TestE2E_TwoClients(t *testing.T) {
	host := simhost.NewDefault()
	svc := startBridge(t, host, nil)
	a := dial(t, svc, client.Config{})
	b := dial(t, svc, client.Config{})
	ctx := context.Background()

	sa, err := a.SensorManager().ListenSensor(ctx, sensor.TypeLight, sensor.DelayNormal)
	require.NoError(t, err)
	sb, err := b.SensorManager().ListenSensor(ctx, sensor.TypeLight, sensor.DelayNormal)
	require.NoError(t, err)
	assert.Equal(t, 2, host.ListenerCount(sensor.TypeLight))

	host.EmitEvent(sensor.TypeLight, 300)
	nextRecord(t, sa)
	nextRecord(t, sb)

	require.NoError(t, a.Close())
	assert.Eventually(t, func() bool { return host.ListenerCount(sensor.TypeLight) == 1 },
		2*time.Second, 10*time.Millisecond)

	host.EmitEvent(sensor.TypeLight, 310)
	r := nextRecord(t, sb)
	assert.Equal(t, []any{float64(310)}, normalizeValues(r[sensor.FieldValues]))
}

// TestE2E_ProtocolLog records a session and reads it back.
func TestE2E_ProtocolLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.slog")
	fileLogger, err := log.NewFileLogger(path)
	require.NoError(t, err)

	host := simhost.NewDefault()
	svc := startBridge(t, host, func(c *service.Config) { c.ProtocolLogger = fileLogger })
	conn := dial(t, svc, client.Config{})
	ctx := context.Background()

	s, err := conn.SensorManager().ListenSensor(ctx, sensor.TypeProximity, sensor.DelayNormal)
	require.NoError(t, err)
	host.EmitEvent(sensor.TypeProximity, 5)
	nextRecord(t, s)
	require.NoError(t, conn.Cancel(ctx, s))

	require.NoError(t, svc.Stop())
	require.NoError(t, fileLogger.Close())

	reader, err := log.NewReader(path)
	require.NoError(t, err)
	defer reader.Close()

	var calls, events int
	var bound bool
	for {
		ev, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if ev.Message != nil && ev.Message.Kind == wire.KindCall && ev.Channel == bridge.MethodChannel {
			calls++
		}
		if ev.Message != nil && ev.Message.Kind == wire.KindEvent {
			events++
		}
		if ev.StateChange != nil && ev.StateChange.Entity == log.StateEntityStream && ev.StateChange.NewState == "BOUND" {
			bound = true
			assert.Equal(t, "continuous/android.sensor.proximity", ev.StateChange.Target)
		}
	}
	assert.GreaterOrEqual(t, calls, 1)
	assert.GreaterOrEqual(t, events, 1)
	assert.True(t, bound)
}

// normalizeValues widens decoded numbers so float32 and float64 payloads
// compare equal.
func normalizeValues(v any) []any {
	list, _ := v.([]any)
	out := make([]any, len(list))
	for i, x := range list {
		switch n := x.(type) {
		case float32:
			out[i] = float64(n)
		default:
			out[i] = x
		}
	}
	return out
}

func generateSelfSignedCert(commonName string) (tls.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName: commonName,
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:              []string{commonName, "localhost"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	return tls.X509KeyPair(certPEM, keyPEM)
}
