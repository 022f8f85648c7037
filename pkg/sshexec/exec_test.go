package sshexec

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// testServer answers exec requests: "fail" exits 3, anything else echoes the command.
func testServer(t *testing.T) (string, int) {
	t.Helper()
	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	require.NoError(t, err)
	config := &ssh.ServerConfig{
		PublicKeyCallback: func(ssh.ConnMetadata, ssh.PublicKey) (*ssh.Permissions, error) {
			return nil, nil
		},
	}
	config.AddHostKey(hostSigner)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	go func() {
		for {
			nc, err := l.Accept()
			if err != nil {
				return
			}
			go serveConn(nc, config)
		}
	}()
	addr := l.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func serveConn(nc net.Conn, config *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(nc, config)
	if err != nil {
		return
	}
	go ssh.DiscardRequests(reqs)
	for nch := range chans {
		ch, requests, err := nch.Accept()
		if err != nil {
			continue
		}
		go func() {
			defer ch.Close()
			for req := range requests {
				if req.Type != "exec" {
					req.Reply(false, nil)
					continue
				}
				var payload struct{ Command string }
				ssh.Unmarshal(req.Payload, &payload)
				req.Reply(true, nil)
				status := uint32(0)
				if strings.Contains(payload.Command, "fail") {
					ch.Stderr().Write([]byte("failed\n"))
					status = 3
				} else {
					ch.Write([]byte(payload.Command + "\n"))
				}
				ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
				return
			}
		}()
	}
}

func clientKey(t *testing.T) []byte {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	return pem.EncodeToMemory(block)
}

func TestExecRoundTrip(t *testing.T) {
	host, port := testServer(t)
	conf := ClientConf{
		Host:           host,
		Port:           port,
		Username:       "ubuntu",
		PrivateKey:     clientKey(t),
		ConnectTimeout: 5 * time.Second,
		KnownHostsFile: filepath.Join(t.TempDir(), "known_hosts"),
	}

	out := Exec(&ExecInput{ClientConf: conf, ExecDetail: ExecDetail{Shell: "hello"}})
	require.NoError(t, out.Err)
	assert.Equal(t, 0, out.ExitCode)
	assert.Equal(t, "hello\n", string(out.Stdout))

	out = Exec(&ExecInput{ClientConf: conf, ExecDetail: ExecDetail{Shell: "fail now"}})
	require.NoError(t, out.Err)
	assert.Equal(t, 3, out.ExitCode)
	assert.Equal(t, "failed\n", string(out.Stderr))
}

func TestAcceptNewRecordsHost(t *testing.T) {
	host, port := testServer(t)
	known := filepath.Join(t.TempDir(), "known_hosts")
	conf := &ClientConf{
		Host:           host,
		Port:           port,
		Username:       "ubuntu",
		PrivateKey:     clientKey(t),
		ConnectTimeout: 5 * time.Second,
		KnownHostsFile: known,
	}
	conn, err := Dial(conf)
	require.NoError(t, err)
	conn.Close()
	data, err := os.ReadFile(known)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ssh-ed25519")

	conn, err = Dial(conf)
	require.NoError(t, err)
	conn.Close()
}

func TestDialRefusedTimesOut(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	sleeps := 0
	_, err = Dial(&ClientConf{
		Host:           "127.0.0.1",
		Port:           port,
		Username:       "ubuntu",
		PrivateKey:     clientKey(t),
		ConnectTimeout: 3 * time.Second,
		HostKeys:       HostKeyIgnore,
		Sleep:          func(time.Duration) { sleeps++ },
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to dial")
	assert.Equal(t, 2, sleeps)
}

func TestDialStalledEndpointKeepsToConnectTimeout(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	held := make(chan net.Conn, 16)
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			held <- conn
		}
	}()
	t.Cleanup(func() {
		for {
			select {
			case conn := <-held:
				conn.Close()
			default:
				return
			}
		}
	})

	start := time.Now()
	_, err = Dial(&ClientConf{
		Host:           "127.0.0.1",
		Port:           l.Addr().(*net.TCPAddr).Port,
		Username:       "ubuntu",
		PrivateKey:     clientKey(t),
		ConnectTimeout: time.Second,
		RetryInterval:  200 * time.Millisecond,
		HostKeys:       HostKeyIgnore,
	})
	elapsed := time.Since(start)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to dial")
	assert.Less(t, elapsed, 3*time.Second)
}

func TestMakeScriptEncodesArgs(t *testing.T) {
	s := makeScript([]string{"echo", "it's"})
	assert.Contains(t, s, "base64 -d")
	assert.NotContains(t, s, "it's")
}
