package tcp_conn

import (
    "context"
    "crypto/ecdsa"
    "crypto/elliptic"
    "crypto/rand"
    "crypto/tls"
    "crypto/x509"
    "crypto/x509/pkix"
    "math/big"
    "net"
    "testing"
    "time"

    gochat "github.com/SirGFM/go-chat-hub"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

// selfSigned generate a certificate for 127.0.0.1.
func selfSigned(t *testing.T) tls.Certificate {
    t.Helper()

    key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
    require.NoError(t, err)

    tmpl := &x509.Certificate {
        SerialNumber: big.NewInt(1),
        Subject: pkix.Name {CommonName: "go-chat-hub test"},
        NotBefore: time.Now().Add(-time.Hour),
        NotAfter: time.Now().Add(time.Hour),
        IPAddresses: []net.IP {net.ParseIP("127.0.0.1")},
        KeyUsage: x509.KeyUsageDigitalSignature,
        ExtKeyUsage: []x509.ExtKeyUsage {x509.ExtKeyUsageServerAuth},
    }
    der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
    require.NoError(t, err)

    return tls.Certificate {
        Certificate: [][]byte {der},
        PrivateKey: key,
    }
}

type accepted struct {
    token string
    lines []string
    err error
}

// startServer serve connections from `ln`, reporting what each client
// sent once it disconnects.
func startServer(t *testing.T, ln net.Listener, greet string) chan accepted {
    t.Helper()

    result := make(chan accepted, 1)
    go Serve(ln, DefaultConf(), func(token string, conn gochat.Conn) {
        got := accepted {token: token}
        conn.SendStr("")
        conn.SendStr(greet)
        for {
            line, err := conn.Recv()
            if err != nil {
                got.err = err
                break
            }
            got.lines = append(got.lines, line)
        }
        result <- got
    })
    t.Cleanup(func() { ln.Close() })

    return result
}

// readMessage skip keep-alives until an actual line arrives.
func readMessage(t *testing.T, c gochat.Conn) string {
    t.Helper()

    for {
        line, err := c.Recv()
        require.NoError(t, err)
        if line != "" {
            return line
        }
    }
}

func TestPlainConnection(t *testing.T) {
    ln, err := Listen("127.0.0.1:0", nil)
    require.NoError(t, err)
    result := startServer(t, ln, "welcome")

    c, err := Dial(context.Background(), DefaultConf(), ln.Addr().String(), nil, "abc123")
    require.NoError(t, err)

    assert.Equal(t, "welcome", readMessage(t, c))
    require.NoError(t, c.SendStr("hello"))
    require.NoError(t, c.SendStr("/private bob hi"))
    require.NoError(t, Quit(c))
    assert.Equal(t, gochat.ConnEOF, c.SendStr("late"))

    select {
    case got := <-result:
        assert.Equal(t, "abc123", got.token)
        assert.Equal(t, []string {"hello", "/private bob hi"}, got.lines)
        assert.Equal(t, gochat.ConnEOF, got.err)
    case <-time.After(time.Second):
        t.Fatal("The server didn't notice the client leaving")
    }
}

func TestTLSConnection(t *testing.T) {
    cert := selfSigned(t)
    ln, err := Listen("127.0.0.1:0", &tls.Config {Certificates: []tls.Certificate {cert}})
    require.NoError(t, err)
    result := startServer(t, ln, "secure welcome")

    leaf, err := x509.ParseCertificate(cert.Certificate[0])
    require.NoError(t, err)
    pool := x509.NewCertPool()
    pool.AddCert(leaf)

    c, err := Dial(context.Background(), DefaultConf(), ln.Addr().String(),
            &tls.Config {RootCAs: pool}, "tls-token")
    require.NoError(t, err)

    assert.Equal(t, "secure welcome", readMessage(t, c))
    require.NoError(t, c.SendStr("over tls"))
    require.NoError(t, c.Close())

    select {
    case got := <-result:
        assert.Equal(t, "tls-token", got.token)
        assert.Equal(t, []string {"over tls"}, got.lines)
    case <-time.After(time.Second):
        t.Fatal("The server didn't notice the client leaving")
    }
}

func TestHandshakeRequiresToken(t *testing.T) {
    server, client := net.Pipe()
    defer server.Close()

    go func() {
        client.Write([]byte("  \r\n"))
        client.Close()
    }()

    _, _, err := Handshake(DefaultConf(), server)
    assert.ErrorIs(t, err, ErrNoToken)
}

func TestHandshakeTimeout(t *testing.T) {
    server, client := net.Pipe()
    defer server.Close()
    defer client.Close()

    conf := DefaultConf()
    conf.HandshakeTimeout = time.Millisecond * 20

    start := time.Now()
    _, _, err := Handshake(conf, server)
    assert.Error(t, err)
    assert.Less(t, time.Since(start), time.Second)
}

func TestLongLineCloses(t *testing.T) {
    server, client := net.Pipe()
    defer client.Close()

    conf := DefaultConf()
    conf.MaxLineSize = 16

    go func() {
        client.Write([]byte("token\n"))
        client.Write([]byte("this line is way longer than sixteen bytes\n"))
    }()

    _, conn, err := Handshake(conf, server)
    require.NoError(t, err)
    _, err = conn.Recv()
    assert.Equal(t, gochat.ConnEOF, err)
}
