package email

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeSMTP es un servidor SMTP mínimo en loopback para tests de SMTPSender.
// No anuncia STARTTLS; anuncia AUTH PLAIN sólo si user != "".
// Cada lectura tiene deadline: una conexión que el cliente deja abierta
// termina en timeout en vez de colgar el cleanup.
type fakeSMTP struct {
	ln net.Listener
	wg sync.WaitGroup

	user, pass string
	rejectRcpt bool
	rejectHelo bool

	mu       sync.Mutex
	helo     []string
	auths    int
	mails    []fakeMail
	eofs     int // conexiones cerradas por el cliente
	timeouts int // conexiones abandonadas abiertas
}

type fakeMail struct {
	From string
	To   []string
	Data string
}

type fakeOption func(*fakeSMTP)

func withAuth(user, pass string) fakeOption {
	return func(f *fakeSMTP) { f.user, f.pass = user, pass }
}

func withRejectRcpt() fakeOption {
	return func(f *fakeSMTP) { f.rejectRcpt = true }
}

func withRejectHelo() fakeOption {
	return func(f *fakeSMTP) { f.rejectHelo = true }
}

const fakeReadTimeout = 3 * time.Second

func startFakeSMTP(t *testing.T, opts ...fakeOption) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakeSMTP{ln: ln}
	for _, o := range opts {
		o(f)
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			f.wg.Add(1)
			go func() {
				defer f.wg.Done()
				f.serve(conn)
			}()
		}
	}()

	t.Cleanup(func() {
		_ = ln.Close()
		f.wg.Wait()
	})
	return f
}

func (f *fakeSMTP) host() string { return "127.0.0.1" }

func (f *fakeSMTP) port() int {
	_, p, _ := net.SplitHostPort(f.ln.Addr().String())
	n, _ := strconv.Atoi(p)
	return n
}

func (f *fakeSMTP) received() []fakeMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakeMail, len(f.mails))
	copy(out, f.mails)
	return out
}

func (f *fakeSMTP) heloNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.helo...)
}

// closes devuelve cuántas conexiones cerró el cliente (EOF) y cuántas
// quedaron abiertas hasta el deadline de lectura.
func (f *fakeSMTP) closes() (eofs, timeouts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eofs, f.timeouts
}

func (f *fakeSMTP) readLine(conn net.Conn, r *bufio.Reader) (string, error) {
	_ = conn.SetReadDeadline(time.Now().Add(fakeReadTimeout))
	line, err := r.ReadString('\n')
	if err != nil {
		var ne net.Error
		f.mu.Lock()
		switch {
		case errors.Is(err, io.EOF):
			f.eofs++
		case errors.As(err, &ne) && ne.Timeout():
			f.timeouts++
		}
		f.mu.Unlock()
	}
	return line, err
}

func (f *fakeSMTP) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	reply := func(format string, args ...any) {
		_, _ = fmt.Fprintf(conn, format+"\r\n", args...)
	}

	reply("220 fake.local ESMTP ready")
	var cur fakeMail
	for {
		line, err := f.readLine(conn, r)
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		upper := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(upper, "EHLO "), strings.HasPrefix(upper, "HELO "):
			f.mu.Lock()
			f.helo = append(f.helo, strings.TrimSpace(line[5:]))
			f.mu.Unlock()
			if f.rejectHelo {
				reply("550 5.7.1 Client host rejected")
				continue
			}
			if f.user != "" {
				reply("250-fake.local")
				reply("250 AUTH PLAIN")
			} else {
				reply("250 fake.local")
			}
		case strings.HasPrefix(upper, "AUTH PLAIN"):
			f.mu.Lock()
			f.auths++
			f.mu.Unlock()
			fields := strings.Fields(line)
			ok := false
			if len(fields) == 3 {
				if raw, err := base64.StdEncoding.DecodeString(fields[2]); err == nil {
					parts := strings.Split(string(raw), "\x00")
					ok = len(parts) == 3 && parts[1] == f.user && parts[2] == f.pass
				}
			}
			if ok {
				reply("235 2.7.0 Authentication successful")
			} else {
				reply("535 5.7.8 Authentication credentials invalid")
			}
		case strings.HasPrefix(upper, "MAIL FROM:"):
			cur = fakeMail{From: between(line, "<", ">")}
			reply("250 2.1.0 Ok")
		case strings.HasPrefix(upper, "RCPT TO:"):
			if f.rejectRcpt {
				reply("550 5.1.1 User unknown")
				continue
			}
			cur.To = append(cur.To, between(line, "<", ">"))
			reply("250 2.1.5 Ok")
		case upper == "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")
			var lines []string
			for {
				dl, err := f.readLine(conn, r)
				if err != nil {
					return
				}
				dl = strings.TrimRight(dl, "\r\n")
				if dl == "." {
					break
				}
				lines = append(lines, strings.TrimPrefix(dl, "."))
			}
			cur.Data = strings.Join(lines, "\r\n")
			f.mu.Lock()
			f.mails = append(f.mails, cur)
			f.mu.Unlock()
			cur = fakeMail{}
			reply("250 2.0.0 Ok: queued")
		case upper == "RSET", upper == "NOOP":
			reply("250 2.0.0 Ok")
		case upper == "QUIT":
			reply("221 2.0.0 Bye")
			return
		default:
			reply("502 5.5.2 Command not recognized")
		}
	}
}

func between(s, open, close string) string {
	i := strings.Index(s, open)
	j := strings.LastIndex(s, close)
	if i < 0 || j <= i {
		return ""
	}
	return s[i+1 : j]
}
