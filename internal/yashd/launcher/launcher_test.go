package launcher

import (
	"net"
	"os"
	"testing"

	"github.com/tjper/yashd/internal/yashd/job"
)

func TestOpenRedirectsDefaults(t *testing.T) {
	sock, _, cleanupSock := socketPair(t)
	defer cleanupSock()

	in, out, errw, cleanup, err := openRedirects(job.Redirects{}, sock, sock, sock)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	defer cleanup()

	if in != sock || out != sock || errw != sock {
		t.Fatalf("expected defaults to pass through unchanged")
	}
}

func TestOpenRedirectsOverride(t *testing.T) {
	sock, _, cleanupSock := socketPair(t)
	defer cleanupSock()

	dir := t.TempDir()
	outPath := dir + "/out"

	_, out, _, cleanup, err := openRedirects(job.Redirects{Out: outPath}, sock, sock, sock)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	defer cleanup()

	if out == sock {
		t.Fatalf("expected Out redirect to open a new file")
	}
	if out.Name() != outPath {
		t.Fatalf("unexpected file name: %s", out.Name())
	}
}

func TestOpenRedirectsMissingDirReturnsError(t *testing.T) {
	sock, _, cleanupSock := socketPair(t)
	defer cleanupSock()

	_, _, _, cleanup, err := openRedirects(job.Redirects{In: "/no/such/path"}, sock, sock, sock)
	if err == nil {
		cleanup()
		t.Fatal("expected error opening a nonexistent path")
	}
}

func TestSocketFileRejectsUnsupportedConn(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	if _, err := socketFile(a); err == nil {
		t.Fatal("expected error for a net.Conn without File()")
	}
}

func socketPair(t *testing.T) (*os.File, func(), func()) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "sock")
	if err != nil {
		t.Fatal(err)
	}
	return f, func() {}, func() { f.Close() }
}
