// Package launcher allocates a port, generates a match seed, and spawns
// and tracks one match-server process per match (spec §4.6).
package launcher

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log"
	"os/exec"
	"sync"
	"time"

	"tetriduel/internal/apperr"
	"tetriduel/internal/protocol"
)

// maxMatchDuration is the hard upper bound a spawned match may run before
// the launcher kills it (spec §5: "implementation-defined upper bound,
// e.g., 30 minutes").
const maxMatchDuration = 30 * time.Minute

// Endpoint describes a launched match's reachable address.
type Endpoint struct {
	Host    string
	Port    int
	MatchID string
	Seed    int64
}

// Launcher owns the port pool and tracks every match-server child process
// it has spawned.
type Launcher struct {
	basePort   int
	binaryPath string
	host       string

	mu       sync.Mutex
	nextPort int
	inUse    map[int]bool
	children map[string]*exec.Cmd
}

// New returns a Launcher that spawns matchBinary as each match-server
// process, allocating ports starting at basePort (default 10100 per
// spec §6).
func New(basePort int, matchBinary, advertiseHost string) *Launcher {
	return &Launcher{
		basePort:   basePort,
		binaryPath: matchBinary,
		host:       advertiseHost,
		nextPort:   basePort,
		inUse:      make(map[int]bool),
		children:   make(map[string]*exec.Cmd),
	}
}

// PlayerArg is one --player flag's worth of authorization data.
type PlayerArg struct {
	UserID int64
	Role   protocol.Role
}

// Launch allocates a port and seed, spawns the match-server binary, and
// returns its endpoint. On failure it returns an apperr of kind
// LauncherError (spec §4.6).
func (l *Launcher) Launch(ctx context.Context, matchID string, roomID int64, players []PlayerArg) (Endpoint, error) {
	seed, err := randomSeed()
	if err != nil {
		return Endpoint{}, apperr.Wrap(apperr.LauncherError, err)
	}

	port, err := l.allocatePort()
	if err != nil {
		return Endpoint{}, apperr.Wrap(apperr.LauncherError, err)
	}

	args := []string{
		"--host", "0.0.0.0",
		"--port", fmt.Sprintf("%d", port),
		"--match-id", matchID,
		"--room-id", fmt.Sprintf("%d", roomID),
		"--seed", fmt.Sprintf("%d", seed),
	}
	for _, p := range players {
		args = append(args, "--player", fmt.Sprintf("%d:%s", p.UserID, p.Role))
	}

	cmd := exec.CommandContext(ctx, l.binaryPath, args...)
	if err := cmd.Start(); err != nil {
		l.releasePort(port)
		return Endpoint{}, apperr.Wrap(apperr.LauncherError, err)
	}

	l.mu.Lock()
	l.children[matchID] = cmd
	l.mu.Unlock()

	go l.supervise(matchID, port, cmd)

	return Endpoint{Host: l.host, Port: port, MatchID: matchID, Seed: seed}, nil
}

// supervise waits for the child to exit (naturally, or because it
// overran maxMatchDuration) and reclaims its port.
func (l *Launcher) supervise(matchID string, port int, cmd *exec.Cmd) {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(maxMatchDuration)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			log.Printf("[launcher] match %s exited: %v", matchID, err)
		} else {
			log.Printf("[launcher] match %s exited cleanly", matchID)
		}
	case <-timer.C:
		log.Printf("[launcher] match %s exceeded %s, killing", matchID, maxMatchDuration)
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		<-done
	}

	l.mu.Lock()
	delete(l.children, matchID)
	l.releasePortLocked(port)
	l.mu.Unlock()
}

func (l *Launcher) allocatePort() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := 0; i < 65535-l.basePort; i++ {
		p := l.nextPort
		l.nextPort++
		if l.nextPort > 65535 {
			l.nextPort = l.basePort
		}
		if !l.inUse[p] {
			l.inUse[p] = true
			return p, nil
		}
	}
	return 0, fmt.Errorf("launcher: no free port in pool starting at %d", l.basePort)
}

func (l *Launcher) releasePort(port int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releasePortLocked(port)
}

func (l *Launcher) releasePortLocked(port int) {
	delete(l.inUse, port)
}

// randomSeed draws 8 bytes from a strong entropy source. crypto/rand is
// used here, deliberately distinct from the engine bag's math/rand: this
// seed only needs to be unpredictable, never reproduced from a fixed
// input, the opposite requirement from the bag's PRNG.
func randomSeed() (int64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}
