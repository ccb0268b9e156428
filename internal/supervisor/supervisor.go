// Package supervisor runs the external decoder and streams its output.
//
// A Process exposes the decoder's standard output as a channel of lines
// that is closed when the process exits. Failures are delivered in-band:
// a process that cannot be launched yields one "Exception: ..." line, and
// a process that leaves text on standard error yields one final
// "Error: ..." line before the channel closes. Consumers therefore treat
// every outcome as data.
package supervisor

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	ExceptionPrefix = "Exception: "
	ErrorPrefix     = "Error: "

	DefaultStopTimeout = 5 * time.Second
	DefaultLineBuffer  = 64

	maxStderrBytes = 64 << 10
	// MaxLineBytes caps one output line; the rest of an overlong line is
	// read and discarded.
	MaxLineBytes = 1 << 20
)

var errEmptyCommand = errors.New("empty command")

type Options struct {
	// Dir is the working directory of the decoder. Empty means the
	// current directory.
	Dir string
	// Env is appended to the inherited environment.
	Env []string
	// StopTimeout bounds how long Stop waits after SIGTERM before it
	// kills the process group. Zero or negative waits without bound.
	StopTimeout time.Duration
	LineBuffer  int
}

// Supervisor owns at most one running decoder process.
type Supervisor struct {
	opts Options
	log  zerolog.Logger

	mu      sync.Mutex
	current *Process
}

func New(opts Options, logger zerolog.Logger) *Supervisor {
	if opts.LineBuffer <= 0 {
		opts.LineBuffer = DefaultLineBuffer
	}
	return &Supervisor{
		opts: opts,
		log:  logger.With().Str("component", "supervisor").Logger(),
	}
}

// Start launches argv, stopping the previous process first so that two
// instances never overlap. Launch failures are reported on the returned
// process's Lines channel, never as a Go error.
func (s *Supervisor) Start(argv []string) *Process {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		if err := s.current.Stop(); err != nil {
			s.log.Warn().Err(err).Msg("stop previous process")
		}
	}
	p := launch(argv, s.opts, s.log)
	s.current = p
	return p
}

// Stop terminates the current process, if any, and waits for it to exit.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	p := s.current
	s.current = nil
	s.mu.Unlock()

	if p == nil {
		return nil
	}
	return p.Stop()
}

// Running reports whether the current process is still producing output.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	p := s.current
	s.mu.Unlock()
	if p == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

type Process struct {
	argv        []string
	cmd         *exec.Cmd
	stopTimeout time.Duration
	log         zerolog.Logger

	lines    chan string
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	exitErr  error
}

func launch(argv []string, opts Options, logger zerolog.Logger) *Process {
	p := &Process{
		argv:        append([]string(nil), argv...),
		stopTimeout: opts.StopTimeout,
		log:         logger,
		lines:       make(chan string, opts.LineBuffer),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}

	if len(argv) == 0 {
		go p.fail(errEmptyCommand)
		return p
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		go p.fail(err)
		return p
	}
	stderr := &tailBuffer{max: maxStderrBytes}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		go p.fail(err)
		return p
	}
	p.cmd = cmd
	p.log.Info().Strs("argv", argv).Int("pid", cmd.Process.Pid).Msg("decoder started")

	go p.run(stdout, stderr)
	return p
}

// Lines delivers output lines without their line terminator. The channel
// is closed after the process has exited and been reaped.
func (p *Process) Lines() <-chan string { return p.lines }

// Done is closed once Lines is closed.
func (p *Process) Done() <-chan struct{} { return p.done }

// Err returns the exit error after Done is closed.
func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.exitErr
	default:
		return nil
	}
}

func (p *Process) Pid() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Stop signals the process group to terminate and blocks until the
// process has exited. If it has not exited within the stop timeout the
// group is killed. Stop is safe to call more than once.
func (p *Process) Stop() error {
	p.stopOnce.Do(func() { close(p.quit) })

	if p.cmd == nil {
		<-p.done
		return nil
	}
	select {
	case <-p.done:
		return nil
	default:
	}

	if err := terminate(p.cmd); err != nil && !isGone(err) {
		p.log.Warn().Err(err).Int("pid", p.Pid()).Msg("signal decoder")
	}

	if p.stopTimeout <= 0 {
		<-p.done
		return nil
	}

	timer := time.NewTimer(p.stopTimeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
	}

	p.log.Warn().Int("pid", p.Pid()).Dur("timeout", p.stopTimeout).Msg("decoder ignored terminate, killing")
	if err := kill(p.cmd); err != nil && !isGone(err) {
		return err
	}
	<-p.done
	return nil
}

func (p *Process) fail(err error) {
	defer close(p.done)
	defer close(p.lines)

	p.exitErr = err
	p.log.Error().Err(err).Strs("argv", p.argv).Msg("decoder launch failed")
	p.emit(ExceptionPrefix + err.Error())
}

func (p *Process) run(stdout io.Reader, stderr *tailBuffer) {
	defer close(p.done)
	defer close(p.lines)

	r := bufio.NewReader(transform.NewReader(stdout, unicode.UTF8.NewDecoder()))
	for {
		line, err := readLine(r)
		if err != nil {
			if line != "" {
				p.emit(line)
			}
			if !errors.Is(err, io.EOF) {
				p.log.Warn().Err(err).Msg("read decoder output")
			}
			break
		}
		p.emit(line)
	}

	p.exitErr = p.cmd.Wait()

	if text := stderr.Text(); text != "" {
		p.emit(ErrorPrefix + text)
	}
	p.log.Info().Int("pid", p.Pid()).AnErr("exit", p.exitErr).Msg("decoder exited")
}

// readLine returns the next line without its terminator, truncated to
// MaxLineBytes. A non-nil error may come with the unterminated last line.
func readLine(r *bufio.Reader) (string, error) {
	var buf []byte
	truncated := false
	for {
		chunk, isPrefix, err := r.ReadLine()
		if room := MaxLineBytes - len(buf); len(chunk) > room {
			chunk = chunk[:room]
			truncated = true
		}
		buf = append(buf, chunk...)
		if err != nil || !isPrefix {
			line := string(buf)
			if truncated {
				line = strings.ToValidUTF8(line, "\uFFFD")
			}
			return line, err
		}
	}
}

// emit drops the line once Stop has been requested so that a consumer
// that stopped reading never blocks the reader.
func (p *Process) emit(line string) {
	select {
	case p.lines <- line:
	case <-p.quit:
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (b *tailBuffer) Write(data []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, data...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(data), nil
}

// Text returns the buffered output with invalid UTF-8 replaced and
// surrounding whitespace trimmed.
func (b *tailBuffer) Text() string {
	b.mu.Lock()
	raw := bytes.Clone(b.buf)
	b.mu.Unlock()

	decoded, _, err := transform.Bytes(unicode.UTF8.NewDecoder(), raw)
	if err != nil {
		decoded = bytes.ToValidUTF8(raw, []byte("\uFFFD"))
	}
	return strings.TrimSpace(string(decoded))
}
