package lib

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// modelProcess talks to a python model over stdin/stdout.
//
// Each request is a 16-byte big-endian header (payload bytes, width, height,
// channels) followed by the payload. The python side may print anything on
// stdout; the answer is the first line prefixed with "json".
type modelProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	rd    *bufio.Reader
	mu    sync.Mutex
}

func startModelProcess(deviceID int, script string, args ...string) (*modelProcess, error) {
	cmdArgs := append([]string{"-W", "ignore", script}, args...)
	cmd := exec.Command("python", cmdArgs...)
	cmd.Env = append(os.Environ(), "CUDA_VISIBLE_DEVICES="+strconv.Itoa(deviceID))
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting %s: %v", ErrInference, script, err)
	}
	m := newModelConn(stdin, stdout)
	m.cmd = cmd
	return m, nil
}

func newModelConn(stdin io.WriteCloser, stdout io.Reader) *modelProcess {
	return &modelProcess{
		stdin: stdin,
		rd:    bufio.NewReader(stdout),
	}
}

func (m *modelProcess) call(width int, height int, channels int, payload []byte, out interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	header := make([]byte, 16)
	binary.BigEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint32(header[4:8], uint32(width))
	binary.BigEndian.PutUint32(header[8:12], uint32(height))
	binary.BigEndian.PutUint32(header[12:16], uint32(channels))
	if _, err := m.stdin.Write(header); err != nil {
		return fmt.Errorf("%w: writing header: %v", ErrInference, err)
	}
	if _, err := m.stdin.Write(payload); err != nil {
		return fmt.Errorf("%w: writing payload: %v", ErrInference, err)
	}

	var line string
	for {
		var err error
		line, err = m.rd.ReadString('\n')
		if err != nil {
			return fmt.Errorf("%w: reading model output: %v", ErrInference, err)
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "json") {
			continue
		}
		break
	}
	if err := json.Unmarshal([]byte(line[4:]), out); err != nil {
		return fmt.Errorf("%w: decoding model output: %v", ErrInference, err)
	}
	return nil
}

func (m *modelProcess) callImage(im Image, out interface{}) error {
	return m.call(im.Width, im.Height, 3, im.Bytes, out)
}

func (m *modelProcess) callTensor(width int, height int, tensor []float32, out interface{}) error {
	payload := make([]byte, 4*len(tensor))
	for i, v := range tensor {
		binary.LittleEndian.PutUint32(payload[4*i:], math.Float32bits(v))
	}
	return m.call(width, height, 3, payload, out)
}

func (m *modelProcess) Close() error {
	m.stdin.Close()
	if m.cmd == nil {
		return nil
	}
	return m.cmd.Wait()
}
