package llm

import (
	"bytes"
	"strings"
)

const doneFrame = "[DONE]"

// frameDecoder splits a server-sent event body into data payloads. Bytes
// after the last newline are kept until the next feed completes the line.
type frameDecoder struct {
	buf []byte
}

// feed appends p and returns the data payloads of every completed line.
func (d *frameDecoder) feed(p []byte) []string {
	d.buf = append(d.buf, p...)
	var frames []string
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := string(d.buf[:i])
		d.buf = d.buf[i+1:]
		if frame, ok := dataPayload(line); ok {
			frames = append(frames, frame)
		}
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return frames
}

// flush returns the payload of an unterminated final line, if any.
func (d *frameDecoder) flush() (string, bool) {
	line := string(d.buf)
	d.buf = nil
	return dataPayload(line)
}

func dataPayload(line string) (string, bool) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "" {
		return "", false
	}
	return payload, true
}
