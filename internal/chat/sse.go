package chat

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// sseFrame is one raw server-sent event before payload parsing.
type sseFrame struct {
	Event string
	Data  []byte
}

// sseParser reads server-sent events incrementally. It buffers until a
// full blank-line-delimited frame is available, so events split across
// network delivery boundaries reassemble transparently.
type sseParser struct {
	reader *bufio.Reader
}

func newSSEParser(r io.Reader) *sseParser {
	return &sseParser{reader: bufio.NewReader(r)}
}

// Next returns the next complete frame, or io.EOF when the stream ends.
func (p *sseParser) Next() (sseFrame, error) {
	var eventType string
	var dataLines []string

	flush := func() sseFrame {
		return sseFrame{
			Event: eventType,
			Data:  []byte(strings.Join(dataLines, "\n")),
		}
	}

	for {
		line, err := p.reader.ReadString('\n')
		eof := errors.Is(err, io.EOF)
		if err != nil && !eof {
			return sseFrame{}, err
		}

		if line != "" {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
		}

		if line == "" {
			if len(dataLines) == 0 && eventType == "" {
				if eof {
					return sseFrame{}, io.EOF
				}
				continue
			}
			return flush(), nil
		}

		// Comment lines keep the connection alive, nothing more.
		if strings.HasPrefix(line, ":") {
			if eof {
				if len(dataLines) == 0 && eventType == "" {
					return sseFrame{}, io.EOF
				}
				return flush(), nil
			}
			continue
		}

		field, value := splitSSEField(line)
		switch field {
		case "event":
			eventType = value
		case "data":
			dataLines = append(dataLines, value)
		}

		if eof {
			if len(dataLines) == 0 && eventType == "" {
				return sseFrame{}, io.EOF
			}
			return flush(), nil
		}
	}
}

func splitSSEField(line string) (field string, value string) {
	index := strings.IndexByte(line, ':')
	if index < 0 {
		return line, ""
	}
	field = line[:index]
	value = line[index+1:]
	if strings.HasPrefix(value, " ") {
		value = value[1:]
	}
	return field, value
}
