package oncrpc

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/arloliu/go-lxi/internal/pool"
)

const (
	// fragmentHeaderSize is the size of the record marking header in bytes.
	fragmentHeaderSize = 4

	lastFragmentFlag = uint32(0x80000000)
	fragmentLenMask  = uint32(0x7FFFFFFF)

	// DefaultMaxFragmentSize is the largest fragment written by WriteRecord.
	DefaultMaxFragmentSize = 1 << 20

	// DefaultMaxRecordSize bounds the size of a record accepted by ReadRecord.
	DefaultMaxRecordSize = 64 << 20
)

// StreamReader reads exactly len(p) bytes before deadline and reports how many bytes
// were read on failure. *transport.Conn implements it.
type StreamReader interface {
	ReadFull(p []byte, deadline time.Time) (int, error)
}

// StreamWriter writes all of p before deadline. *transport.Conn implements it.
type StreamWriter interface {
	WriteAll(p []byte, deadline time.Time) error
}

// Stream is the full duplex stream a Client runs on.
type Stream interface {
	StreamReader
	StreamWriter
	Close() error
}

// WriteRecord writes payload as one record, split into fragments of at most maxFragment bytes.
// A zero-length payload is written as a single empty last fragment.
func WriteRecord(w StreamWriter, payload []byte, deadline time.Time, maxFragment int) error {
	if maxFragment <= 0 || maxFragment > int(fragmentLenMask) {
		maxFragment = DefaultMaxFragmentSize
	}

	numFrags := (len(payload) + maxFragment - 1) / maxFragment
	if numFrags == 0 {
		numFrags = 1
	}

	buf := pool.GetBuffer(len(payload) + numFrags*fragmentHeaderSize)
	defer pool.PutBuffer(buf)

	for offset := 0; ; {
		end := min(offset+maxFragment, len(payload))
		header := uint32(end - offset) //nolint:gosec
		if end == len(payload) {
			header |= lastFragmentFlag
		}
		buf = binary.BigEndian.AppendUint32(buf, header)
		buf = append(buf, payload[offset:end]...)

		offset = end
		if offset >= len(payload) {
			break
		}
	}

	return w.WriteAll(buf, deadline)
}

// ReadRecord reads one complete record and reassembles its fragments.
//
// consumed is the number of stream bytes read, including fragment headers. It is
// meaningful on failure: a non-zero value means the stream stopped in the middle of a record.
func ReadRecord(r StreamReader, deadline time.Time, maxRecord int) (record []byte, consumed int, err error) {
	if maxRecord <= 0 {
		maxRecord = DefaultMaxRecordSize
	}

	var header [fragmentHeaderSize]byte
	for {
		n, err := r.ReadFull(header[:], deadline)
		consumed += n
		if err != nil {
			return nil, consumed, err
		}

		h := binary.BigEndian.Uint32(header[:])
		fragLen := int(h & fragmentLenMask)
		if len(record)+fragLen > maxRecord {
			return nil, consumed, fmt.Errorf("%w: %d > %d", ErrRecordTooLarge, len(record)+fragLen, maxRecord)
		}

		if fragLen > 0 {
			start := len(record)
			record = append(record, make([]byte, fragLen)...)
			n, err = r.ReadFull(record[start:], deadline)
			consumed += n
			if err != nil {
				return nil, consumed, err
			}
		}

		if h&lastFragmentFlag != 0 {
			if record == nil {
				record = []byte{}
			}
			return record, consumed, nil
		}
	}
}
