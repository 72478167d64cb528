package ingest

import (
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/yungbote/metricsd/internal/types"
	"github.com/yungbote/metricsd/internal/variant"
)

// EnvelopeSignature is the serialized form of one client submission: send
// number, relative and absolute timestamps, machine id, then the singular,
// aggregate and sequence event arrays.
const EnvelopeSignature = "(ixxaya(uayxmv)a(uayxxmv)a(uaya(xmv)))"

// MalformedRecordError marks a record that cannot be ingested at all; the
// worker moves such records to the error queue instead of retrying them.
type MalformedRecordError struct {
	Reason string
	Cause  error
}

func (e *MalformedRecordError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed record: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("malformed record: %s", e.Reason)
}

func (e *MalformedRecordError) Unwrap() error { return e.Cause }

func malformed(reason string, cause error) error {
	return &MalformedRecordError{Reason: reason, Cause: cause}
}

// Record is a decoded submission: the request header as it will be stored,
// plus the three event arrays still in variant form.
type Record struct {
	Request    types.MetricsRequest
	Singulars  []variant.Value
	Aggregates []variant.Value
	Sequences  []variant.Value
}

// DecodeRecord parses the raw queue record: an 8-byte little-endian reception
// timestamp in microseconds, followed by the envelope in normal form. The
// digest covers the envelope bytes only, so the same submission received twice
// hashes identically regardless of when each copy arrived.
func DecodeRecord(raw []byte) (*Record, error) {
	if len(raw) < 8 {
		return nil, malformed(fmt.Sprintf("record of %d bytes is shorter than its timestamp prefix", len(raw)), nil)
	}
	receivedAt := time.UnixMicro(int64(binary.LittleEndian.Uint64(raw[:8]))).UTC()
	body := raw[8:]

	envelope, err := variant.Decode(EnvelopeSignature, body)
	if err != nil {
		return nil, malformed("envelope", err)
	}
	members, err := envelope.Tuple()
	if err != nil {
		return nil, malformed("envelope", err)
	}

	sendNumber, err := members[0].Int32()
	if err != nil {
		return nil, malformed("send number", err)
	}
	relative, err := members[1].Int64()
	if err != nil {
		return nil, malformed("relative timestamp", err)
	}
	absolute, err := members[2].Int64()
	if err != nil {
		return nil, malformed("absolute timestamp", err)
	}
	machineBytes, err := members[3].Bytes()
	if err != nil {
		return nil, malformed("machine id", err)
	}
	if len(machineBytes) != 16 {
		return nil, malformed(fmt.Sprintf("machine id of %d bytes, want 16", len(machineBytes)), nil)
	}

	singulars, err := members[4].Array()
	if err != nil {
		return nil, malformed("singular events", err)
	}
	aggregates, err := members[5].Array()
	if err != nil {
		return nil, malformed("aggregate events", err)
	}
	sequences, err := members[6].Array()
	if err != nil {
		return nil, malformed("sequence events", err)
	}

	digest := sha512.Sum512(body)
	return &Record{
		Request: types.MetricsRequest{
			Serialized:        body,
			Sha512:            hex.EncodeToString(digest[:]),
			ReceivedAt:        receivedAt,
			AbsoluteTimestamp: absolute,
			RelativeTimestamp: relative,
			MachineID:         hex.EncodeToString(machineBytes),
			SendNumber:        sendNumber,
		},
		Singulars:  singulars,
		Aggregates: aggregates,
		Sequences:  sequences,
	}, nil
}
