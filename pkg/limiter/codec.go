package limiter

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Fixed record layouts used by byte-oriented stores. Integers are little-endian.
//
//	Policy: discriminator(8) admin(32) max_requests(8) window_seconds(8) burst_limit(8) paused(1)
//	Bucket: discriminator(8) owner(32) request_count(8) window_start(8) total_requests(8) blocked(1)
const (
	PolicyRecordLen = 8 + IdentityLen + 8 + 8 + 8 + 1
	BucketRecordLen = 8 + IdentityLen + 8 + 8 + 8 + 1
)

var (
	policyDiscriminator = [8]byte{'r', 'l', 'p', 'o', 'l', 'i', 'c', 'y'}
	bucketDiscriminator = [8]byte{'r', 'l', 'b', 'u', 'c', 'k', 'e', 't'}
)

var errBadRecord = errors.New("malformed record")

func (p Policy) MarshalBinary() ([]byte, error) {
	buf := make([]byte, PolicyRecordLen)
	off := copy(buf, policyDiscriminator[:])
	off += copy(buf[off:], p.Admin[:])
	binary.LittleEndian.PutUint64(buf[off:], p.MaxRequests)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(p.WindowSeconds))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], p.BurstLimit)
	off += 8
	buf[off] = boolByte(p.Paused)
	return buf, nil
}

func (p *Policy) UnmarshalBinary(data []byte) error {
	if len(data) != PolicyRecordLen || !bytes.Equal(data[:8], policyDiscriminator[:]) {
		return fmt.Errorf("policy: %w", errBadRecord)
	}
	off := 8
	off += copy(p.Admin[:], data[off:off+IdentityLen])
	p.MaxRequests = binary.LittleEndian.Uint64(data[off:])
	off += 8
	p.WindowSeconds = int64(binary.LittleEndian.Uint64(data[off:]))
	off += 8
	p.BurstLimit = binary.LittleEndian.Uint64(data[off:])
	off += 8
	paused, err := byteBool(data[off])
	if err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	p.Paused = paused
	return nil
}

func (b Bucket) MarshalBinary() ([]byte, error) {
	buf := make([]byte, BucketRecordLen)
	off := copy(buf, bucketDiscriminator[:])
	off += copy(buf[off:], b.Owner[:])
	binary.LittleEndian.PutUint64(buf[off:], b.RequestCount)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(b.WindowStart))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], b.TotalRequests)
	off += 8
	buf[off] = boolByte(b.Blocked)
	return buf, nil
}

func (b *Bucket) UnmarshalBinary(data []byte) error {
	if len(data) != BucketRecordLen || !bytes.Equal(data[:8], bucketDiscriminator[:]) {
		return fmt.Errorf("bucket: %w", errBadRecord)
	}
	off := 8
	off += copy(b.Owner[:], data[off:off+IdentityLen])
	b.RequestCount = binary.LittleEndian.Uint64(data[off:])
	off += 8
	b.WindowStart = int64(binary.LittleEndian.Uint64(data[off:]))
	off += 8
	b.TotalRequests = binary.LittleEndian.Uint64(data[off:])
	off += 8
	blocked, err := byteBool(data[off])
	if err != nil {
		return fmt.Errorf("bucket: %w", err)
	}
	b.Blocked = blocked
	return nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func byteBool(v byte) (bool, error) {
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, errBadRecord
}
