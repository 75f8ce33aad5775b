// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lease

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
)

const (
	keyPrefix = "lease/"

	// recordVersion is written as the first byte of every encoded lease.
	recordVersion byte = 1

	// recordSize is the version byte, the 16 byte owner id and the
	// expiration as nanoseconds since the unix epoch.
	recordSize = 1 + 16 + 8
)

var (
	minExpiration = time.Unix(0, math.MinInt64)
	maxExpiration = time.Unix(0, math.MaxInt64)
)

// Key returns the store key holding the lease for taskType.
func Key(taskType TaskType) string {
	return keyPrefix + taskType.String()
}

// Encode serialises the owner and expiration of l. The task type is
// carried by the key, so is not part of the value.
func Encode(l Lease) ([]byte, error) {
	if l.Owner == uuid.Nil {
		return nil, errors.NotValidf("nil lease owner")
	}
	if l.Expiration.Before(minExpiration) || l.Expiration.After(maxExpiration) {
		return nil, errors.NotValidf("lease expiration %s", l.Expiration)
	}

	data := make([]byte, recordSize)
	data[0] = recordVersion
	copy(data[1:17], l.Owner[:])
	binary.BigEndian.PutUint64(data[17:], uint64(l.Expiration.UnixNano()))
	return data, nil
}

// Decode parses a lease record previously written by Encode. The
// expiration is returned in UTC.
func Decode(taskType TaskType, data []byte) (Lease, error) {
	if len(data) != recordSize {
		return Lease{}, errors.NotValidf("lease record of %d bytes", len(data))
	}
	if data[0] != recordVersion {
		return Lease{}, errors.NotSupportedf("lease record version %d", data[0])
	}

	owner, err := uuid.FromBytes(data[1:17])
	if err != nil {
		return Lease{}, errors.Annotate(err, "decoding lease owner")
	}
	nanos := int64(binary.BigEndian.Uint64(data[17:]))
	return Lease{
		TaskType:   taskType,
		Owner:      owner,
		Expiration: time.Unix(0, nanos).UTC(),
	}, nil
}
