package badger

import (
	"encoding/binary"

	"github.com/poiesic/answerbank/core"
)

// Version database keys.
const (
	manifestKey    = "manifest"
	categoryPrefix = "cat:"
	recordPrefix   = "rec:"
	vectorPrefix   = "vec:"
)

// Lineage database keys.
const (
	buildSeq     = "buildseq"
	recordIDSeq  = "recidseq"
	rowKeyPrefix = "rowkey:"
)

// makeIDKey generates prefix:id with the ID in BigEndian order so
// lexicographic key order matches numeric ID order.
func makeIDKey(prefix string, id core.ID) []byte {
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

func makeCategoryKey(id core.ID) []byte {
	return makeIDKey(categoryPrefix, id)
}

func makeRecordKey(id core.ID) []byte {
	return makeIDKey(recordPrefix, id)
}

func makeVectorKey(id core.ID) []byte {
	return makeIDKey(vectorPrefix, id)
}

// makeRowKey generates the lineage key for a source row key.
func makeRowKey(key string) []byte {
	return []byte(rowKeyPrefix + key)
}
