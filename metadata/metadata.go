package metadata

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/docker/go-units"
	"github.com/pierrec/lz4/v4"

	"github.com/pattyshack/starling/analyzer/rootmap"
	"github.com/pattyshack/starling/ast"
)

// Table layout (all integers are varint encoded unless noted):
//
//	magic "SRMT" (4 bytes) | version (1 byte) | flags (1 byte) | payload
//
//	payload:
//	  frame size
//	  num records
//	  per record:
//	    safepoint id | block id | position | num slots
//	    per slot: type tag (1 byte) | stack offset
//
// The payload is lz4 framed when the Compressed flag is set.  The table only
// holds what the collector needs: slot types and stack offsets.
const (
	magic   = "SRMT"
	version = 1

	compressedFlag = 0x1
)

const (
	referenceTag       = 1
	narrowReferenceTag = 2
)

const (
	maxDecompressedSize = 16 * units.MiB

	// Smallest encodings of a record / slot.  Counts are bounded by the
	// remaining input.
	minRecordSize = 4
	minSlotSize   = 2
)

type Slot struct {
	Type   ast.OutputKind
	Offset int
}

type Record struct {
	Safepoint ast.InstructionID
	Block     ast.BlockID
	Position  int

	// Same order as the root map's entries.
	Slots []Slot
}

type Table struct {
	FrameSize int
	Records   []Record
}

// Returns the record for the given safepoint, or nil.
func (table *Table) Lookup(safepoint ast.InstructionID) *Record {
	for idx := range table.Records {
		if table.Records[idx].Safepoint == safepoint {
			return &table.Records[idx]
		}
	}
	return nil
}

func NewTable(frameSize int, rootMaps []*rootmap.RootMap) *Table {
	table := &Table{
		FrameSize: frameSize,
		Records:   make([]Record, 0, len(rootMaps)),
	}

	for _, rootMap := range rootMaps {
		record := Record{
			Safepoint: rootMap.Safepoint,
			Block:     rootMap.Block,
			Position:  rootMap.Position,
			Slots:     make([]Slot, 0, len(rootMap.Entries)),
		}

		for _, entry := range rootMap.Entries {
			if entry.Location == nil || !entry.Location.OnFixedStack {
				panic("should never happen")
			}

			record.Slots = append(
				record.Slots,
				Slot{
					Type:   entry.Type,
					Offset: entry.Location.Offset,
				})
		}

		table.Records = append(table.Records, record)
	}

	return table
}

type Options struct {
	Compress bool
}

type encoder struct {
	buffer  []byte
	scratch [binary.MaxVarintLen64]byte
}

func (enc *encoder) putInt(value int64) {
	n := binary.PutVarint(enc.scratch[:], value)
	enc.buffer = append(enc.buffer, enc.scratch[:n]...)
}

func (enc *encoder) putUint(value uint64) {
	n := binary.PutUvarint(enc.scratch[:], value)
	enc.buffer = append(enc.buffer, enc.scratch[:n]...)
}

func typeTag(kind ast.OutputKind) byte {
	switch kind {
	case ast.Reference:
		return referenceTag
	case ast.NarrowReference:
		return narrowReferenceTag
	default:
		panic("should never happen")
	}
}

// Serializes the root maps of a compiled method.
func Encode(
	frameSize int,
	rootMaps []*rootmap.RootMap,
	options Options,
) ([]byte, error) {
	return EncodeTable(NewTable(frameSize, rootMaps), options)
}

func EncodeTable(table *Table, options Options) ([]byte, error) {
	enc := &encoder{}
	enc.putUint(uint64(table.FrameSize))
	enc.putUint(uint64(len(table.Records)))
	for _, record := range table.Records {
		enc.putInt(int64(record.Safepoint))
		enc.putInt(int64(record.Block))
		enc.putInt(int64(record.Position))
		enc.putUint(uint64(len(record.Slots)))
		for _, slot := range record.Slots {
			enc.buffer = append(enc.buffer, typeTag(slot.Type))
			enc.putUint(uint64(slot.Offset))
		}
	}

	header := []byte(magic)
	header = append(header, version)

	if !options.Compress {
		header = append(header, 0)
		return append(header, enc.buffer...), nil
	}

	header = append(header, compressedFlag)
	result := bytes.NewBuffer(header)

	writer := lz4.NewWriter(result)
	_, err := writer.Write(enc.buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to compress root map table: %w", err)
	}

	err = writer.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to compress root map table: %w", err)
	}

	return result.Bytes(), nil
}

type decoder struct {
	*bytes.Reader
}

func (dec decoder) int(field string) (int, error) {
	value, err := binary.ReadVarint(dec)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", field, err)
	}
	return int(value), nil
}

func (dec decoder) uint(field string) (int, error) {
	value, err := binary.ReadUvarint(dec)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", field, err)
	}

	if value > math.MaxInt32 {
		return 0, fmt.Errorf("invalid %s (%d)", field, value)
	}
	return int(value), nil
}

func (dec decoder) count(field string, elementSize int) (int, error) {
	value, err := dec.uint(field)
	if err != nil {
		return 0, err
	}

	if value > dec.Len()/elementSize {
		return 0, fmt.Errorf("invalid %s (%d)", field, value)
	}
	return value, nil
}

func Decode(data []byte) (*Table, error) {
	if len(data) < len(magic)+2 || string(data[:len(magic)]) != magic {
		return nil, fmt.Errorf("not a root map table")
	}

	if data[len(magic)] != version {
		return nil, fmt.Errorf(
			"unsupported root map table version (%d)",
			data[len(magic)])
	}

	flags := data[len(magic)+1]
	payload := data[len(magic)+2:]

	if flags&compressedFlag != 0 {
		var err error
		payload, err = io.ReadAll(
			io.LimitReader(
				lz4.NewReader(bytes.NewReader(payload)),
				maxDecompressedSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to decompress root map table: %w", err)
		}

		if len(payload) > maxDecompressedSize {
			return nil, fmt.Errorf(
				"decompressed root map table exceeds %s",
				units.BytesSize(maxDecompressedSize))
		}
	}

	dec := decoder{bytes.NewReader(payload)}

	table := &Table{}
	var err error
	table.FrameSize, err = dec.uint("frame size")
	if err != nil {
		return nil, err
	}

	numRecords, err := dec.count("record count", minRecordSize)
	if err != nil {
		return nil, err
	}

	table.Records = make([]Record, 0, numRecords)
	for range numRecords {
		record := Record{}

		safepoint, err := dec.int("safepoint id")
		if err != nil {
			return nil, err
		}
		record.Safepoint = ast.InstructionID(safepoint)

		block, err := dec.int("block id")
		if err != nil {
			return nil, err
		}
		record.Block = ast.BlockID(block)

		record.Position, err = dec.int("position")
		if err != nil {
			return nil, err
		}

		numSlots, err := dec.count("slot count", minSlotSize)
		if err != nil {
			return nil, err
		}

		record.Slots = make([]Slot, 0, numSlots)
		for range numSlots {
			tag, err := dec.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("failed to read slot type: %w", err)
			}

			slot := Slot{}
			switch tag {
			case referenceTag:
				slot.Type = ast.Reference
			case narrowReferenceTag:
				slot.Type = ast.NarrowReference
			default:
				return nil, fmt.Errorf("invalid slot type (%d)", tag)
			}

			slot.Offset, err = dec.uint("slot offset")
			if err != nil {
				return nil, err
			}

			record.Slots = append(record.Slots, slot)
		}

		table.Records = append(table.Records, record)
	}

	if dec.Len() > 0 {
		return nil, fmt.Errorf("%d trailing bytes in root map table", dec.Len())
	}

	return table, nil
}
