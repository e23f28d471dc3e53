package pager

import "encoding/binary"

func leUint16(b []byte) uint16       { return binary.LittleEndian.Uint16(b) }
func putLEUint16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func leUint32(b []byte) uint32       { return binary.LittleEndian.Uint32(b) }
func putLEUint32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func leUint64(b []byte) uint64       { return binary.LittleEndian.Uint64(b) }
func putLEUint64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
