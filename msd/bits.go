package msd

var bitMask = [8]byte{0x80, 0x40, 0x20, 0x10, 0x08, 0x04, 0x02, 0x01}

// EncodeBits writes length bits from src into dst, starting at the given bit offset of dst.
// The bits are taken MSB first. If length is not a multiple of 8, the first source byte
// contributes only its lower length%8 bits, so a single byte value is written right aligned.
// dst must be large enough to hold offset+length bits. EncodeBits returns the new offset.
func EncodeBits(offset, length int, src []byte, dst []byte) int {
	dstIndex := offset >> 3
	dstPos := offset & 0x07
	srcIndex := 0
	srcPos := 8 - length&0x07
	if length&0x07 == 0 {
		srcPos = 0
	}

	for i := 0; i < length; i++ {
		mask := bitMask[dstPos]
		if src[srcIndex]&bitMask[srcPos] != 0 {
			dst[dstIndex] |= mask
		} else {
			dst[dstIndex] &^= mask
		}

		srcPos++
		if srcPos > 7 {
			srcIndex++
			srcPos = 0
		}
		dstPos++
		if dstPos > 7 {
			dstIndex++
			dstPos = 0
		}
	}

	return offset + length
}

// EncodeWideField writes the lower length bits (at most 16) of value into dst at the given bit offset,
// most significant bit first. It returns the new offset.
func EncodeWideField(offset, length int, value uint16, dst []byte) int {
	current := offset
	for n := 0; n < length; n++ {
		mask := bitMask[current&0x07]
		if value&(1<<uint(length-1-n)) != 0 {
			dst[current>>3] |= mask
		} else {
			dst[current>>3] &^= mask
		}
		current++
	}
	return offset + length
}

// BitsToBytes returns the number of bytes needed to hold the given number of bits.
func BitsToBytes(bits int) int {
	result := bits / 8
	if bits%8 > 0 {
		result++
	}
	return result
}

func putBool(offset int, value bool, dst []byte) int {
	var b byte
	if value {
		b = 1
	}
	return EncodeBits(offset, 1, []byte{b}, dst)
}

func putUint8(offset, length int, value uint8, dst []byte) int {
	return EncodeBits(offset, length, []byte{value}, dst)
}

// putUint32 writes all four bytes of value, most significant byte first.
func putUint32(offset int, value uint32, dst []byte) int {
	for i := 3; i >= 0; i-- {
		offset = putUint8(offset, 8, byte(value>>(uint(i)*8)), dst)
	}
	return offset
}
