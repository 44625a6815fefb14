package demo

// fieldIO is one direction of the frame wire format. Frame descriptions call
// it once per field in wire order: writers emit the pointed-to value, readers
// overwrite it and sizers only count bytes. Because the same description
// drives all three, the conditional layout of a frame cannot drift between
// encoder and decoder.
type fieldIO interface {
	reading() bool
	u8(v *uint8)
	i8(v *int8)
	u16(v *uint16)
	i16(v *int16)
	u32(v *uint32)
	fixed(v *Fixed)
	angle(v *Angle)
}

type fieldWriter struct{ c *Cursor }

func (w fieldWriter) reading() bool  { return false }
func (w fieldWriter) u8(v *uint8)    { w.c.WriteU8(*v) }
func (w fieldWriter) i8(v *int8)     { w.c.WriteI8(*v) }
func (w fieldWriter) u16(v *uint16)  { w.c.WriteU16(*v) }
func (w fieldWriter) i16(v *int16)   { w.c.WriteI16(*v) }
func (w fieldWriter) u32(v *uint32)  { w.c.WriteU32(*v) }
func (w fieldWriter) fixed(v *Fixed) { w.c.WriteFixed(*v) }
func (w fieldWriter) angle(v *Angle) { w.c.WriteAngle(*v) }

type fieldReader struct{ c *Cursor }

func (r fieldReader) reading() bool  { return true }
func (r fieldReader) u8(v *uint8)    { *v = r.c.ReadU8() }
func (r fieldReader) i8(v *int8)     { *v = r.c.ReadI8() }
func (r fieldReader) u16(v *uint16)  { *v = r.c.ReadU16() }
func (r fieldReader) i16(v *int16)   { *v = r.c.ReadI16() }
func (r fieldReader) u32(v *uint32)  { *v = r.c.ReadU32() }
func (r fieldReader) fixed(v *Fixed) { *v = r.c.ReadFixed() }
func (r fieldReader) angle(v *Angle) { *v = r.c.ReadAngle() }

type fieldSizer struct{ n *int }

func (s fieldSizer) reading() bool { return false }
func (s fieldSizer) u8(*uint8)     { *s.n++ }
func (s fieldSizer) i8(*int8)      { *s.n++ }
func (s fieldSizer) u16(*uint16)   { *s.n += 2 }
func (s fieldSizer) i16(*int16)    { *s.n += 2 }
func (s fieldSizer) u32(*uint32)   { *s.n += 4 }
func (s fieldSizer) fixed(*Fixed)  { *s.n += 4 }
func (s fieldSizer) angle(*Angle)  { *s.n += 4 }

// colorField walks a colour whose width depends on the format version.
func colorField(io fieldIO, v *uint16, width int) {
	if width >= 2 {
		io.u16(v)
		return
	}
	narrow := uint8(*v)
	io.u8(&narrow)
	if io.reading() {
		*v = uint16(narrow)
	}
}

// heightField walks a height stored either as whole map units or as a
// fixed-point value depending on the format version.
func heightField(io fieldIO, v *Fixed, width int) {
	if width >= 4 {
		io.fixed(v)
		return
	}
	units := int16(*v >> FracBits)
	io.i16(&units)
	if io.reading() {
		*v = Fixed(units) << FracBits
	}
}
