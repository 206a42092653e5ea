package radio

import (
	"io"
)

// IQReader decodes u8 I/Q sample pairs from a byte stream.
type IQReader struct {
	r   io.Reader
	buf []byte

	// half of a sample pair left over from a short read
	pending     bool
	pendingByte byte
}

// NewIQReader takes a reader that uses u8 I/Q samples.
func NewIQReader(r io.Reader) *IQReader {
	if r == nil {
		panic("nil reader")
	}
	return &IQReader{r: r}
}

// ReadIQ performs at most one read on the underlying reader and decodes
// every complete sample pair it got.
func (iq *IQReader) ReadIQ(out []complex64) (int, error) {
	if len(out) == 0 {
		return 0, nil
	}
	want := 2 * len(out)
	if cap(iq.buf) < want {
		iq.buf = make([]byte, want)
	}
	b, off := iq.buf[:want], 0
	if iq.pending {
		b[0], off, iq.pending = iq.pendingByte, 1, false
	}
	n, err := iq.r.Read(b[off:])
	n += off
	if n%2 == 1 {
		iq.pending, iq.pendingByte = true, b[n-1]
		n--
	}
	u8ToComplex64(out, b[:n])
	return n / 2, err
}

// ReadFullIQ reads until out is full or the reader fails.
func (iq *IQReader) ReadFullIQ(out []complex64) (int, error) {
	total := 0
	for total < len(out) {
		n, err := iq.ReadIQ(out[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func u8ToComplex64(out []complex64, iq8 []byte) {
	for i := 0; i < len(iq8)/2; i++ {
		out[i] = complex(
			(float32(iq8[2*i])-127)/128.0,
			(float32(iq8[2*i+1])-127)/128.0)
	}
}

type IQWriter struct{ w io.Writer }

func NewIQWriter(w io.Writer) *IQWriter { return &IQWriter{w} }

func (iq *IQWriter) Write64(out []complex64) error {
	buf := make([]byte, 2*len(out))
	for i := range out {
		buf[2*i] = float2u8(real(out[i]))
		buf[2*i+1] = float2u8(imag(out[i]))
	}
	_, err := iq.w.Write(buf)
	return err
}

func float2u8(v float32) byte {
	x := v*128.0 + 127.0
	if x < 0 {
		return 0
	} else if x > 255 {
		return 255
	}
	return byte(x)
}
