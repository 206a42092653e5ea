package radio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// FileReceiver replays a u8 IQ capture in a loop. Tuning is recorded but
// does not change the replayed samples.
type FileReceiver struct {
	path     string
	antennas []string
	f        *os.File

	mu      sync.Mutex
	center  float64
	rate    float64
	antenna string
}

func NewFileReceiver(path string, antennas []string) (*FileReceiver, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if fi, err := f.Stat(); err != nil || fi.Size() < 2 {
		f.Close()
		if err == nil {
			err = fmt.Errorf("%s: no samples", path)
		}
		return nil, err
	}
	if len(antennas) == 0 {
		antennas = []string{"FILE"}
	}
	return &FileReceiver{path: path, antennas: antennas, f: f, antenna: antennas[0]}, nil
}

func (fr *FileReceiver) Antennas() []string { return append([]string(nil), fr.antennas...) }

func (fr *FileReceiver) Tune(centerHz, loOffsetHz float64) error {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.center = centerHz
	return nil
}

func (fr *FileReceiver) SetGain(db float64) error { return nil }

func (fr *FileReceiver) SetSampleRate(hz float64) error {
	if hz <= 0 {
		return ErrRateOutOfRange
	}
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.rate = hz
	return nil
}

func (fr *FileReceiver) SelectAntenna(name string) error {
	if antennaIndex(fr.antennas, name) < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownAntenna, name)
	}
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.antenna = name
	return nil
}

func (fr *FileReceiver) OpenStream() (Stream, error) {
	return &fileStream{fr: fr, iqr: NewIQReader(fr.f)}, nil
}

func (fr *FileReceiver) Info() HWInfo {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	return HWInfo{
		Id:     fr.path,
		Driver: "file",
		SDRFormat: SDRFormat{
			BitDepth:   8,
			CenterHz:   uint64(fr.center),
			SampleRate: uint32(fr.rate),
		},
	}
}

func (fr *FileReceiver) Close() error { return fr.f.Close() }

type fileStream struct {
	fr      *FileReceiver
	iqr     *IQReader
	running bool
	// rewound without reading anything since
	rewound bool
}

func (fs *fileStream) Start() error { fs.running = true; return nil }
func (fs *fileStream) Stop() error  { fs.running = false; return nil }
func (fs *fileStream) Close() error { return fs.Stop() }

func (fs *fileStream) Recv(buf []complex64) (int, RxMetadata) {
	if !fs.running {
		return 0, RxMetadata{ErrorCode: ErrorCodeTimeout, Err: errors.New("stream not started")}
	}
	n, err := fs.iqr.ReadIQ(buf)
	if n > 0 {
		fs.rewound = false
	}
	if err == nil {
		return n, RxMetadata{}
	}
	if !errors.Is(err, io.EOF) {
		return n, RxMetadata{ErrorCode: ErrorCodeBrokenChain, Err: err}
	}
	if fs.rewound {
		return n, RxMetadata{ErrorCode: ErrorCodeBrokenChain, Err: fmt.Errorf("%s: no samples", fs.fr.path)}
	}
	if _, serr := fs.fr.f.Seek(0, io.SeekStart); serr != nil {
		return n, RxMetadata{ErrorCode: ErrorCodeBrokenChain, Err: serr}
	}
	fs.iqr, fs.rewound = NewIQReader(fs.fr.f), true
	return n, RxMetadata{}
}
