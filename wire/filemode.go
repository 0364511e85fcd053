package wire

import (
	"os"
)

// Linux file type bits, as encoded in the sync protocol's mode field.
const (
	sIFMT   = 0o170000
	sIFSOCK = 0o140000
	sIFLNK  = 0o120000
	sIFREG  = 0o100000
	sIFBLK  = 0o060000
	sIFDIR  = 0o040000
	sIFCHR  = 0o020000
	sIFIFO  = 0o010000

	sISUID = 0o4000
	sISGID = 0o2000
	sISVTX = 0o1000
)

// ParseFileModeFromAdb converts the raw POSIX mode from a STAT/DENT response
// into an os.FileMode.
func ParseFileModeFromAdb(mode uint32) os.FileMode {
	fm := os.FileMode(mode & 0o777)
	switch mode & sIFMT {
	case sIFDIR:
		fm |= os.ModeDir
	case sIFLNK:
		fm |= os.ModeSymlink
	case sIFSOCK:
		fm |= os.ModeSocket
	case sIFIFO:
		fm |= os.ModeNamedPipe
	case sIFBLK:
		fm |= os.ModeDevice
	case sIFCHR:
		fm |= os.ModeDevice | os.ModeCharDevice
	}
	if mode&sISUID != 0 {
		fm |= os.ModeSetuid
	}
	if mode&sISGID != 0 {
		fm |= os.ModeSetgid
	}
	if mode&sISVTX != 0 {
		fm |= os.ModeSticky
	}
	return fm
}

// syscallMode is the inverse direction: the decimal mode sent in a SEND
// header, always stamped as a regular file.
func syscallMode(mode os.FileMode) uint32 {
	return sIFREG | uint32(mode.Perm())
}
