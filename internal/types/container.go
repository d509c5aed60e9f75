package types

import "time"

// ContainerMagic is the 8-byte magic at the start of every container header.
const ContainerMagic = "TRCEBIN\x00"

// FooterMagic is the 16-byte magic embedded in the trailer.
const FooterMagic = "TRCEBIN-FOOTER-\x00"

// FormatVersion is the current container format version.
const FormatVersion uint16 = 1

// HeaderSize is the fixed size in bytes of the container header (§6).
const HeaderSize = 64

// TrailerSize is the fixed size in bytes of the footer trailer (§6).
const TrailerSize = 24

// Header flag bits.
const (
	FlagLossy uint16 = 1 << 0 // session degraded into lossy mode at least once
)

// Header is the fixed 64-byte container header.
type Header struct {
	Version  uint16
	Flags    uint16
	KeyID    uint16
	KDFSalt  [16]byte
}

// FileEntry is one row of the File Manager table persisted in the footer:
// the path <-> FileID mapping plus the captured source snapshot and its
// content hash, used by the Report Builder and for invalidation.
type FileEntry struct {
	FileID      FileID
	Path        string
	Content     []byte
	ContentHash [32]byte // sha256
}

// SessionOutcome classifies how a session ended, surfaced in the footer so
// a reader knows whether the trace is complete, degraded, or truncated.
type SessionOutcome uint8

const (
	OutcomeClean SessionOutcome = iota
	OutcomeLossyDegraded
	OutcomeWriterFailure
	OutcomeExternalTermination
)

func (o SessionOutcome) String() string {
	switch o {
	case OutcomeClean:
		return "clean"
	case OutcomeLossyDegraded:
		return "lossy_degraded"
	case OutcomeWriterFailure:
		return "writer_failure"
	case OutcomeExternalTermination:
		return "external_termination"
	default:
		return "unknown"
	}
}

// SessionMeta is the session metadata block written into the footer.
type SessionMeta struct {
	SessionID      string
	StartedAt      time.Time
	StoppedAt      time.Time
	PolicySummary  string
	EncoderVersion uint16
	Outcome        SessionOutcome
	BackpressureDrops int64
	EncodeDrops       int64
	ObserverSkips     int64
}
